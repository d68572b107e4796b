package logging

import (
	"sync"
)

var (
	globalLogger Logger
	globalMu     sync.RWMutex
)

// Global returns the process-wide logger. It discards everything until
// SetGlobal is called.
func Global() Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = Nop()
	}
	return globalLogger
}

// SetGlobal replaces the process-wide logger.
func SetGlobal(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}
