package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/creasty/defaults"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Options controls where configuration is read from.
type Options struct {
	BasePath  string
	FileName  string
	FileType  string
	EnvPrefix string
	// Mode picks the environment-specific files; empty uses CurrentMode.
	Mode      Mode
	WatchAble bool
	OnChange  func(e fsnotify.Event)
}

// DefaultOptions reads config/config.yaml and its variants, or the
// directory named by CONFIG_PATH.
func DefaultOptions() Options {
	basePath := os.Getenv("CONFIG_PATH")
	if basePath == "" {
		basePath = "config"
	}
	return Options{
		BasePath: basePath,
		FileName: "config",
		FileType: "yaml",
	}
}

// Loader merges config files, environment variables and flags, and binds
// the result into structs.
type Loader struct {
	v          *viper.Viper
	opts       Options
	files      []string
	flags      map[string]*pflag.Flag
	watchOnce  sync.Once
	watchMutex sync.RWMutex
}

// NewLoader reads every config file that exists for opts, in increasing
// priority: config, config.local, config.<mode>, config.<mode>.local.
// Missing files are not an error; defaults then apply.
func NewLoader(opts Options) (*Loader, error) {
	if opts.FileName == "" {
		opts.FileName = "config"
	}
	if opts.FileType == "" {
		opts.FileType = "yaml"
	}
	if opts.Mode == "" {
		opts.Mode = CurrentMode()
	}

	v := viper.New()
	v.SetConfigType(opts.FileType)

	files := configFilePaths(opts)
	for _, path := range files {
		tempV := viper.New()
		tempV.SetConfigFile(path)
		if err := tempV.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := v.MergeConfigMap(tempV.AllSettings()); err != nil {
			return nil, fmt.Errorf("merge config file %s: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
	}
	v.AutomaticEnv()

	return &Loader{v: v, opts: opts, files: files, flags: make(map[string]*pflag.Flag)}, nil
}

// Files lists the config files that were read.
func (l *Loader) Files() []string {
	return l.files
}

// BindFlag makes flag override key when it was set on the command line.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	l.watchMutex.Lock()
	defer l.watchMutex.Unlock()
	l.flags[key] = flag
}

// Bind fills instance from creasty defaults, then config files, then
// environment variables, then flags. When WatchAble is set the instance is
// re-filled whenever a loaded file changes.
func (l *Loader) Bind(instance any) error {
	if instance == nil {
		return fmt.Errorf("target instance is nil")
	}

	l.watchMutex.Lock()
	defer l.watchMutex.Unlock()

	if err := l.bind(instance); err != nil {
		return err
	}

	if l.opts.WatchAble && len(l.files) > 0 {
		l.watchOnce.Do(func() { l.watch(instance) })
	}
	return nil
}

func (l *Loader) bind(instance any) error {
	if err := defaults.Set(instance); err != nil {
		return fmt.Errorf("set defaults: %w", err)
	}
	applyEnvOverrides(l.v, l.opts.EnvPrefix, structKeys(reflect.TypeOf(instance), ""))
	for key, flag := range l.flags {
		if flag.Changed {
			l.v.Set(key, flag.Value.String())
		}
	}
	if err := l.v.Unmarshal(instance); err != nil {
		return fmt.Errorf("unmarshal config (path: %s, file: %s.%s): %w",
			l.opts.BasePath, l.opts.FileName, l.opts.FileType, err)
	}
	return nil
}

func (l *Loader) watch(instance any) {
	for _, path := range l.files {
		w := viper.New()
		w.SetConfigFile(path)
		if err := w.ReadInConfig(); err != nil {
			continue
		}
		w.OnConfigChange(func(e fsnotify.Event) {
			l.watchMutex.Lock()
			defer l.watchMutex.Unlock()

			if err := l.v.MergeConfigMap(w.AllSettings()); err != nil {
				fmt.Fprintf(os.Stderr, "config watch error: %v\n", err)
				return
			}
			if err := l.bind(instance); err != nil {
				fmt.Fprintf(os.Stderr, "config watch error: %v\n", err)
				return
			}
			if l.opts.OnChange != nil {
				l.opts.OnChange(e)
			}
		})
		w.WatchConfig()
	}
}

// Get returns the merged value of key.
func (l *Loader) Get(key string) any {
	l.watchMutex.RLock()
	defer l.watchMutex.RUnlock()
	return l.v.Get(key)
}

// applyEnvOverrides sets every key whose environment variable exists, e.g.
// server.max-body-bytes from SERVER_MAX_BODY_BYTES. AutomaticEnv alone only
// covers keys viper already knows, which misses keys absent from files.
func applyEnvOverrides(v *viper.Viper, envPrefix string, keys []string) {
	replacer := strings.NewReplacer(".", "_", "-", "_")

	seen := make(map[string]struct{})
	for _, key := range append(v.AllKeys(), keys...) {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		envKey := strings.ToUpper(replacer.Replace(key))
		if envPrefix != "" {
			envKey = strings.ToUpper(envPrefix) + "_" + envKey
		}
		if envValue, ok := os.LookupEnv(envKey); ok && envValue != "" {
			v.Set(key, envValue)
		}
	}
}

// structKeys lists the dotted mapstructure keys of every leaf field of t.
func structKeys(t reflect.Type, prefix string) []string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var keys []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := strings.Split(field.Tag.Get("mapstructure"), ",")[0]
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(field.Name)
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		ft := field.Type
		if ft.Kind() == reflect.Struct && ft.String() != "time.Duration" {
			keys = append(keys, structKeys(ft, key)...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func configFilePaths(opts Options) []string {
	fileNames := []string{opts.FileName, opts.FileName + ".local"}
	for _, alias := range opts.Mode.aliases() {
		fileNames = append(fileNames,
			fmt.Sprintf("%s.%s", opts.FileName, alias),
			fmt.Sprintf("%s.%s.local", opts.FileName, alias),
		)
	}

	var files []string
	for _, name := range fileNames {
		path := filepath.Join(opts.BasePath, name+"."+opts.FileType)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			files = append(files, path)
		}
	}
	return files
}
