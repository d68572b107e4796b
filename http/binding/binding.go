package binding

import (
	"fmt"
	"net/http"
	"strings"
)

// Binder fills v from a request.
type Binder interface {
	Name() string
	Bind(*http.Request, any) error
}

type BindError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e BindError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field '%s' %s", e.Type, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

type ValidationErrors []BindError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(ve))
	for i, e := range ve {
		msgs[i] = e.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Query 使用默认的查询参数解析器绑定查询参数到结构体
func Query(r *http.Request, v any) error {
	return NewQueryParser().Bind(r, v)
}
