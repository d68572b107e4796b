package binding

import (
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// QueryParser binds scalar query parameters into struct fields. A pointer
// field stays nil when its parameter is absent, so "not set" and "set to
// zero" stay distinguishable.
type QueryParser struct {
	tagName    string
	defaultTag string
}

// NewQueryParser 创建新的查询参数解析器
func NewQueryParser() *QueryParser {
	return &QueryParser{
		tagName:    "query",
		defaultTag: "default",
	}
}

func (qp *QueryParser) Name() string {
	return "query"
}

// Bind parses r's query into v and validates it.
func (qp *QueryParser) Bind(r *http.Request, v any) error {
	if err := qp.Parse(r.URL.Query(), v); err != nil {
		return err
	}
	return validateStruct(v)
}

// Parse 解析查询参数到结构体
func (qp *QueryParser) Parse(values url.Values, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return &BindError{Type: "bind_error", Message: "v must be a non-nil pointer"}
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return &BindError{Type: "bind_error", Message: "v must be a pointer to struct"}
	}

	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		name := qp.queryName(fieldType)
		if name == "-" {
			continue
		}

		raw, exists := values[name]
		if !exists || len(raw) == 0 {
			def, ok := fieldType.Tag.Lookup(qp.defaultTag)
			if !ok {
				continue
			}
			raw = []string{def}
		}
		if err := setField(field, raw[0], name); err != nil {
			return err
		}
	}
	return nil
}

// queryName 获取字段对应的查询参数名: query 标签, json 标签, 小写字段名
func (qp *QueryParser) queryName(fieldType reflect.StructField) string {
	for _, tag := range []string{qp.tagName, "json"} {
		if value := fieldType.Tag.Get(tag); value != "" {
			return strings.Split(value, ",")[0]
		}
	}
	return strings.ToLower(fieldType.Name)
}

// setField 根据字段类型设置值
func setField(field reflect.Value, value, name string) error {
	if field.Kind() == reflect.Ptr {
		elem := reflect.New(field.Type().Elem())
		if err := setField(elem.Elem(), value, name); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return &BindError{Type: "bind_error", Field: name, Message: "must be an integer"}
		}
		field.SetInt(v)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return &BindError{Type: "bind_error", Field: name, Message: "must be an unsigned integer"}
		}
		field.SetUint(v)

	case reflect.Bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return &BindError{Type: "bind_error", Field: name, Message: "must be a boolean"}
		}
		field.SetBool(v)

	default:
		return &BindError{Type: "bind_error", Field: name, Message: "has unsupported type " + field.Kind().String()}
	}
	return nil
}
