package util

import (
	"fmt"
	"reflect"

	"github.com/jmespath/go-jmespath"
	"github.com/segmentio/encoding/json"

	"github.com/Nao-Mk2/isp-log-reporter/internal/model"
)

// ExtractValue evaluates the JMESPath expression against the action output and returns
// the first non-empty string representation found. Array results use the first non-empty
// element. When the expression yields nothing and the bundle holds exactly one entry,
// that entry's value is returned.
// Returns (value, true, nil) on success; ("", false, nil) if not found; or error.
func ExtractValue(bundle model.LogBundle, jmes string) (string, bool, error) {
	input := make(map[string]any, len(bundle))
	for k, v := range bundle {
		input[k] = v
	}

	res, err := jmespath.Search(jmes, input)
	if err != nil {
		return "", false, fmt.Errorf("jmespath search failed: %w", err)
	}
	if v, ok, err := stringify(res); err != nil || ok {
		return v, ok, err
	}

	if len(bundle) == 1 {
		for _, v := range bundle {
			if v != "" {
				return v, true, nil
			}
		}
	}
	return "", false, nil
}

func stringify(res any) (string, bool, error) {
	if isEmpty(res) {
		return "", false, nil
	}
	rv := reflect.ValueOf(res)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if v, ok, err := stringify(rv.Index(i).Interface()); err != nil || ok {
				return v, ok, err
			}
		}
		return "", false, nil
	}
	if s, ok := res.(string); ok {
		return s, true, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return "", false, fmt.Errorf("marshal result failed: %w", err)
	}
	if string(b) == "null" || string(b) == "{}" {
		return "", false, nil
	}
	return string(b), true, nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}
