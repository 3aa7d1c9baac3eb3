package expect

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
)

var (
	// ErrUnknownKind 条件类型无法识别，属于配置错误
	ErrUnknownKind = errors.New("unknown condition kind")
	// ErrInvalidRule 条件参数无法使用（例如非法正则）
	ErrInvalidRule = errors.New("invalid condition rule")
)

// Evaluate 对文档执行单个条件，返回 true 表示条件失败。
// 返回错误时条件既不算通过也不算失败，由调用方跳过。
func Evaluate(doc interface{}, c Condition) (bool, error) {
	switch c.Kind {
	case KindPresent:
		return failPresent(doc, c.Paths), nil
	case KindAbsent:
		return failAbsent(doc, c.Paths), nil
	case KindMatches:
		return failMatches(doc, c.Entries)
	case KindNotEquals:
		return failNotEquals(doc, c.Entries), nil
	case KindLengthLess:
		return failLength(doc, c.Entries, func(n, bound float64) bool { return n < bound })
	case KindLengthEqual:
		return failLength(doc, c.Entries, func(n, bound float64) bool { return n == bound })
	case KindLengthGreater:
		return failLength(doc, c.Entries, func(n, bound float64) bool { return n > bound })
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, c.name())
	}
}

func failPresent(doc interface{}, paths []string) bool {
	for _, p := range paths {
		if !Has(doc, p) {
			return true
		}
	}
	return false
}

func failAbsent(doc interface{}, paths []string) bool {
	for _, p := range paths {
		if Has(doc, p) {
			return true
		}
	}
	return false
}

func failMatches(doc interface{}, entries []Entry) (bool, error) {
	for _, e := range entries {
		node, ok := lookup(doc, e.Path)
		if !ok || falsy(node) {
			return true, nil
		}

		if expected, isList := asList(e.Value); isList {
			actual, ok := node.([]interface{})
			if !ok || len(actual) != len(expected) {
				return true, nil
			}
			for i := range expected {
				if !jsonEqual(actual[i], expected[i]) {
					return true, nil
				}
			}
			continue
		}

		re, err := anchored(e.Value)
		if err != nil {
			return false, err
		}
		s, ok := scalarString(node)
		if !ok || !re.MatchString(s) {
			return true, nil
		}
	}
	return false, nil
}

// 只比较顶层字段
func failNotEquals(doc interface{}, entries []Entry) bool {
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return false
	}
	for _, e := range entries {
		if actual, exists := obj[e.Path]; exists && jsonEqual(actual, e.Value) {
			return true
		}
	}
	return false
}

func failLength(doc interface{}, entries []Entry, accept func(n, bound float64) bool) (bool, error) {
	for _, e := range entries {
		bound, ok := number(e.Value)
		if !ok {
			return false, fmt.Errorf("%w: bound for %q is not a number: %v", ErrInvalidRule, e.Path, e.Value)
		}
		node, _ := lookup(doc, e.Path)
		list, isList := node.([]interface{})
		if !isList || !accept(float64(len(list)), bound) {
			return true, nil
		}
	}
	return false, nil
}

func anchored(pattern interface{}) (*regexp.Regexp, error) {
	s, ok := scalarString(pattern)
	if !ok {
		return nil, fmt.Errorf("%w: pattern %v is not a scalar", ErrInvalidRule, pattern)
	}
	re, err := regexp.Compile("^(?:" + s + ")")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return re, nil
}

func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool, float64, float32, int, int64, int32, uint, uint64, json.Number:
		return fmt.Sprint(t), true
	default:
		return "", false
	}
}

func asList(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func number(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	default:
		return 0, false
	}
}

func falsy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}

// jsonEqual 比较解码后的 JSON 值与 Go 字面量（int 与 float64 视为同一数字）
func jsonEqual(actual, expected interface{}) bool {
	if reflect.DeepEqual(actual, expected) {
		return true
	}
	raw, err := json.Marshal(expected)
	if err != nil {
		return false
	}
	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return false
	}
	return reflect.DeepEqual(actual, normalized)
}
