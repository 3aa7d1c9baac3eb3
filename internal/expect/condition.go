package expect

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Kind 条件类型
type Kind int

const (
	KindUnknown Kind = iota
	KindPresent
	KindAbsent
	KindMatches
	KindNotEquals
	KindLengthLess
	KindLengthEqual
	KindLengthGreater
)

var kindNames = map[Kind]string{
	KindPresent:       "present",
	KindAbsent:        "absent",
	KindMatches:       "matches",
	KindNotEquals:     "notEquals",
	KindLengthLess:    "lengthLess",
	KindLengthEqual:   "lengthEqual",
	KindLengthGreater: "lengthGreater",
}

// 兼容旧规则写法
var kindAliases = map[string]Kind{
	"in":     KindPresent,
	"not in": KindAbsent,
	"eq":     KindMatches,
	"not eq": KindNotEquals,
	"<":      KindLengthLess,
	"=":      KindLengthEqual,
	">":      KindLengthGreater,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// usesPaths 判断该类型的参数是路径列表还是 路径->期望值 映射
func (k Kind) usesPaths() bool {
	return k == KindPresent || k == KindAbsent
}

// ParseKind 解析条件名称，无法识别时返回 KindUnknown
func ParseKind(name string) Kind {
	for kind, n := range kindNames {
		if n == name {
			return kind
		}
	}
	if kind, ok := kindAliases[strings.TrimSpace(name)]; ok {
		return kind
	}
	return KindUnknown
}

// Entry 路径与期望值（或长度界限）
type Entry struct {
	Path  string
	Value interface{}
}

// Condition 一条期望规则
type Condition struct {
	Kind Kind
	// Name 原始条件名称，用于报告未知类型
	Name    string
	Paths   []string
	Entries []Entry
}

func (c Condition) name() string {
	if c.Kind == KindUnknown && c.Name != "" {
		return c.Name
	}
	return c.Kind.String()
}

// Empty 条件没有任何目标时恒为通过
func (c Condition) Empty() bool {
	return len(c.Paths) == 0 && len(c.Entries) == 0
}

// MarshalJSON 输出 {"condition": ..., "arg": ...}，用于失败报告
func (c Condition) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{"condition": c.name()}
	switch {
	case len(c.Entries) > 0:
		arg := make(map[string]interface{}, len(c.Entries))
		for _, e := range c.Entries {
			arg[e.Path] = e.Value
		}
		out["arg"] = arg
	case len(c.Paths) > 0:
		out["arg"] = c.Paths
	default:
		out["arg"] = nil
	}
	return json.Marshal(out)
}

func Present(paths ...string) Condition {
	return Condition{Kind: KindPresent, Paths: paths}
}

func Absent(paths ...string) Condition {
	return Condition{Kind: KindAbsent, Paths: paths}
}

// Match 构造 matches/notEquals 使用的条目
func Match(path string, expected interface{}) Entry {
	return Entry{Path: path, Value: expected}
}

// Matches 期望值为字符串时按正则（从开头匹配）比较，为列表时逐个元素比较
func Matches(entries ...Entry) Condition {
	return Condition{Kind: KindMatches, Entries: entries}
}

// Equals 单个字段的 matches 简写
func Equals(path string, expected interface{}) Condition {
	return Matches(Match(path, expected))
}

func NotEquals(entries ...Entry) Condition {
	return Condition{Kind: KindNotEquals, Entries: entries}
}

func LengthLess(path string, bound int) Condition {
	return Condition{Kind: KindLengthLess, Entries: []Entry{{Path: path, Value: bound}}}
}

func LengthEqual(path string, bound int) Condition {
	return Condition{Kind: KindLengthEqual, Entries: []Entry{{Path: path, Value: bound}}}
}

func LengthGreater(path string, bound int) Condition {
	return Condition{Kind: KindLengthGreater, Entries: []Entry{{Path: path, Value: bound}}}
}

// FromMap 从配置中的 {condition, arg} 构造条件。
// arg 为映射时按键排序，保证报告输出稳定。
func FromMap(raw map[string]interface{}) (Condition, error) {
	name, _ := raw["condition"].(string)
	if name == "" {
		return Condition{}, fmt.Errorf("条件缺少 condition 字段")
	}
	c := Condition{Kind: ParseKind(name), Name: name}

	switch arg := raw["arg"].(type) {
	case nil:
	case []interface{}:
		for _, p := range arg {
			s, ok := p.(string)
			if !ok {
				return Condition{}, fmt.Errorf("条件 %q 的路径必须是字符串: %v", name, p)
			}
			c.Paths = append(c.Paths, s)
		}
	case []string:
		c.Paths = append(c.Paths, arg...)
	case map[string]interface{}:
		keys := make([]string, 0, len(arg))
		for k := range arg {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			c.Entries = append(c.Entries, Entry{Path: k, Value: arg[k]})
		}
	default:
		return Condition{}, fmt.Errorf("条件 %q 的 arg 类型不支持: %T", name, arg)
	}

	if c.Kind != KindUnknown {
		if c.Kind.usesPaths() && len(c.Entries) > 0 {
			return Condition{}, fmt.Errorf("条件 %q 需要路径列表", name)
		}
		if !c.Kind.usesPaths() && len(c.Paths) > 0 {
			return Condition{}, fmt.Errorf("条件 %q 需要 路径->值 映射", name)
		}
	}
	return c, nil
}
