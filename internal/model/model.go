package model

import (
	"strconv"

	"csctester/internal/expect"
	"csctester/internal/severity"
)

type TestCase struct {
	Name     string             // 测试用例名称（可选）
	Headers  map[string]string  // 请求头
	Body     interface{}        // 请求体，nil 表示不带请求体的 GET
	Expected []expect.Condition // 期望结果
	Severity severity.Level     // 失败时的严重级别，默认 Minor
	// UseSession 运行时附加 Bearer 会话令牌（配置文件中的自定义用例）
	UseSession bool
}

// FailureSeverity 返回用例失败时提升到的级别
func (tc TestCase) FailureSeverity() severity.Level {
	if tc.Severity == severity.None {
		return severity.Minor
	}
	return tc.Severity
}

type TestSuite struct {
	Operation string // 目标接口，例如 credentials/list
	Label     string // 报告中显示的名称（可选，默认 Operation）
	Cases     []TestCase
}

func (s TestSuite) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Operation
}

type TestResult struct {
	CaseNumber     int
	Suite          string
	Operation      string
	CaseName       string
	Method         string
	RequestBody    string
	Success        bool
	ActualResult   string
	ExpectedResult string
	Severity       severity.Level
	Error          string
	Warnings       []string
	Curl           string
	ExecutionTime  int64 // 毫秒
}

// Title 报告中的用例标题
func (r TestResult) Title() string {
	if r.CaseName != "" {
		return r.Suite + " - " + r.CaseName
	}
	if r.CaseNumber > 0 {
		return r.Suite + " test " + strconv.Itoa(r.CaseNumber)
	}
	return r.Suite
}
