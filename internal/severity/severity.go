package severity

import (
	"fmt"
	"strings"
)

// Level 错误严重级别，只允许升高
type Level int

const (
	None Level = iota
	// Minor 非核心检查失败
	Minor
	// Major 测试无法继续执行（例如登录失败）
	Major
	// Critical 核心签名功能受损
	Critical
)

var levelNames = map[Level]string{
	None:     "none",
	Minor:    "minor",
	Major:    "major",
	Critical: "critical",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ExitCode 进程退出码：0 通过，1 无法运行，2 次要检查失败，3 核心签名功能受损
func (l Level) ExitCode() int {
	switch l {
	case None:
		return 0
	case Minor:
		return 2
	case Major:
		return 1
	default:
		return 3
	}
}

// Parse 接受级别名称或对应的退出码
func Parse(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "minor", "2":
		return Minor, nil
	case "major", "1":
		return Major, nil
	case "critical", "3":
		return Critical, nil
	case "none", "0":
		return None, nil
	}
	return None, fmt.Errorf("无法识别的严重级别: %q", s)
}

// Tracker 记录整个运行过程中出现过的最高级别。
// 只由编排器所在的单一 goroutine 写入，不加锁。
type Tracker struct {
	max Level
}

func (t *Tracker) Raise(l Level) {
	if l > t.max {
		t.max = l
	}
}

func (t *Tracker) Max() Level {
	return t.max
}

func (t *Tracker) ExitCode() int {
	return t.max.ExitCode()
}
