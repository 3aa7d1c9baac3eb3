package expect

import (
	"log/slog"
)

// Skipped 因配置错误未执行的条件
type Skipped struct {
	Condition Condition
	Err       error
}

// Verdict 一次校验的结果
type Verdict struct {
	Passed bool
	// Failed 第一个失败的条件，之后的条件不再执行
	Failed  []Condition
	Skipped []Skipped
}

type Validator struct {
	log *slog.Logger
}

func NewValidator(log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{log: log}
}

// Validate 按顺序执行条件，遇到第一个失败即停止
func (v *Validator) Validate(doc interface{}, conditions []Condition) Verdict {
	verdict := Verdict{Passed: true}
	for _, c := range conditions {
		failed, err := Evaluate(doc, c)
		if err != nil {
			v.log.Error("invalid condition check", "condition", c.name(), "error", err)
			verdict.Skipped = append(verdict.Skipped, Skipped{Condition: c, Err: err})
			continue
		}
		if failed {
			verdict.Passed = false
			verdict.Failed = []Condition{c}
			break
		}
	}
	return verdict
}
