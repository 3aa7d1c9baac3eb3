package reporter

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"csctester/internal/model"
	"csctester/internal/severity"
)

type Options struct {
	// Colorize 是否输出 ANSI 颜色
	Colorize bool
	// ReportPath Excel 报告路径，为空时不生成
	ReportPath string
	// RunID 写入工作表名称
	RunID string
}

type Reporter struct {
	out     io.Writer
	opts    Options
	results []model.TestResult
}

func New(out io.Writer, opts Options) *Reporter {
	return &Reporter{out: out, opts: opts}
}

// Record 输出单个用例结果并保存，用于最终汇总
func (r *Reporter) Record(result model.TestResult) {
	r.results = append(r.results, result)

	if result.Success {
		fmt.Fprintf(r.out, "[ %s ] %s\n", r.highlight("OK", text.FgGreen, text.Bold), result.Title())
	} else {
		r.printFailure(result)
	}
	for _, w := range result.Warnings {
		fmt.Fprintln(r.out, r.highlight(w, text.FgYellow, text.Bold))
	}
}

func (r *Reporter) printFailure(result model.TestResult) {
	if result.Error != "" {
		fmt.Fprintf(r.out, "[ %s ] %s: %s\n", r.highlight("KO", text.FgRed, text.Bold), result.Title(), r.highlight(result.Error, text.FgYellow))
		if result.ActualResult == "" {
			return
		}
	} else {
		fmt.Fprintf(r.out, "[ %s ] %s\n", r.highlight("KO", text.FgRed, text.Bold), result.Title())
	}

	if result.RequestBody != "" {
		fmt.Fprintf(r.out, "%s %s\n", r.highlight(" → ", text.Bold), r.highlight(result.RequestBody, text.FgHiRed))
	}
	fmt.Fprintf(r.out, "%s %s\n", r.highlight(" ← ", text.Bold), r.highlight(result.ActualResult, text.FgHiRed))
	if result.ExpectedResult != "" && result.ExpectedResult != "null" {
		fmt.Fprintf(r.out, "%s %s\n\n", r.highlight(" Expected result rules:", text.Bold), r.highlight(result.ExpectedResult, text.FgHiRed))
	}
}

// Notice 输出不属于任何用例的提示
func (r *Reporter) Notice(msg string) {
	fmt.Fprintln(r.out, r.highlight(msg, text.FgYellow, text.Bold))
}

func (r *Reporter) Results() []model.TestResult {
	return r.results
}

// GenerateReport 输出控制台汇总，并在配置了路径时写入 Excel
func (r *Reporter) GenerateReport(duration time.Duration, level severity.Level) error {
	r.printConsoleReport(duration, level)
	if r.opts.ReportPath == "" {
		return nil
	}
	return r.generateExcelReport(duration, level)
}

func (r *Reporter) printConsoleReport(duration time.Duration, level severity.Level) {
	totalTests := len(r.results)
	failedTests := countFailed(r.results)

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Test summary")
	t.AppendRow(table.Row{"Total time", fmt.Sprintf("%.3fms", float64(duration.Microseconds())/1000)})
	t.AppendRow(table.Row{"Total cases", totalTests})
	failed := fmt.Sprint(failedTests)
	if failedTests > 0 {
		failed = r.highlight(failed, text.FgRed)
	}
	t.AppendRow(table.Row{"Failed cases", failed})
	t.AppendRow(table.Row{"Highest severity", fmt.Sprintf("%s (exit %d)", level, level.ExitCode())})
	fmt.Fprintln(r.out)
	t.Render()
}

func (r *Reporter) highlight(msg string, colors ...text.Color) string {
	if !r.opts.Colorize {
		return msg
	}
	return text.Colors(colors).Sprint(msg)
}

func countFailed(results []model.TestResult) int {
	failed := 0
	for _, result := range results {
		if !result.Success {
			failed++
		}
	}
	return failed
}
