package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"csctester/internal/expect"
	"csctester/internal/model"
	"csctester/internal/severity"
	"csctester/internal/transport"
)

// ErrInvalidJSON 响应体不是合法的 JSON
var ErrInvalidJSON = errors.New("cannot parse JSON response")

// Recorder 接收每个用例的执行结果
type Recorder interface {
	Record(result model.TestResult)
}

type Runner struct {
	transport transport.Transport
	validator *expect.Validator
	tracker   *severity.Tracker
	recorder  Recorder
	log       *slog.Logger
}

func New(t transport.Transport, tracker *severity.Tracker, recorder Recorder, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		transport: t,
		validator: expect.NewValidator(log),
		tracker:   tracker,
		recorder:  recorder,
		log:       log,
	}
}

func (r *Runner) Transport() transport.Transport {
	return r.transport
}

func (r *Runner) Tracker() *severity.Tracker {
	return r.tracker
}

// Run 按顺序执行测试集，返回每个已执行用例的响应文档（失败的用例也包含在内）。
// 传输错误或 JSON 解析失败时追加一个空对象并终止该测试集。
func (r *Runner) Run(ctx context.Context, suite model.TestSuite) []interface{} {
	docs := make([]interface{}, 0, len(suite.Cases))
	for i, tc := range suite.Cases {
		if ctx.Err() != nil {
			r.log.Warn("suite interrupted", "suite", suite.Name(), "remaining", len(suite.Cases)-i)
			break
		}
		doc, ok := r.executeTest(ctx, suite, i+1, tc)
		docs = append(docs, doc)
		if !ok {
			break
		}
	}
	return docs
}

// Report 记录一个结果，失败时提升严重级别
func (r *Runner) Report(result model.TestResult) {
	if !result.Success {
		r.tracker.Raise(result.Severity)
	}
	r.recorder.Record(result)
}

// Call 直接调用接口并解析响应，不做校验
func (r *Runner) Call(ctx context.Context, operation string, headers map[string]string, body interface{}) (interface{}, error) {
	res, err := r.transport.Send(ctx, transport.Request{Operation: operation, Headers: headers, Body: body})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	doc, err := Decode(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return doc, nil
}

func (r *Runner) executeTest(ctx context.Context, suite model.TestSuite, caseNumber int, tc model.TestCase) (interface{}, bool) {
	req := transport.Request{Operation: suite.Operation, Headers: tc.Headers, Body: tc.Body}
	body, _ := transport.EncodeBody(tc.Body)
	curl := transport.Curl(req.Method(), r.transport.URL(suite.Operation), transport.MergeHeaders(tc.Headers), body)

	r.log.Debug("executing test case", "suite", suite.Name(), "case", caseNumber, "curl", curl)

	result := model.TestResult{
		CaseNumber:     caseNumber,
		Suite:          suite.Name(),
		Operation:      suite.Operation,
		CaseName:       tc.Name,
		Method:         req.Method(),
		RequestBody:    Pretty(tc.Body),
		ExpectedResult: Pretty(tc.Expected),
		Severity:       tc.FailureSeverity(),
		Curl:           curl,
	}

	start := time.Now()
	res, err := r.transport.Send(ctx, req)
	result.ExecutionTime = time.Since(start).Milliseconds()
	if err != nil {
		if ctx.Err() != nil {
			r.log.Warn("request interrupted", "suite", suite.Name(), "case", caseNumber)
			return map[string]interface{}{}, false
		}
		result.Error = fmt.Sprintf("request failed: %v", err)
		r.Report(result)
		return map[string]interface{}{}, false
	}

	doc, err := Decode(res.Body)
	if err != nil {
		result.Error = ErrInvalidJSON.Error()
		result.ActualResult = string(res.Body)
		r.Report(result)
		return map[string]interface{}{}, false
	}

	verdict := r.validator.Validate(doc, tc.Expected)
	for _, s := range verdict.Skipped {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Invalid condition check: %s - %v", Pretty(s.Condition), s.Err))
	}
	result.Success = verdict.Passed
	result.ActualResult = Pretty(doc)
	r.Report(result)

	return doc, true
}

// Decode 解析响应体，空响应视为空对象
func Decode(body []byte) (interface{}, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]interface{}{}, nil
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return doc, nil
}

// Pretty 以缩进格式输出 JSON，用于报告
func Pretty(v interface{}) string {
	if v == nil {
		return ""
	}
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
