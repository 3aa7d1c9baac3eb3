package lifecycle

import (
	"context"
	"fmt"

	"csctester/internal/expect"
	"csctester/internal/model"
	"csctester/internal/severity"
)

const (
	listPageSize = 64
	// 分页一致性检查：用较小的页大小最多请求的页数
	paginationIterations = 5
)

// listTest 不同 maxResults 的列表请求，随后完整枚举并检查分页一致性
func (o *Orchestrator) listTest(ctx context.Context) ([]string, error) {
	headers, err := o.session.bearer()
	if err != nil {
		return nil, err
	}

	var cases []model.TestCase
	for _, n := range []int{1, 5, 20} {
		cases = append(cases, model.TestCase{
			Name:    fmt.Sprintf("maxResults %d", n),
			Headers: headers,
			Body:    map[string]interface{}{"maxResults": n},
			Expected: []expect.Condition{
				expect.Present("credentialIDs"),
				expect.Absent("error"),
				expect.LengthLess("credentialIDs", n+1),
			},
		})
	}
	o.runner.Run(ctx, model.TestSuite{Operation: "credentials/list", Cases: cases})

	ids := o.listAll(ctx, listPageSize, o.opts.PageBudget)
	o.session.CredentialIDs = ids
	if len(ids) > 1 && ctx.Err() == nil {
		o.paginationTest(ctx, len(ids))
	}
	return ids, nil
}

// paginationTest 用 ceil(n/5)+1 的页大小最多取 5 页，数量必须与完整枚举一致
func (o *Orchestrator) paginationTest(ctx context.Context, total int) {
	pageSize := (total+paginationIterations-1)/paginationIterations + 1
	got := o.listAll(ctx, pageSize, paginationIterations)

	result := model.TestResult{
		Suite:          "credentials/list",
		Operation:      "credentials/list",
		CaseName:       "pagination test",
		Method:         "POST",
		RequestBody:    fmt.Sprintf(`{"maxResults": %d}`, pageSize),
		Success:        len(got) == total,
		ActualResult:   fmt.Sprintf("%d credentials in %d pages of %d", len(got), paginationIterations, pageSize),
		ExpectedResult: fmt.Sprintf("%d credentials", total),
		Severity:       severity.Minor,
	}
	o.runner.Report(result)
}

// listAll 按 nextPageToken 翻页，直到没有令牌、出现错误或请求数达到 maxPages
func (o *Orchestrator) listAll(ctx context.Context, pageSize, maxPages int) []string {
	headers, err := o.session.bearer()
	if err != nil {
		return nil
	}

	var ids []string
	body := map[string]interface{}{"maxResults": pageSize}
	for page := 0; page < maxPages; page++ {
		if ctx.Err() != nil {
			break
		}
		doc, err := o.runner.Call(ctx, "credentials/list", headers, body)
		if err != nil {
			o.log.Error("invalid response while iterating credentials list", "error", err)
			break
		}
		if expect.Has(doc, "error") {
			o.log.Warn("credentials list returned an error", "page", page+1, "error", expect.String(doc, "error"))
			break
		}
		if node, ok := expect.Resolve(doc, "credentialIDs"); ok {
			if list, ok := node.([]interface{}); ok {
				for _, id := range list {
					if s, ok := id.(string); ok {
						ids = append(ids, s)
					}
				}
			}
		}
		next := expect.String(doc, "nextPageToken")
		if next == "" {
			break
		}
		body["pageToken"] = next
	}
	return ids
}
