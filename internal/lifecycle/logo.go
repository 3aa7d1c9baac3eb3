package lifecycle

import (
	"context"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"

	"csctester/internal/expect"
	"csctester/internal/model"
	"csctester/internal/severity"
)

var logoContentTypes = map[string]string{
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"png":  "image/png",
}

// infoLogoTest info 响应中的 logo 必须不经重定向直接返回 PNG 或 JPEG
func (o *Orchestrator) infoLogoTest(ctx context.Context, info interface{}) {
	url := expect.String(info, "logo")
	if url == "" {
		o.notify.Notice("Logo URL not present")
		return
	}

	result := model.TestResult{Suite: "info", Operation: "info", CaseName: "logo", Method: "GET", Severity: severity.Minor}
	res, err := o.runner.Transport().Fetch(ctx, url, false)
	switch {
	case err != nil:
		result.Error = fmt.Sprintf("logo request failed: %v", err)
	case res.StatusCode != 200:
		result.Error = fmt.Sprintf("status_code %d", res.StatusCode)
	default:
		ct := mediaType(res.Header.Get("Content-Type"))
		if ct != "image/png" && ct != "image/jpeg" {
			result.Error = "content type " + ct
		} else {
			result.Success = true
		}
	}
	result.ActualResult = url
	o.runner.Report(result)
}

// CheckLogos 检查配置的 logo 地址：状态 200 且 Content-Type 与扩展名一致
func (o *Orchestrator) CheckLogos(ctx context.Context, urls map[string]string) {
	names := make([]string, 0, len(urls))
	for name := range urls {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		url := urls[name]
		result := model.TestResult{
			Suite:        "logo",
			Operation:    "logo",
			CaseName:     name,
			Method:       "GET",
			ActualResult: url,
			Severity:     severity.Minor,
		}
		if reason := o.checkLogo(ctx, url); reason != "" {
			result.Error = fmt.Sprintf("failed for URL [ %s ]: %s", url, reason)
		} else {
			result.Success = true
		}
		o.runner.Report(result)
	}
}

func (o *Orchestrator) checkLogo(ctx context.Context, url string) string {
	res, err := o.runner.Transport().Fetch(ctx, url, true)
	if err != nil {
		return fmt.Sprintf("request failed: %v", err)
	}
	if res.StatusCode != 200 {
		return fmt.Sprintf("status_code %d", res.StatusCode)
	}
	ct := mediaType(res.Header.Get("Content-Type"))
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(url), "."))
	want, ok := logoContentTypes[ext]
	if !ok {
		return "unable to check content-type " + ct
	}
	if ct != want {
		return "content-type " + ct
	}
	return ""
}

// mediaType 无法解析时返回原值，便于在错误信息中显示
func mediaType(contentType string) string {
	ct, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return ct
}
