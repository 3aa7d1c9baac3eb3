package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const contentTypeJSON = "application/json"

// Request 一次接口调用。Body 为 nil 时发送 GET，否则以 JSON 发送 POST。
type Request struct {
	Operation string
	Headers   map[string]string
	Body      interface{}
}

func (r Request) Method() string {
	if r.Body == nil {
		return http.MethodGet
	}
	return http.MethodPost
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport 发送 JSON 请求并返回原始响应
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
	// Fetch 直接请求绝对 URL（用于检查 logo）
	Fetch(ctx context.Context, rawURL string, followRedirects bool) (*Response, error)
	URL(operation string) string
}

// Client 基于 net/http 的实现
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string, timeout time.Duration, insecureSkipVerify bool) *Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
	}
}

func (c *Client) URL(operation string) string {
	return c.BaseURL + "/" + strings.TrimLeft(operation, "/")
}

func (c *Client) Send(ctx context.Context, r Request) (*Response, error) {
	body, err := EncodeBody(r.Body)
	if err != nil {
		return nil, err
	}

	uri := c.URL(r.Operation)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method(), uri, reader)
	if err != nil {
		return nil, fmt.Errorf("%s %q 创建请求失败: %w", r.Method(), uri, err)
	}
	for k, v := range MergeHeaders(r.Headers) {
		req.Header.Set(k, v)
	}

	return c.do(req)
}

func (c *Client) Fetch(ctx context.Context, rawURL string, followRedirects bool) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("GET %q 创建请求失败: %w", rawURL, err)
	}

	if followRedirects {
		return c.do(req)
	}
	hc := *c.HTTPClient
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return doWith(&hc, req)
}

func (c *Client) do(req *http.Request) (*Response, error) {
	return doWith(c.HTTPClient, req)
}

func doWith(hc *http.Client, req *http.Request) (*Response, error) {
	res, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %q 读取响应失败: %w", req.Method, req.URL, err)
	}
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: body}, nil
}

// EncodeBody 序列化请求体，nil 返回 nil
func EncodeBody(body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("请求体编码失败: %w", err)
	}
	return raw, nil
}

// MergeHeaders 在默认 Content-Type 之上叠加用例请求头
func MergeHeaders(headers map[string]string) map[string]string {
	merged := map[string]string{"Content-Type": contentTypeJSON}
	for k, v := range headers {
		merged[http.CanonicalHeaderKey(k)] = v
	}
	return merged
}

// Curl 将请求转换为 curl 命令
func Curl(method, uri string, headers map[string]string, body []byte) string {
	curl := fmt.Sprintf("curl -X %s", method)

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		curl += fmt.Sprintf(" -H '%s: %s'", k, headers[k])
	}

	if len(body) > 0 {
		curl += fmt.Sprintf(" -d '%s'", body)
	}

	curl += fmt.Sprintf(" '%s'", uri)
	return curl
}
