package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csctester/internal/expect"
	"csctester/internal/model"
	"csctester/internal/severity"
	"csctester/internal/transport"
)

type fakeTransport struct {
	bodies   []string
	err      error
	requests []transport.Request
}

func (f *fakeTransport) Send(_ context.Context, req transport.Request) (*transport.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	body := f.bodies[0]
	f.bodies = f.bodies[1:]
	return &transport.Response{StatusCode: 200, Body: []byte(body)}, nil
}

func (f *fakeTransport) Fetch(context.Context, string, bool) (*transport.Response, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTransport) URL(operation string) string {
	return "https://csc.example.com/csc/v0/" + operation
}

type memRecorder struct {
	results []model.TestResult
}

func (m *memRecorder) Record(r model.TestResult) {
	m.results = append(m.results, r)
}

func newTestRunner(ft *fakeTransport) (*Runner, *severity.Tracker, *memRecorder) {
	tracker := &severity.Tracker{}
	rec := &memRecorder{}
	return New(ft, tracker, rec, nil), tracker, rec
}

func TestRun_ValidatesEachCase(t *testing.T) {
	ft := &fakeTransport{bodies: []string{
		`{"lang":"en-US"}`,
		`{"lang":"en-US"}`,
	}}
	r, tracker, rec := newTestRunner(ft)

	docs := r.Run(context.Background(), model.TestSuite{
		Operation: "info",
		Cases: []model.TestCase{
			{Name: "no arguments", Expected: []expect.Condition{expect.Absent("error"), expect.Equals("lang", "en-US")}},
			{Name: "IT language", Body: map[string]interface{}{"lang": "it-IT"}, Expected: []expect.Condition{expect.Equals("lang", "it-IT")}},
		},
	})

	require.Len(t, docs, 2)
	require.Len(t, rec.results, 2)
	assert.True(t, rec.results[0].Success)
	assert.Equal(t, "GET", rec.results[0].Method)
	assert.False(t, rec.results[1].Success)
	assert.Equal(t, "POST", rec.results[1].Method)
	assert.Equal(t, "info - IT language", rec.results[1].Title())
	assert.Equal(t, severity.Minor, tracker.Max())

	// 失败的用例也返回响应
	assert.Equal(t, map[string]interface{}{"lang": "en-US"}, docs[1])
}

func TestRun_EmptyBodyIsEmptyObject(t *testing.T) {
	ft := &fakeTransport{bodies: []string{""}}
	r, tracker, rec := newTestRunner(ft)

	docs := r.Run(context.Background(), model.TestSuite{
		Operation: "auth/revoke",
		Cases:     []model.TestCase{{Body: map[string]interface{}{"token": "t"}, Expected: []expect.Condition{expect.Absent("error")}}},
	})

	require.Len(t, docs, 1)
	assert.Equal(t, map[string]interface{}{}, docs[0])
	assert.True(t, rec.results[0].Success)
	assert.Equal(t, severity.None, tracker.Max())
}

func TestRun_BadJSONAbortsSuite(t *testing.T) {
	ft := &fakeTransport{bodies: []string{`{"ok":true}`, `{bad json`, `{"ok":true}`}}
	r, tracker, rec := newTestRunner(ft)

	docs := r.Run(context.Background(), model.TestSuite{
		Operation: "credentials/list",
		Cases: []model.TestCase{
			{Name: "first"},
			{Name: "second", Severity: severity.Critical},
			{Name: "third"},
		},
	})

	assert.Len(t, ft.requests, 2)
	require.Len(t, docs, 2)
	assert.Equal(t, map[string]interface{}{}, docs[1])
	require.Len(t, rec.results, 2)
	assert.False(t, rec.results[1].Success)
	assert.Equal(t, "cannot parse JSON response", rec.results[1].Error)
	assert.Equal(t, severity.Critical, tracker.Max())
}

func TestRun_TransportErrorAbortsSuite(t *testing.T) {
	ft := &fakeTransport{err: errors.New("connection refused")}
	r, tracker, rec := newTestRunner(ft)

	docs := r.Run(context.Background(), model.TestSuite{
		Operation: "info",
		Cases:     []model.TestCase{{Name: "a"}, {Name: "b"}},
	})

	assert.Len(t, ft.requests, 1)
	assert.Len(t, docs, 1)
	require.Len(t, rec.results, 1)
	assert.Contains(t, rec.results[0].Error, "connection refused")
	assert.Equal(t, severity.Minor, tracker.Max())
}

func TestRun_CancelledContext(t *testing.T) {
	ft := &fakeTransport{bodies: []string{`{}`}}
	r, _, rec := newTestRunner(ft)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	docs := r.Run(ctx, model.TestSuite{Operation: "info", Cases: []model.TestCase{{}}})

	assert.Empty(t, docs)
	assert.Empty(t, ft.requests)
	assert.Empty(t, rec.results)
}

func TestRun_UnknownConditionIsSkipped(t *testing.T) {
	ft := &fakeTransport{bodies: []string{`{"timestamp":"x"}`}}
	r, _, rec := newTestRunner(ft)

	r.Run(context.Background(), model.TestSuite{
		Operation: "signatures/timestamp",
		Cases: []model.TestCase{{
			Expected: []expect.Condition{{Name: "contains", Paths: []string{"timestamp"}}, expect.Present("timestamp")},
		}},
	})

	require.Len(t, rec.results, 1)
	assert.True(t, rec.results[0].Success)
	require.Len(t, rec.results[0].Warnings, 1)
	assert.Contains(t, rec.results[0].Warnings[0], "unknown condition kind")
}

func TestRun_CurlAndHeaders(t *testing.T) {
	ft := &fakeTransport{bodies: []string{`{}`}}
	r, _, rec := newTestRunner(ft)

	r.Run(context.Background(), model.TestSuite{
		Operation: "auth/login",
		Cases: []model.TestCase{{
			Headers: map[string]string{"Authorization": "Basic eA=="},
			Body:    map[string]interface{}{"rememberMe": true},
		}},
	})

	require.Len(t, rec.results, 1)
	assert.Equal(t, `curl -X POST -H 'Authorization: Basic eA==' -H 'Content-Type: application/json' -d '{"rememberMe":true}' 'https://csc.example.com/csc/v0/auth/login'`, rec.results[0].Curl)
	assert.Equal(t, "auth/login test 1", rec.results[0].Title())
}

func TestCall(t *testing.T) {
	ft := &fakeTransport{bodies: []string{`{"credentialIDs":["a"]}`, `nope`}}
	r, _, _ := newTestRunner(ft)

	doc, err := r.Call(context.Background(), "credentials/list", nil, map[string]interface{}{"maxResults": 1})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a"}, doc.(map[string]interface{})["credentialIDs"])

	_, err = r.Call(context.Background(), "credentials/list", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestDecode(t *testing.T) {
	doc, err := Decode([]byte("  \n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{}, doc)

	_, err = Decode([]byte(`{bad json`))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}
