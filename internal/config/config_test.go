package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csctester/internal/expect"
	"csctester/internal/severity"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultEnvironment, cfg.Environment)
	assert.Equal(t, DefaultPIN, cfg.DefaultPIN)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 17, cfg.NumSignatures)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.True(t, cfg.TestCredentials)
	assert.True(t, cfg.TestInvalidCredentials)
	assert.Nil(t, cfg.Colorize)
	assert.NotEmpty(t, cfg.LogoURLs)

	url, err := cfg.ResolveBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "https://services.time4mind.com/csc/v0", url)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
environments:
  test: https://csc.test.example.com/csc/v0
  prod: https://csc.example.com/csc/v0
environment: test
username: tester
password: secret
default_pin: ""
timeout: 5s
insecure_skip_verify: false
quiet: true
test_invalid_credentials: false
num_signatures: 3
report_path: report.xlsx
colorize: false
expected_key_algorithms: ["1.2.840.113549.1.1.11"]
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"prod", "test"}, cfg.EnvironmentNames())
	url, err := cfg.ResolveBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "https://csc.test.example.com/csc/v0", url)

	assert.Equal(t, "tester", cfg.Username)
	assert.Equal(t, "", cfg.DefaultPIN)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.True(t, cfg.Quiet)
	assert.True(t, cfg.TestCredentials)
	assert.False(t, cfg.TestInvalidCredentials)
	assert.Equal(t, 3, cfg.NumSignatures)
	assert.Equal(t, "report.xlsx", cfg.ReportPath)
	require.NotNil(t, cfg.Colorize)
	assert.False(t, *cfg.Colorize)
	assert.Equal(t, []string{"1.2.840.113549.1.1.11"}, cfg.ExpectedKeyAlgorithms)
}

func TestParse_InvalidTimeoutFallsBack(t *testing.T) {
	cfg, err := Parse([]byte("timeout: soon\n"))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestParse_UnexpectedFields(t *testing.T) {
	_, err := Parse([]byte("usernme: tester\nconcurrent: 4\n"))
	assert.EqualError(t, err, "配置文件包含未知字段: concurrent, usernme")
}

func TestParse_BaseURLOverridesEnvironment(t *testing.T) {
	cfg, err := Parse([]byte("base_url: http://localhost:8080/csc/v0\nenvironment: missing\n"))
	require.NoError(t, err)
	url, err := cfg.ResolveBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/csc/v0", url)

	cfg.BaseURL = ""
	_, err = cfg.ResolveBaseURL()
	assert.EqualError(t, err, `未知的环境 "missing"`)
}

func TestParse_Suites(t *testing.T) {
	cfg, err := Parse([]byte(`
suites:
  - operation: info
    name: info (custom)
    cases:
      - name: french
        body:
          lang: fr-FR
        severity: critical
        expect:
          - condition: not in
            arg: [error]
          - condition: eq
            arg:
              lang: fr-FR
  - operation: credentials/list
    cases:
      - bearer: true
        body: {maxResults: 2}
        expect:
          - condition: "<"
            arg: {credentialIDs: 3}
`))
	require.NoError(t, err)
	require.Len(t, cfg.Suites, 2)

	info := cfg.Suites[0]
	assert.Equal(t, "info (custom)", info.Name())
	require.Len(t, info.Cases, 1)
	tc := info.Cases[0]
	assert.Equal(t, severity.Critical, tc.Severity)
	assert.Equal(t, map[string]interface{}{"lang": "fr-FR"}, tc.Body)
	require.Len(t, tc.Expected, 2)
	assert.Equal(t, expect.KindAbsent, tc.Expected[0].Kind)
	assert.Equal(t, []string{"error"}, tc.Expected[0].Paths)
	assert.Equal(t, expect.KindMatches, tc.Expected[1].Kind)

	list := cfg.Suites[1]
	assert.Equal(t, "credentials/list", list.Name())
	assert.True(t, list.Cases[0].UseSession)
	assert.Equal(t, severity.Minor, list.Cases[0].FailureSeverity())
	assert.Equal(t, expect.KindLengthLess, list.Cases[0].Expected[0].Kind)
}

func TestParse_InvalidSuite(t *testing.T) {
	_, err := Parse([]byte("suites:\n  - cases: []\n"))
	assert.ErrorContains(t, err, "suites[0]")

	_, err = Parse([]byte("suites:\n  - operation: info\n    cases:\n      - severity: fatal\n"))
	assert.ErrorContains(t, err, "cases[0]")

	_, err = Parse([]byte("suites:\n  - operation: info\n    cases:\n      - expect:\n          - condition: in\n            arg: {a: 1}\n"))
	assert.ErrorContains(t, err, "expect[0]")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("username: someone\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "someone", cfg.Username)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
