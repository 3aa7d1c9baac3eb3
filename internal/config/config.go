package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"csctester/internal/expect"
	"csctester/internal/model"
	"csctester/internal/severity"
)

const (
	DefaultPath        = "csctester.yaml"
	DefaultEnvironment = "produzione"
	DefaultPIN         = "12345678"
	defaultTimeout     = 30 * time.Second
	defaultSignatures  = 17
)

// DefaultEnvironments 未配置 environments 时使用
var DefaultEnvironments = map[string]string{
	DefaultEnvironment: "https://services.time4mind.com/csc/v0",
}

// DefaultLogoURLs logo 命令默认检查的地址
var DefaultLogoURLs = map[string]string{
	"adobe-prod":      "https://services.time4mind.com/res_ext/vendors/adobe/csc_adobe.jpg",
	"ftn-prod":        "https://services.time4mind.com/res_ext/vendors/ftn/logo-en.png",
	"globalsign-prod": "https://services.time4mind.com/res_ext/vendors/globalsign/csc_globalsign.png",
	"intesi-prod":     "https://services.time4mind.com/res_ext/logo_IG_symbol.png",
}

// 辅助结构体，处理 YAML 中的可选字段和字符串形式的 timeout
type fileConfig struct {
	Environments           map[string]string      `mapstructure:"environments"`
	Environment            string                 `mapstructure:"environment"`
	BaseURL                string                 `mapstructure:"base_url"`
	Username               string                 `mapstructure:"username"`
	Password               string                 `mapstructure:"password"`
	SessionToken           string                 `mapstructure:"session_token"`
	DefaultPIN             *string                `mapstructure:"default_pin"`
	Timeout                string                 `mapstructure:"timeout"`
	InsecureSkipVerify     *bool                  `mapstructure:"insecure_skip_verify"`
	Quiet                  bool                   `mapstructure:"quiet"`
	TestCredentials        *bool                  `mapstructure:"test_credentials"`
	TestInvalidCredentials *bool                  `mapstructure:"test_invalid_credentials"`
	NumSignatures          int                    `mapstructure:"num_signatures"`
	ReportPath             string                 `mapstructure:"report_path"`
	LogPath                string                 `mapstructure:"log_path"`
	Colorize               *bool                  `mapstructure:"colorize"`
	ExpectedKeyAlgorithms  []string               `mapstructure:"expected_key_algorithms"`
	LogoURLs               map[string]string      `mapstructure:"logo_urls"`
	Suites                 []suiteConfig          `mapstructure:"suites"`
	Rest                   map[string]interface{} `mapstructure:",remain"`
}

type suiteConfig struct {
	Operation string       `mapstructure:"operation"`
	Name      string       `mapstructure:"name"`
	Cases     []caseConfig `mapstructure:"cases"`
}

type caseConfig struct {
	Name     string                   `mapstructure:"name"`
	Headers  map[string]string        `mapstructure:"headers"`
	Body     interface{}              `mapstructure:"body"`
	Severity string                   `mapstructure:"severity"`
	Bearer   bool                     `mapstructure:"bearer"`
	Expect   []map[string]interface{} `mapstructure:"expect"`
}

type Config struct {
	Environments           map[string]string
	Environment            string
	BaseURL                string
	Username               string
	Password               string
	SessionToken           string
	DefaultPIN             string
	Timeout                time.Duration
	InsecureSkipVerify     bool
	Quiet                  bool
	TestCredentials        bool
	TestInvalidCredentials bool
	NumSignatures          int
	ReportPath             string
	LogPath                string
	// Colorize 为 nil 时根据终端自动判断
	Colorize              *bool
	ExpectedKeyAlgorithms []string
	LogoURLs              map[string]string
	Suites                []model.TestSuite
}

// Default 没有配置文件时的配置
func Default() *Config {
	cfg, _ := build(fileConfig{})
	return cfg
}

// Load 读取 YAML 配置文件。path 为空时尝试默认文件，默认文件不存在不是错误。
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容，拒绝未知字段
func Parse(data []byte) (*Config, error) {
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	var fc fileConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &fc,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if len(fc.Rest) > 0 {
		var unexpected []string
		for k := range fc.Rest {
			unexpected = append(unexpected, k)
		}
		sort.Strings(unexpected)
		return nil, fmt.Errorf("配置文件包含未知字段: %s", strings.Join(unexpected, ", "))
	}

	return build(fc)
}

func build(fc fileConfig) (*Config, error) {
	// 解析 timeout 字符串，无效时使用默认值
	timeout, err := time.ParseDuration(fc.Timeout)
	if err != nil || timeout <= 0 {
		timeout = defaultTimeout
	}

	cfg := &Config{
		Environments:           fc.Environments,
		Environment:            fc.Environment,
		BaseURL:                fc.BaseURL,
		Username:               fc.Username,
		Password:               fc.Password,
		SessionToken:           fc.SessionToken,
		DefaultPIN:             DefaultPIN,
		Timeout:                timeout,
		InsecureSkipVerify:     boolOr(fc.InsecureSkipVerify, true),
		Quiet:                  fc.Quiet,
		TestCredentials:        boolOr(fc.TestCredentials, true),
		TestInvalidCredentials: boolOr(fc.TestInvalidCredentials, true),
		NumSignatures:          fc.NumSignatures,
		ReportPath:             fc.ReportPath,
		LogPath:                fc.LogPath,
		Colorize:               fc.Colorize,
		ExpectedKeyAlgorithms:  fc.ExpectedKeyAlgorithms,
		LogoURLs:               fc.LogoURLs,
	}

	// 设置默认值
	if fc.DefaultPIN != nil {
		cfg.DefaultPIN = *fc.DefaultPIN
	}
	if len(cfg.Environments) == 0 {
		cfg.Environments = DefaultEnvironments
	}
	if cfg.Environment == "" {
		cfg.Environment = DefaultEnvironment
	}
	if cfg.NumSignatures <= 0 {
		cfg.NumSignatures = defaultSignatures
	}
	if len(cfg.LogoURLs) == 0 {
		cfg.LogoURLs = DefaultLogoURLs
	}

	for i, sc := range fc.Suites {
		suite, err := sc.toSuite()
		if err != nil {
			return nil, fmt.Errorf("suites[%d]: %w", i, err)
		}
		cfg.Suites = append(cfg.Suites, suite)
	}
	return cfg, nil
}

// ResolveBaseURL base_url 优先，否则使用所选环境的地址
func (c *Config) ResolveBaseURL() (string, error) {
	if c.BaseURL != "" {
		return c.BaseURL, nil
	}
	url, ok := c.Environments[c.Environment]
	if !ok {
		return "", fmt.Errorf("未知的环境 %q", c.Environment)
	}
	return url, nil
}

// EnvironmentNames 排序后的环境名称
func (c *Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (sc suiteConfig) toSuite() (model.TestSuite, error) {
	if sc.Operation == "" {
		return model.TestSuite{}, errors.New("测试集缺少 operation")
	}
	suite := model.TestSuite{Operation: sc.Operation, Label: sc.Name}
	for j, cc := range sc.Cases {
		level, err := severity.Parse(cc.Severity)
		if err != nil {
			return model.TestSuite{}, fmt.Errorf("cases[%d]: %w", j, err)
		}
		tc := model.TestCase{
			Name:       cc.Name,
			Headers:    cc.Headers,
			Body:       cc.Body,
			Severity:   level,
			UseSession: cc.Bearer,
		}
		for k, raw := range cc.Expect {
			cond, err := expect.FromMap(raw)
			if err != nil {
				return model.TestSuite{}, fmt.Errorf("cases[%d].expect[%d]: %w", j, k, err)
			}
			tc.Expected = append(tc.Expected, cond)
		}
		suite.Cases = append(suite.Cases, tc)
	}
	return suite, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
