package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"csctester/internal/expect"
	"csctester/internal/runner"
	"csctester/internal/severity"
)

const (
	AuthModeImplicit    = "implicit"
	AuthModeExplicit    = "explicit"
	AuthModeOAuth2Code  = "oauth2code"
	AuthModeOAuth2Token = "oauth2token"

	otpTypeOnline = "online"
)

type presence struct {
	// Presence 可能是布尔值或字符串 "true"/"false"/"optional"
	Presence interface{} `mapstructure:"presence"`
	Type     string      `mapstructure:"type"`
}

func (p presence) required() bool {
	switch v := p.Presence.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

type credentialFields struct {
	AuthMode string `mapstructure:"authMode"`
	Cert     struct {
		Status string `mapstructure:"status"`
	} `mapstructure:"cert"`
	Key struct {
		Status string   `mapstructure:"status"`
		Algo   []string `mapstructure:"algo"`
		Len    int      `mapstructure:"len"`
	} `mapstructure:"key"`
	PIN presence `mapstructure:"PIN"`
	OTP presence `mapstructure:"OTP"`
}

// CredentialInfo credentials/info 响应中编排器需要的字段
type CredentialInfo struct {
	credentialFields

	ID  string
	Raw interface{}
}

// Valid 证书有效且密钥启用
func (c CredentialInfo) Valid() bool {
	return c.Cert.Status == "valid" && c.Key.Status == "enabled"
}

func (c CredentialInfo) PINRequired() bool {
	return c.PIN.required()
}

func (c CredentialInfo) OTPRequired() bool {
	return c.OTP.required()
}

// NeedsOnlineOTP 显式授权且需要服务端发送 OTP
func (c CredentialInfo) NeedsOnlineOTP() bool {
	return c.AuthMode != AuthModeImplicit && c.OTPRequired() && c.OTP.Type == otpTypeOnline
}

func (c CredentialInfo) Describe() string {
	status := "valid"
	if !c.Valid() {
		status = "invalid"
	}
	return fmt.Sprintf("Credential ID %s (%s)\n%s", c.ID, status, runner.Pretty(c.Raw))
}

func parseCredentialInfo(id string, doc interface{}) (CredentialInfo, error) {
	info := CredentialInfo{ID: id, Raw: doc}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &info.credentialFields,
	})
	if err != nil {
		return info, err
	}
	if err := decoder.Decode(doc); err != nil {
		return info, fmt.Errorf("解析凭证信息失败: %w", err)
	}
	return info, nil
}

// fetchCredentialInfo 获取凭证详情。
// 服务端返回错误时：会话失效为 Major，其他情况为 Critical。
func (o *Orchestrator) fetchCredentialInfo(ctx context.Context, id, certificates string) (CredentialInfo, error) {
	if id == "" {
		return CredentialInfo{}, ErrCredentialIDUnavailable
	}
	headers, err := o.session.bearer()
	if err != nil {
		return CredentialInfo{}, err
	}

	doc, err := o.runner.Call(ctx, "credentials/info", headers, map[string]interface{}{
		"certificates": certificates,
		"authInfo":     true,
		"certInfo":     true,
		"credentialID": id,
	})
	if err != nil {
		return CredentialInfo{}, fmt.Errorf("unable to get credential info: %w", err)
	}
	if expect.Has(doc, "error") {
		description := expect.String(doc, "error_description")
		if strings.Contains(description, "Session is invalid") {
			o.raise(severity.Major)
		} else {
			o.raise(severity.Critical)
		}
		return CredentialInfo{}, fmt.Errorf("unable to get credential info: %s", description)
	}
	return parseCredentialInfo(id, doc)
}
