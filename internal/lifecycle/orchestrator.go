package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"csctester/internal/expect"
	"csctester/internal/model"
	"csctester/internal/runner"
	"csctester/internal/secret"
	"csctester/internal/severity"
)

const (
	defaultNumSignatures = 17
	defaultPageBudget    = 256
)

// DefaultKeyAlgorithms credentials/info 中 key>algo 的期望值
var DefaultKeyAlgorithms = []string{
	AlgoRSA,
	AlgoSHA1WithRSA,
	AlgoSHA224WithRSA,
	AlgoSHA256WithRSA,
	AlgoSHA384WithRSA,
	AlgoSHA512WithRSA,
	AlgoRSASSAPSS,
}

// Notifier 输出不属于任何用例的提示
type Notifier interface {
	Notice(msg string)
}

type Options struct {
	Username     string
	Password     string
	SessionToken string
	// NumSignatures 授权请求中的 numSignatures
	NumSignatures          int
	TestCredentials        bool
	TestInvalidCredentials bool
	ExpectedKeyAlgorithms  []string
	// CustomSuites 登录后、凭证测试前执行
	CustomSuites []model.TestSuite
	// PageBudget 完整分页枚举的最大请求数
	PageBudget int
}

// Orchestrator 按顺序驱动整个凭证生命周期测试。
// 所有方法都必须在同一个 goroutine 中调用。
type Orchestrator struct {
	runner  *runner.Runner
	secrets secret.Provider
	notify  Notifier
	log     *slog.Logger
	opts    Options
	session *Session
}

func New(r *runner.Runner, secrets secret.Provider, notify Notifier, log *slog.Logger, opts Options) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if opts.NumSignatures <= 0 {
		opts.NumSignatures = defaultNumSignatures
	}
	if opts.PageBudget <= 0 {
		opts.PageBudget = defaultPageBudget
	}
	if len(opts.ExpectedKeyAlgorithms) == 0 {
		opts.ExpectedKeyAlgorithms = DefaultKeyAlgorithms
	}
	return &Orchestrator{
		runner:  r,
		secrets: secrets,
		notify:  notify,
		log:     log,
		opts:    opts,
		session: newSession(opts.Username, opts.Password, opts.SessionToken),
	}
}

// Session 当前状态（只读使用）
func (o *Orchestrator) Session() *Session {
	return o.session
}

func (o *Orchestrator) raise(l severity.Level) {
	o.runner.Tracker().Raise(l)
}

// Run 完整测试：info、通用错误、登录、时间戳、列表、逐个凭证，最后撤销会话
func (o *Orchestrator) Run(ctx context.Context) error {
	o.infoTest(ctx)
	o.genericErrorTest(ctx)

	if o.session.SessionToken == "" {
		if err := o.loginTest(ctx); err != nil {
			return err
		}
	} else {
		o.notify.Notice("Login disabled. Using configured session token: " + o.session.SessionToken)
	}
	o.notify.Notice("Using session token " + o.session.SessionToken)

	o.timestampTest(ctx)
	o.customSuites(ctx)

	ids, err := o.listTest(ctx)
	if err != nil {
		return err
	}
	switch {
	case !o.opts.TestCredentials:
		o.notify.Notice("*** SKIPPING CREDENTIALS TESTS ***")
	case len(ids) == 0:
		o.notify.Notice("*** No credentials found! ***")
	default:
		o.notify.Notice(fmt.Sprintf("%d credential(s) found: %s", len(ids), strings.Join(ids, ", ")))
		if err := o.testCredentials(ctx, ids); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	revoke, err := o.secrets.Confirm("Revoke session key?", true)
	if err != nil {
		return err
	}
	if revoke {
		token := o.session.RefreshToken
		if token == "" {
			token = o.session.SessionToken
		}
		o.revokeTest(ctx, token)
		o.session.clearTokens()
	}
	return nil
}

// CheckCredentials 只测试指定的凭证；没有指定时执行完整测试
func (o *Orchestrator) CheckCredentials(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return o.Run(ctx)
	}

	if doc, err := o.runner.Call(ctx, "info", nil, nil); err != nil {
		o.log.Error("info request failed", "error", err)
	} else {
		o.notify.Notice(runner.Pretty(doc))
	}

	if err := o.ensureSession(ctx); err != nil {
		return err
	}
	if err := o.testCredentials(ctx, ids); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return o.askAndRevoke(ctx)
}

// Scan 枚举凭证并输出详细信息，不执行签名测试
func (o *Orchestrator) Scan(ctx context.Context) error {
	if err := o.ensureSession(ctx); err != nil {
		return err
	}
	o.notify.Notice("Using session token " + o.session.SessionToken)

	ids := o.listAll(ctx, listPageSize, o.opts.PageBudget)
	o.session.CredentialIDs = ids
	if len(ids) == 0 {
		o.notify.Notice("No credentials found")
	} else {
		o.notify.Notice(fmt.Sprintf("%d credential(s) found: %s", len(ids), strings.Join(ids, ", ")))
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		info, err := o.fetchCredentialInfo(ctx, id, "single")
		if err != nil {
			o.notify.Notice(fmt.Sprintf("An error occurred while getting info for credential %s - %v", id, err))
			continue
		}
		o.notify.Notice(info.Describe())
	}
	return o.askAndRevoke(ctx)
}

// SendOTP 为在线 OTP 的显式凭证发送一次 OTP，随后静默撤销会话
func (o *Orchestrator) SendOTP(ctx context.Context, id string) error {
	if err := o.ensureSession(ctx); err != nil {
		return err
	}
	defer o.revokeSession(ctx)

	info, err := o.fetchCredentialInfo(ctx, id, "none")
	if err != nil {
		o.raise(severity.Critical)
		return fmt.Errorf("sending OTP for credential %s: %w", id, err)
	}
	if !info.NeedsOnlineOTP() {
		o.notify.Notice(fmt.Sprintf("Credential %s does not use an online OTP", id))
		return nil
	}

	headers, err := o.session.bearer()
	if err != nil {
		return err
	}
	doc, err := o.runner.Call(ctx, "credentials/sendOTP", headers, map[string]interface{}{"credentialID": id})
	if err != nil {
		o.raise(severity.Critical)
		return fmt.Errorf("sending OTP for credential %s: %w", id, err)
	}
	if expect.Has(doc, "error") {
		o.raise(severity.Critical)
		return fmt.Errorf("sending OTP for credential %s: %s", id, runner.Pretty(doc))
	}
	o.notify.Notice(fmt.Sprintf("* OTP for credential %s sent", id))
	return nil
}

// Teardown 中断后尽力撤销尚未释放的 SAD 和会话令牌
func (o *Orchestrator) Teardown(ctx context.Context) {
	if o.session.SAD != "" {
		o.revokeToken(ctx, o.session.SAD, false)
		o.session.SAD = ""
	}
	if o.session.SessionToken == "" {
		return
	}
	revoke, err := o.secrets.Confirm("Revoke session key?", true)
	if err != nil {
		// 无法确认时仍尽力撤销
		o.log.Warn("revoke confirmation failed", "error", err)
		revoke = true
	}
	if revoke {
		o.revokeSession(ctx)
	}
}

// testCredentials 单个凭证的错误只跳过该凭证；^C 中断整个运行
func (o *Orchestrator) testCredentials(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if ctx.Err() != nil {
			o.log.Warn("credential tests interrupted", "credential", id)
			return ctx.Err()
		}
		if err := o.credentialCore(ctx, id); err != nil {
			if errors.Is(err, secret.ErrInterrupted) {
				return err
			}
			o.log.Error("credential tests aborted", "credential", id, "error", err)
			o.notify.Notice(fmt.Sprintf("*** %s: %v ***", id, err))
		}
	}
	return nil
}

// credentialCore 单个凭证：info、info 结构检查、授权、延期、签名
func (o *Orchestrator) credentialCore(ctx context.Context, id string) error {
	if id == "" {
		return ErrCredentialIDUnavailable
	}
	o.session.SAD = ""

	info, err := o.fetchCredentialInfo(ctx, id, "none")
	if err != nil {
		return err
	}
	o.log.Debug("credential info", "credential", id, "valid", info.Valid(), "authMode", info.AuthMode, "algo", info.Key.Algo)

	o.credentialInfoTest(ctx, id, info.AuthMode)

	if !info.Valid() && !o.opts.TestInvalidCredentials {
		o.notify.Notice("*** SKIP: invalid credential ***")
		return nil
	}

	switch {
	case info.AuthMode == AuthModeImplicit:
		ok, err := o.secrets.Confirm("Implicit authorization, do you want to continue?", false)
		if err != nil {
			return err
		}
		if !ok {
			o.notify.Notice("*** SKIP: implicit authorization ***")
			return nil
		}
	case o.secrets.Interactive() && info.NeedsOnlineOTP():
		o.sendOTPTest(ctx, id)
	}

	sad, err := o.authorizeTest(ctx, info)
	if err != nil {
		return err
	}
	sad, err = o.extendTest(ctx, id, sad)
	if err != nil {
		return err
	}
	return o.signHashTest(ctx, id, sad, info.Key.Algo)
}

// ensureSession 没有会话令牌时执行一次普通登录
func (o *Orchestrator) ensureSession(ctx context.Context) error {
	if o.session.SessionToken != "" {
		return nil
	}
	headers, err := o.session.basic()
	if err != nil {
		o.raise(severity.Major)
		return err
	}
	doc, err := o.runner.Call(ctx, "auth/login", headers, nil)
	if err != nil {
		o.raise(severity.Major)
		return fmt.Errorf("login failed: %w", err)
	}
	token := expect.String(doc, "access_token")
	if expect.Has(doc, "error") || token == "" {
		o.raise(severity.Major)
		o.notify.Notice("An error occurred during login\n" + runner.Pretty(doc))
		return ErrSessionUnavailable
	}
	o.session.SessionToken = token
	o.notify.Notice("Using session token " + token)
	return nil
}

func (o *Orchestrator) askAndRevoke(ctx context.Context) error {
	revoke, err := o.secrets.Confirm("Revoke session key?", true)
	if err != nil {
		if errors.Is(err, secret.ErrAborted) {
			return nil
		}
		return err
	}
	if revoke {
		o.revokeSession(ctx)
	}
	return nil
}

func (o *Orchestrator) revokeSession(ctx context.Context) {
	if o.session.SessionToken == "" {
		return
	}
	o.revokeToken(ctx, o.session.SessionToken, true)
	o.session.clearTokens()
}
