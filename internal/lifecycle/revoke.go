package lifecycle

import (
	"context"
	"fmt"

	"csctester/internal/expect"
	"csctester/internal/model"
	"csctester/internal/runner"
	"csctester/internal/severity"
)

const revokeLabel = "auth/revoke"

// revokeToken 使用当前会话撤销一个令牌（access/refresh token 或 SAD）
func (o *Orchestrator) revokeToken(ctx context.Context, token string, quiet bool) {
	if token == "" {
		o.notify.Notice("Cannot revoke empty token")
		return
	}
	headers, err := o.session.bearer()
	if err != nil {
		o.log.Warn("cannot revoke token without a session", "error", err)
		return
	}
	if !quiet {
		o.notify.Notice(fmt.Sprintf("Revoking token %s ...", token))
	}

	doc, err := o.runner.Call(ctx, "auth/revoke", headers, map[string]interface{}{"token": token})
	if err != nil {
		o.raise(severity.Minor)
		o.log.Error("revoke failed", "error", err)
		return
	}
	if expect.Has(doc, "error") {
		o.raise(severity.Minor)
		o.notify.Notice(fmt.Sprintf("*** Unable to revoke token %s ***\n%s", token, runner.Pretty(doc)))
	}
}

// revokeTest 四个撤销探测：撤销后令牌不能再用于同样的调用
func (o *Orchestrator) revokeTest(ctx context.Context, token string) {
	o.revokeSessionProbe(ctx, token)

	if o.session.BasicAuthToken == "" {
		o.log.Info("revoke probes 2-4 skipped: no login credential")
		return
	}
	o.revokeRefreshProbe(ctx, 2, false)
	o.revokeRefreshProbe(ctx, 3, true)
	o.revokeAccessProbe(ctx)
}

// 探测 1：撤销会话后，时间戳请求必须失败
func (o *Orchestrator) revokeSessionProbe(ctx context.Context, token string) {
	if ctx.Err() != nil {
		return
	}
	headers, err := o.session.bearer()
	if err != nil {
		return
	}
	o.revokeToken(ctx, token, false)
	o.runner.Run(ctx, model.TestSuite{
		Operation: "signatures/timestamp",
		Label:     revokeLabel,
		Cases: []model.TestCase{{
			Name:     "revoked session cannot request a timestamp",
			Headers:  headers,
			Body:     timestampBody(),
			Expected: []expect.Condition{expect.Present("error")},
		}},
	})
}

// 探测 2/3：rememberMe 登录，撤销 refresh token（3 带 token_type_hint），
// 随后使用该 refresh token 登录必须失败
func (o *Orchestrator) revokeRefreshProbe(ctx context.Context, probe int, hint bool) {
	if ctx.Err() != nil {
		return
	}
	basic, _ := o.session.basic()
	doc, err := o.runner.Call(ctx, "auth/login", basic, map[string]interface{}{"rememberMe": true})
	access, refresh := expect.String(doc, "access_token"), expect.String(doc, "refresh_token")
	if err != nil || expect.Has(doc, "error") || access == "" || refresh == "" {
		o.probeAborted(probe, "login failed", doc, err)
		return
	}

	body := map[string]interface{}{"token": refresh}
	if hint {
		body["token_type_hint"] = "refresh_token"
	}
	o.notify.Notice(fmt.Sprintf("Revoking token %s ...", refresh))
	doc, err = o.runner.Call(ctx, "auth/revoke", bearerFor(access), body)
	if err != nil || expect.Has(doc, "error") {
		o.probeAborted(probe, "revoke failed", doc, err)
		return
	}

	docs := o.runner.Run(ctx, model.TestSuite{
		Operation: "auth/login",
		Label:     revokeLabel,
		Cases: []model.TestCase{{
			Name:     fmt.Sprintf("revoked refresh token cannot log in (test %d)", probe),
			Headers:  basic,
			Body:     map[string]interface{}{"refresh_token": refresh},
			Expected: []expect.Condition{expect.Present("error")},
		}},
	})
	// 探测失败时服务端又签发了令牌，立即释放
	for _, d := range docs {
		if leaked := expect.String(d, "access_token"); leaked != "" {
			o.revokeWith(ctx, leaked)
		}
	}
}

// 探测 4：GET 登录，带 hint 撤销 access token，随后列表请求必须失败
func (o *Orchestrator) revokeAccessProbe(ctx context.Context) {
	const probe = 4
	if ctx.Err() != nil {
		return
	}
	basic, _ := o.session.basic()
	doc, err := o.runner.Call(ctx, "auth/login", basic, nil)
	access := expect.String(doc, "access_token")
	if err != nil || expect.Has(doc, "error") || access == "" {
		o.probeAborted(probe, "login failed", doc, err)
		return
	}

	o.notify.Notice(fmt.Sprintf("Revoking token %s ...", access))
	doc, err = o.runner.Call(ctx, "auth/revoke", bearerFor(access), map[string]interface{}{
		"token":           access,
		"token_type_hint": "access_token",
	})
	if err != nil || expect.Has(doc, "error") {
		o.probeAborted(probe, "revoke failed", doc, err)
		return
	}

	o.runner.Run(ctx, model.TestSuite{
		Operation: "credentials/list",
		Label:     revokeLabel,
		Cases: []model.TestCase{{
			Name:     "revoked access token cannot list credentials",
			Headers:  bearerFor(access),
			Expected: []expect.Condition{expect.Present("error")},
		}},
	})
}

// revokeWith 令牌自己撤销自己
func (o *Orchestrator) revokeWith(ctx context.Context, token string) {
	doc, err := o.runner.Call(ctx, "auth/revoke", bearerFor(token), map[string]interface{}{"token": token})
	if err != nil || expect.Has(doc, "error") {
		o.log.Warn("unable to release token", "error", err, "response", doc)
	}
}

func (o *Orchestrator) probeAborted(probe int, reason string, doc interface{}, err error) {
	o.raise(severity.Minor)
	if err != nil {
		o.log.Error("revoke probe aborted", "probe", probe, "reason", reason, "error", err)
	} else {
		o.notify.Notice(runner.Pretty(doc))
	}
	o.notify.Notice(fmt.Sprintf("*** Unable to perform revoke test %d: %s", probe, reason))
}
