package lifecycle

import (
	"context"
	"fmt"

	"csctester/internal/auth"
	"csctester/internal/expect"
	"csctester/internal/model"
	"csctester/internal/severity"
)

const (
	timestampHash     = "uB28DAYaAZ+74aWHm30uDgeVB18="
	timestampHashAlgo = HashSHA1
	timestampNonce    = "654654131635468464"

	wrongSecret = ">>0"
	// 格式错误的 PIN/OTP：数字而不是字符串
	malformedSecret = 12345678
)

func (o *Orchestrator) infoTest(ctx context.Context) {
	docs := o.runner.Run(ctx, model.TestSuite{
		Operation: "info",
		Cases: []model.TestCase{
			{
				Name:     "no arguments",
				Expected: []expect.Condition{expect.Absent("error"), expect.Equals("lang", "en-US")},
			},
			{
				Name:     "IT language",
				Body:     map[string]interface{}{"lang": "it-IT"},
				Expected: []expect.Condition{expect.Absent("error"), expect.Equals("lang", "it-IT")},
			},
		},
	})
	if len(docs) == 0 {
		return
	}
	o.log.Debug("service info", "info", docs[0])
	o.infoLogoTest(ctx, docs[0])
}

func (o *Orchestrator) genericErrorTest(ctx context.Context) {
	o.runner.Run(ctx, model.TestSuite{
		Operation: "unsupported/service",
		Cases: []model.TestCase{{
			Body: map[string]interface{}{"key": "value"},
			Expected: []expect.Condition{expect.Matches(
				expect.Match("error", "access_denied"),
				expect.Match("error_description", "The user or Remote Service denied the request."),
			)},
		}},
	})
}

// loginTest 执行所有登录方式，保留最后一个成功的令牌并撤销其余的
func (o *Orchestrator) loginTest(ctx context.Context) error {
	headers, err := o.session.basic()
	if err != nil {
		o.raise(severity.Major)
		return err
	}

	docs := o.runner.Run(ctx, model.TestSuite{
		Operation: "auth/login",
		Cases: []model.TestCase{
			{
				Name:     "simple login",
				Headers:  headers,
				Expected: []expect.Condition{expect.Present("access_token"), expect.Absent("refresh_token", "error")},
			},
			{
				Name:     "remember me login",
				Headers:  headers,
				Body:     map[string]interface{}{"rememberMe": true},
				Expected: []expect.Condition{expect.Present("access_token", "refresh_token"), expect.Absent("error")},
			},
		},
	})

	keep, others := selectLastSuccess(docs, tokenIssued)
	if keep < 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.raise(severity.Major)
		return ErrSessionUnavailable
	}
	o.session.SessionToken = expect.String(docs[keep], "access_token")
	o.session.RefreshToken = expect.String(docs[keep], "refresh_token")

	for _, i := range others {
		o.revokeToken(ctx, expect.String(docs[i], "access_token"), true)
	}
	return nil
}

func tokenIssued(doc interface{}) bool {
	return !expect.Has(doc, "error") && expect.String(doc, "access_token") != ""
}

func (o *Orchestrator) timestampTest(ctx context.Context) {
	headers, err := o.session.bearer()
	if err != nil {
		o.log.Error("timestamp tests skipped", "error", err)
		return
	}
	ok := []expect.Condition{expect.Present("timestamp"), expect.Absent("error")}
	o.runner.Run(ctx, model.TestSuite{
		Operation: "signatures/timestamp",
		Cases: []model.TestCase{
			{
				Name:     "without nonce",
				Headers:  headers,
				Body:     timestampBody(),
				Expected: ok,
			},
			{
				Name:    "with nonce",
				Headers: headers,
				Body: map[string]interface{}{
					"hash":     timestampHash,
					"hashAlgo": timestampHashAlgo,
					"nonce":    timestampNonce,
				},
				Expected: ok,
			},
		},
	})
}

func timestampBody() map[string]interface{} {
	return map[string]interface{}{"hash": timestampHash, "hashAlgo": timestampHashAlgo}
}

// customSuites 配置文件中定义的测试集，UseSession 的用例附加会话令牌
func (o *Orchestrator) customSuites(ctx context.Context) {
	for _, suite := range o.opts.CustomSuites {
		if ctx.Err() != nil {
			return
		}
		run := suite
		run.Cases = make([]model.TestCase, len(suite.Cases))
		for i, tc := range suite.Cases {
			if tc.UseSession {
				headers := map[string]string{}
				for k, v := range tc.Headers {
					headers[k] = v
				}
				headers[auth.HeaderName] = "Bearer " + o.session.SessionToken
				tc.Headers = headers
			}
			run.Cases[i] = tc
		}
		o.runner.Run(ctx, run)
	}
}

// credentialInfoTest 七种请求组合下 credentials/info 的响应结构
func (o *Orchestrator) credentialInfoTest(ctx context.Context, id, authMode string) {
	headers, err := o.session.bearer()
	if err != nil {
		return
	}
	algo := expect.Equals("key>algo", o.opts.ExpectedKeyAlgorithms)
	noError := []string{"error", "error_description"}
	certDetails := []string{"cert>validFrom", "cert>validTo", "cert>subjectDN", "cert>serialNumber", "cert>issuerDN"}
	authInfo := []string{"PIN", "OTP"}

	body := func(extra map[string]interface{}) map[string]interface{} {
		b := map[string]interface{}{"credentialID": id}
		for k, v := range extra {
			b[k] = v
		}
		return b
	}
	join := func(groups ...[]string) []string {
		var out []string
		for _, g := range groups {
			out = append(out, g...)
		}
		return out
	}

	authCondition := expect.Absent(authInfo...)
	if authMode == AuthModeExplicit {
		authCondition = expect.Present(authInfo...)
	}

	o.runner.Run(ctx, model.TestSuite{
		Operation: "credentials/info",
		Cases: []model.TestCase{
			{
				Name:    "credential_id only",
				Headers: headers,
				Body:    body(nil),
				Expected: []expect.Condition{
					expect.Present("cert>certificates", "key>status", "key>algo", "key>len"),
					expect.Absent(join(noError, authInfo, certDetails)...),
					expect.LengthEqual("cert>certificates", 1),
					algo,
				},
			},
			{
				Name:    "certificates none",
				Headers: headers,
				Body:    body(map[string]interface{}{"certificates": "none"}),
				Expected: []expect.Condition{
					expect.Present("cert", "key>status", "key>algo", "key>len"),
					expect.Absent(join(noError, certDetails, []string{"cert>certificates"}, authInfo)...),
					algo,
				},
			},
			{
				Name:    "certificates single",
				Headers: headers,
				Body:    body(map[string]interface{}{"certificates": "single"}),
				Expected: []expect.Condition{
					expect.Present("cert>certificates", "key>status", "key>algo", "key>len"),
					expect.Absent(join(noError, certDetails, authInfo)...),
					expect.LengthEqual("cert>certificates", 1),
					algo,
				},
			},
			{
				Name:    "certificates chain",
				Headers: headers,
				Body:    body(map[string]interface{}{"certificates": "chain"}),
				Expected: []expect.Condition{
					expect.Present("cert>certificates", "key>status", "key>algo", "key>len"),
					expect.Absent(join(noError, []string{"cert>validFrom", "cert>validTo"}, authInfo)...),
					expect.LengthGreater("cert>certificates", 1),
					algo,
				},
			},
			{
				Name:    "certInfo",
				Headers: headers,
				Body:    body(map[string]interface{}{"certificates": "single", "certInfo": true}),
				Expected: []expect.Condition{
					expect.Present(join([]string{"cert>certificates"}, certDetails, []string{"key>status", "key>algo", "key>len"})...),
					expect.Absent(join(noError, authInfo)...),
					expect.LengthEqual("cert>certificates", 1),
					algo,
				},
			},
			{
				Name:    "no certInfo",
				Headers: headers,
				Body:    body(map[string]interface{}{"certificates": "single"}),
				Expected: []expect.Condition{
					expect.Present("cert>certificates", "key>status", "key>algo", "key>len"),
					expect.Absent(join(noError, authInfo, certDetails)...),
					expect.LengthEqual("cert>certificates", 1),
					algo,
				},
			},
			{
				Name:    "authInfo",
				Headers: headers,
				Body:    body(map[string]interface{}{"certificates": "chain", "authInfo": true}),
				Expected: []expect.Condition{
					authCondition,
					expect.Present("cert>certificates", "key>status", "key>algo", "key>len"),
					expect.Absent(join(noError, []string{"cert>validFrom", "cert>validTo"})...),
					expect.LengthGreater("cert>certificates", 1),
					algo,
				},
			},
		},
	})
}

func (o *Orchestrator) sendOTPTest(ctx context.Context, id string) {
	headers, err := o.session.bearer()
	if err != nil {
		return
	}
	docs := o.runner.Run(ctx, model.TestSuite{
		Operation: "credentials/sendOTP",
		Cases: []model.TestCase{{
			Name:     "default",
			Headers:  headers,
			Body:     map[string]interface{}{"credentialID": id},
			Expected: []expect.Condition{expect.Absent("error", "error_description")},
		}},
	})
	for _, doc := range docs {
		if !expect.Has(doc, "error") {
			o.notify.Notice(fmt.Sprintf("* OTP for credential %s sent", id))
			return
		}
	}
}

// authorizeTest 先执行错误 PIN/OTP 与格式错误的请求，最后执行有效授权并返回 SAD
func (o *Orchestrator) authorizeTest(ctx context.Context, info CredentialInfo) (string, error) {
	if info.AuthMode == AuthModeOAuth2Code || info.AuthMode == AuthModeOAuth2Token {
		o.notify.Notice("Unable to perform authorization tests: invalid authMode → " + info.AuthMode)
		return "", fmt.Errorf("authMode %s: %w", info.AuthMode, ErrSADUnavailable)
	}
	headers, err := o.session.bearer()
	if err != nil {
		return "", err
	}

	explicit := info.AuthMode == AuthModeExplicit
	usePIN := explicit && info.PINRequired()
	useOTP := explicit && info.OTPRequired()

	var pin, otp string
	if usePIN {
		if pin, err = o.secrets.PIN(info.ID); err != nil {
			return "", fmt.Errorf("unable to perform authorize tests: %w", err)
		}
		o.session.PIN = pin
	}
	if useOTP {
		if otp, err = o.secrets.OTP(info.ID); err != nil {
			return "", fmt.Errorf("unable to perform authorize tests, OTP is required: %w", err)
		}
	}

	body := func(pinValue, otpValue interface{}) map[string]interface{} {
		b := map[string]interface{}{
			"credentialID":  info.ID,
			"numSignatures": o.opts.NumSignatures,
		}
		if pinValue != nil {
			b["PIN"] = pinValue
		}
		if otpValue != nil {
			b["OTP"] = otpValue
		}
		return b
	}
	optional := func(use bool, v string) interface{} {
		if !use {
			return nil
		}
		return v
	}
	rejected := func(code, description string) []expect.Condition {
		return []expect.Condition{
			expect.Absent("SAD"),
			expect.Present("error"),
			expect.Matches(expect.Match("error", code), expect.Match("error_description", description)),
		}
	}

	pinCode, pinDescription := "invalid_pin", "The PIN is invalid"
	otpCode, otpDescription := "invalid_otp", "The OTP is invalid"
	if !info.Valid() {
		pinCode, pinDescription = "invalid_request", "Invalid certificate status"
		otpCode, otpDescription = pinCode, pinDescription
	}

	var cases []model.TestCase
	if useOTP {
		cases = append(cases, model.TestCase{
			Name:     "wrong OTP",
			Headers:  headers,
			Body:     body(optional(usePIN, pin), wrongSecret),
			Expected: rejected(otpCode, otpDescription),
		})
	}
	cases = append(cases,
		model.TestCase{
			Name:     "wrong PIN",
			Headers:  headers,
			Body:     body(wrongSecret, optional(useOTP, otp)),
			Expected: rejected(pinCode, pinDescription),
		},
		model.TestCase{
			Name:     "invalid PIN format",
			Headers:  headers,
			Body:     body(malformedSecret, optional(useOTP, otp)),
			Expected: rejected("invalid_request", "Invalid parameter PIN"),
		},
		model.TestCase{
			Name:     "invalid OTP format",
			Headers:  headers,
			Body:     body(optional(usePIN, pin), malformedSecret),
			Expected: rejected("invalid_request", "Invalid parameter OTP"),
		},
	)

	valid := []expect.Condition{expect.Present("SAD"), expect.Absent("error")}
	if !info.Valid() {
		valid = []expect.Condition{expect.Absent("SAD"), expect.Present("error")}
	}
	cases = append(cases, model.TestCase{
		Name:     fmt.Sprintf("valid authorize request for %d signatures", o.opts.NumSignatures),
		Headers:  headers,
		Body:     body(optional(usePIN, pin), optional(useOTP, otp)),
		Expected: valid,
		Severity: severity.Critical,
	})

	docs := o.runner.Run(ctx, model.TestSuite{Operation: "credentials/authorize", Cases: cases})

	keep, others := selectLastSuccess(docs, sadIssued)
	for _, i := range others {
		o.revokeToken(ctx, expect.String(docs[i], "SAD"), true)
	}
	if keep < 0 {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if info.Valid() {
			o.raise(severity.Critical)
		}
		return "", ErrSADUnavailable
	}
	o.session.SAD = expect.String(docs[keep], "SAD")
	return o.session.SAD, nil
}

func sadIssued(doc interface{}) bool {
	return !expect.Has(doc, "error") && expect.String(doc, "SAD") != ""
}

// extendTest 无效 SAD 必须被拒绝，有效 SAD 延期后替换当前 SAD
func (o *Orchestrator) extendTest(ctx context.Context, id, sad string) (string, error) {
	if sad == "" {
		return "", ErrSADUnavailable
	}
	headers, err := o.session.bearer()
	if err != nil {
		return "", err
	}

	docs := o.runner.Run(ctx, model.TestSuite{
		Operation: "credentials/extendTransaction",
		Cases: []model.TestCase{
			{
				Name:    "wrong SAD",
				Headers: headers,
				Body:    map[string]interface{}{"SAD": "xxx", "credentialID": id},
				Expected: []expect.Condition{
					expect.Absent("SAD"),
					expect.Matches(expect.Match("error", "invalid_request"), expect.Match("error_description", "Invalid parameter SAD")),
				},
			},
			{
				Name:     "valid request",
				Headers:  headers,
				Body:     map[string]interface{}{"SAD": sad, "credentialID": id},
				Expected: []expect.Condition{expect.Present("SAD"), expect.Absent("error")},
				Severity: severity.Critical,
			},
		},
	})

	keep, _ := selectLastSuccess(docs, sadIssued)
	if keep < 0 {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		o.raise(severity.Critical)
		return "", fmt.Errorf("cannot extend SAD validity: %w", ErrSADUnavailable)
	}
	o.session.SAD = expect.String(docs[keep], "SAD")
	return o.session.SAD, nil
}
