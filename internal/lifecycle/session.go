package lifecycle

import (
	"csctester/internal/auth"
)

// Session 编排器的可变状态，只由编排器写入
type Session struct {
	SessionToken  string
	RefreshToken  string
	SAD           string
	CredentialIDs []string
	Username      string
	// BasicAuthToken 完整的 "Basic ..." 请求头值，没有用户名密码时为空
	BasicAuthToken string
	PIN            string
}

func newSession(username, password, sessionToken string) *Session {
	s := &Session{Username: username, SessionToken: sessionToken}
	if h, err := (&auth.Basic{Username: username, Password: password}).EncodeHeader(); err == nil {
		s.BasicAuthToken = h
	}
	return s
}

func (s *Session) basic() (map[string]string, error) {
	if s.BasicAuthToken == "" {
		return nil, ErrLoginCredentialUnavailable
	}
	return map[string]string{auth.HeaderName: s.BasicAuthToken}, nil
}

func (s *Session) bearer() (map[string]string, error) {
	h, err := auth.Headers(&auth.Bearer{Token: s.SessionToken})
	if err != nil {
		return nil, ErrSessionUnavailable
	}
	return h, nil
}

// bearerFor 使用指定令牌，撤销探测时用临时登录得到的令牌
func bearerFor(token string) map[string]string {
	return map[string]string{auth.HeaderName: "Bearer " + token}
}

// clearTokens 会话令牌撤销后调用
func (s *Session) clearTokens() {
	s.SessionToken = ""
	s.RefreshToken = ""
}
