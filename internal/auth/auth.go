package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// HeaderName 认证请求头
const HeaderName = "Authorization"

type Authenticator interface {
	EncodeHeader() (string, error)
}

// Basic 用户名/密码登录 auth/login 时使用
type Basic struct {
	Username string
	Password string
}

func (o *Basic) EncodeHeader() (string, error) {
	if err := o.validate(); err != nil {
		return "", err
	}

	credsRaw := fmt.Sprintf("%s:%s", o.Username, o.Password)
	credsEncoded := base64.StdEncoding.EncodeToString([]byte(credsRaw))
	return fmt.Sprintf("Basic %s", credsEncoded), nil
}

func (o *Basic) validate() error {
	if o.Username == "" {
		return errors.New("缺少用户名")
	}
	if o.Password == "" {
		return errors.New("缺少密码")
	}
	return nil
}

// Bearer 登录后携带 access token / refresh token
type Bearer struct {
	Token string
}

func (o *Bearer) EncodeHeader() (string, error) {
	if o.Token == "" {
		return "", errors.New("缺少令牌")
	}
	return fmt.Sprintf("Bearer %s", o.Token), nil
}

// Headers 生成只包含 Authorization 的请求头
func Headers(a Authenticator) (map[string]string, error) {
	h, err := a.EncodeHeader()
	if err != nil {
		return nil, err
	}
	return map[string]string{HeaderName: h}, nil
}
