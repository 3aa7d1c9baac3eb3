package lifecycle

import "errors"

// 前置条件不满足时返回，编排器按凭证或整个运行的粒度捕获
var (
	ErrSessionUnavailable         = errors.New("没有可用的会话令牌")
	ErrSADUnavailable             = errors.New("没有可用的 SAD")
	ErrCredentialIDUnavailable    = errors.New("没有可用的凭证 ID")
	ErrLoginCredentialUnavailable = errors.New("缺少登录用户名或密码")
)
