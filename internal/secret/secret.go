package secret

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

var (
	// ErrUnsupported 无人值守模式下无法获取该秘密
	ErrUnsupported = errors.New("无人值守模式下无法获取")
	// ErrAborted 用户放弃输入（直接回车或 EOF）
	ErrAborted = errors.New("输入已放弃")
	// ErrInterrupted 提示时按下 ^C，整个运行应当停止并释放令牌
	ErrInterrupted = errors.New("输入被中断")
)

// Provider 提供 PIN/OTP 以及是/否确认
type Provider interface {
	PIN(credentialID string) (string, error)
	OTP(credentialID string) (string, error)
	// Confirm 询问是/否，def 为直接回车（或无人值守）时的答案
	Confirm(question string, def bool) (bool, error)
	Interactive() bool
}

// Unattended 无人值守：只使用预先配置的默认 PIN
type Unattended struct {
	DefaultPIN string
}

func (u *Unattended) PIN(credentialID string) (string, error) {
	if u.DefaultPIN == "" {
		return "", fmt.Errorf("PIN for credential %s: %w", credentialID, ErrUnsupported)
	}
	return u.DefaultPIN, nil
}

func (u *Unattended) OTP(credentialID string) (string, error) {
	return "", fmt.Errorf("OTP for credential %s: %w", credentialID, ErrUnsupported)
}

func (u *Unattended) Confirm(_ string, def bool) (bool, error) {
	return def, nil
}

func (u *Unattended) Interactive() bool {
	return false
}

// lineReader 是 *readline.Instance 中用到的部分
type lineReader interface {
	SetPrompt(prompt string)
	Readline() (string, error)
	ReadPassword(prompt string) ([]byte, error)
}

// Interactive 从终端读取，PIN 不回显
type Interactive struct {
	rl         lineReader
	closer     io.Closer
	defaultPIN string
}

func NewInteractive(defaultPIN string) (*Interactive, error) {
	rl, err := readline.NewEx(&readline.Config{
		InterruptPrompt: "^C",
		HistoryLimit:    -1,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 readline 实例失败: %w", err)
	}
	return &Interactive{rl: rl, closer: rl, defaultPIN: defaultPIN}, nil
}

func (i *Interactive) Close() error {
	if i.closer == nil {
		return nil
	}
	return i.closer.Close()
}

func (i *Interactive) Interactive() bool {
	return true
}

func (i *Interactive) PIN(credentialID string) (string, error) {
	if i.defaultPIN == "" {
		pin, err := i.password(fmt.Sprintf("Please enter the PIN value for %s [press ENTER to abort]: ", credentialID))
		if err != nil {
			return "", err
		}
		if pin == "" {
			return "", fmt.Errorf("PIN is empty: %w", ErrAborted)
		}
		return pin, nil
	}

	pin, err := i.password(fmt.Sprintf("Confirm or change the default PIN for %s [%s]: ", credentialID, i.defaultPIN))
	if err != nil {
		return "", err
	}
	if pin == "" {
		return i.defaultPIN, nil
	}
	return pin, nil
}

func (i *Interactive) OTP(credentialID string) (string, error) {
	otp, err := i.line(fmt.Sprintf("Please enter the OTP value for %s [press ENTER to abort]: ", credentialID))
	if err != nil {
		return "", err
	}
	if otp == "" {
		return "", fmt.Errorf("OTP is empty: %w", ErrAborted)
	}
	return otp, nil
}

func (i *Interactive) Confirm(question string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	for {
		answer, err := i.line(fmt.Sprintf("%s %s ", question, hint))
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

func (i *Interactive) line(prompt string) (string, error) {
	i.rl.SetPrompt(prompt)
	s, err := i.rl.Readline()
	if err != nil {
		return "", mapReadError(err)
	}
	return strings.TrimSpace(s), nil
}

func (i *Interactive) password(prompt string) (string, error) {
	b, err := i.rl.ReadPassword(prompt)
	if err != nil {
		return "", mapReadError(err)
	}
	return strings.TrimSpace(string(b)), nil
}

func mapReadError(err error) error {
	if errors.Is(err, readline.ErrInterrupt) {
		return ErrInterrupted
	}
	if errors.Is(err, io.EOF) {
		return ErrAborted
	}
	return err
}
