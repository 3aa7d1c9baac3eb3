package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"csctester/internal/config"
	"csctester/internal/lifecycle"
	"csctester/internal/reporter"
	"csctester/internal/runner"
	"csctester/internal/secret"
	"csctester/internal/severity"
	"csctester/internal/transport"
)

// app 一次命令执行所需的全部组件
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	reporter *reporter.Reporter
	runner   *runner.Runner
	orch     *lifecycle.Orchestrator
	closers  []io.Closer
	started  time.Time
}

// loadConfig 读取配置文件，命令行参数覆盖文件中的值
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("user") {
		cfg.Username = opts.username
	}
	if flags.Changed("password") {
		cfg.Password = opts.password
	}
	if flags.Changed("environment") {
		cfg.Environment = opts.environment
		cfg.BaseURL = ""
	}
	if flags.Changed("session") {
		cfg.SessionToken = opts.session
	}
	if flags.Changed("log") {
		cfg.LogPath = opts.logPath
	}
	if flags.Changed("report") {
		cfg.ReportPath = opts.reportPath
	}
	if opts.quiet {
		cfg.Quiet = true
	}
	if opts.insecure {
		cfg.InsecureSkipVerify = true
	}
	if opts.noColor {
		off := false
		cfg.Colorize = &off
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config, opts *rootOptions, runID string) (*slog.Logger, io.Closer, error) {
	level := slog.LevelWarn
	switch {
	case opts.debug:
		level = slog.LevelDebug
	case opts.verbose:
		level = slog.LevelInfo
	}

	var (
		output io.Writer = cmd.ErrOrStderr()
		closer io.Closer
	)
	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		output, closer = f, f
	}

	handler := slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("run", runID), closer, nil
}

func colorize(cfg *config.Config) bool {
	if cfg.Colorize != nil {
		return *cfg.Colorize
	}
	return readline.IsTerminal(int(os.Stdout.Fd()))
}

// newApp 组装传输层、执行器、报告器和凭证流程。prompts 为 false 时不打开终端。
func newApp(cmd *cobra.Command, opts *rootOptions, prompts bool) (*app, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	baseURL, err := cfg.ResolveBaseURL()
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log, logCloser, err := newLogger(cmd, cfg, opts, runID)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, started: time.Now()}
	if logCloser != nil {
		a.closers = append(a.closers, logCloser)
	}

	var secrets secret.Provider = &secret.Unattended{DefaultPIN: cfg.DefaultPIN}
	if prompts && !cfg.Quiet {
		interactive, err := secret.NewInteractive(cfg.DefaultPIN)
		if err != nil {
			a.close()
			return nil, err
		}
		secrets = interactive
		a.closers = append(a.closers, interactive)
	}

	a.reporter = reporter.New(cmd.OutOrStdout(), reporter.Options{
		Colorize:   colorize(cfg),
		ReportPath: cfg.ReportPath,
		RunID:      runID,
	})
	client := transport.New(baseURL, cfg.Timeout, cfg.InsecureSkipVerify)
	a.runner = runner.New(client, &severity.Tracker{}, a.reporter, log)
	a.orch = lifecycle.New(a.runner, secrets, a.reporter, log, lifecycle.Options{
		Username:               cfg.Username,
		Password:               cfg.Password,
		SessionToken:           cfg.SessionToken,
		NumSignatures:          cfg.NumSignatures,
		TestCredentials:        cfg.TestCredentials,
		TestInvalidCredentials: cfg.TestInvalidCredentials,
		ExpectedKeyAlgorithms:  cfg.ExpectedKeyAlgorithms,
		CustomSuites:           cfg.Suites,
	})

	log.Info("配置加载完成", "base_url", baseURL, "environment", cfg.Environment, "quiet", cfg.Quiet)
	return a, nil
}

func withApp(cmd *cobra.Command, opts *rootOptions, fn func(a *app) error) error {
	a, err := newApp(cmd, opts, true)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

// run 执行一个测试步骤。中断时释放已获取的令牌，最后输出报告并按最高严重级别返回退出码。
func (a *app) run(parent context.Context, step func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := a.runner.Tracker()
	err := step(ctx)
	switch {
	case ctx.Err() != nil || errors.Is(err, secret.ErrInterrupted):
		stop()
		a.reporter.Notice("*** Interrupted, releasing tokens ***")
		a.log.Warn("测试被中断", "error", err)

		teardownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
		a.orch.Teardown(teardownCtx)
		cancel()
		// 只有尚无失败时才提升为“无法运行”，已有的级别保持不变
		if tracker.Max() == severity.None {
			tracker.Raise(severity.Major)
		}
	case err != nil:
		a.log.Error("测试终止", "error", err)
		a.reporter.Notice(fmt.Sprintf("*** Aborted: %v ***", err))
		if tracker.Max() == severity.None {
			tracker.Raise(severity.Major)
		}
	}

	if err := a.reporter.GenerateReport(time.Since(a.started), tracker.Max()); err != nil {
		a.log.Error("生成报告失败", "error", err)
	}
	if code := tracker.ExitCode(); code != ExitCodeSuccess {
		return &exitError{code: code}
	}
	return nil
}
