package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// 命令行本身的退出码。测试结果的退出码由最高严重级别决定：
// 0 全部通过，1 无法运行，2 次要检查失败，3 核心签名功能受损
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// exitError 携带运行结束后由严重级别得出的退出码
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

type rootOptions struct {
	configPath  string
	username    string
	password    string
	environment string
	session     string
	logPath     string
	reportPath  string
	quiet       bool
	noColor     bool
	insecure    bool
	verbose     bool
	debug       bool
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "csctester",
		Short: "Conformance tests for remote signature (CSC) services",
		Long: `csctester drives a remote signature service through the whole credential
lifecycle (login, discovery, authorization, transaction extension, hash signing
and token revocation), validating every JSON response against declarative rules.

Without a subcommand it runs the full test sequence.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				return a.run(cmd.Context(), a.orch.Run)
			})
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "configuration file (default csctester.yaml)")
	flags.StringVarP(&opts.username, "user", "u", "", "username for auth/login")
	flags.StringVarP(&opts.password, "password", "p", "", "password for auth/login")
	flags.StringVarP(&opts.environment, "environment", "e", "", "environment name")
	flags.StringVarP(&opts.session, "session", "s", "", "use this session token instead of logging in")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "unattended mode: never prompt, use the default PIN")
	flags.StringVarP(&opts.logPath, "log", "l", "", "write diagnostic logs to this file")
	flags.StringVar(&opts.reportPath, "report", "", "append a result sheet to this xlsx workbook")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable coloured output")
	flags.BoolVar(&opts.insecure, "insecure", false, "skip TLS certificate verification")
	flags.BoolVar(&opts.verbose, "verbose", false, "log at info level")
	flags.BoolVar(&opts.debug, "debug", false, "log at debug level")

	root.AddCommand(
		newCheckCmd(opts),
		newScanCmd(opts),
		newOTPCmd(opts),
		newListCmd(opts),
		newLogoCmd(opts),
		newVersionCmd(),
	)
	return root
}

// SetVersion 设置 --version 和 version 命令显示的版本
func SetVersion(v string) {
	rootCmd.Version = v
}

func GetVersion() string {
	return rootCmd.Version
}

// Execute 执行根命令，并以运行结果对应的退出码退出
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "csctester version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		var exit *exitError
		if !errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(getExitCode(err))
	}
}

func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return ExitCodeError
}
