package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [credentialID...]",
		Short: "Test only the given credentials",
		Long: `Log in and run the credential tests (info, authorize, extendTransaction and
signHash) for the given credential IDs. Without IDs the full test sequence runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				return a.run(cmd.Context(), func(ctx context.Context) error {
					return a.orch.CheckCredentials(ctx, args)
				})
			})
		},
	}
}

func newScanCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List the credentials of the account and describe each one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				return a.run(cmd.Context(), a.orch.Scan)
			})
		},
	}
}

func newOTPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "otp <credentialID>",
		Short: "Request an online OTP for a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				return a.run(cmd.Context(), func(ctx context.Context) error {
					return a.orch.SendOTP(ctx, args[0])
				})
			})
		},
	}
}
