package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newLogoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logo",
		Short: "Check that the configured logo URLs serve a matching image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.close()
			return a.run(cmd.Context(), func(ctx context.Context) error {
				a.orch.CheckLogos(ctx, a.cfg.LogoURLs)
				return nil
			})
		},
	}
}
