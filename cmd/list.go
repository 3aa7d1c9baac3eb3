package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the configured environments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"", "Environment", "Base URL"})
			for _, name := range cfg.EnvironmentNames() {
				marker := ""
				if name == cfg.Environment && cfg.BaseURL == "" {
					marker = "*"
				}
				t.AppendRow(table.Row{marker, name, cfg.Environments[name]})
			}
			if cfg.BaseURL != "" {
				t.AppendFooter(table.Row{"*", "base_url", cfg.BaseURL})
			}
			t.Render()
			return nil
		},
	}
}
