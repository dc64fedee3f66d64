package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := stateFrom(cmd.Context())
			if err != nil {
				return err
			}
			if err := st.cfg.Validate(); err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			run := st.cfg.RunConfig()
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: start_url=%s max_depth=%d max_pages=%d storage=%s\n",
				run.StartURL, run.MaxDepth, run.MaxPages, st.cfg.Storage.Backend)
			return nil
		},
	}
}
