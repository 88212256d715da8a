package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Revoke every expired mute once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.close()

			res := a.sweeper.Sweep(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %d, failed %d, pending %d\n", res.Revoked, res.Failed, res.Pending)
			if res.Failed > 0 {
				return fmt.Errorf("%d revocations failed", res.Failed)
			}
			return nil
		},
	}
}
