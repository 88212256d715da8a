package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-mod-assistant/internal/leaderboard"
)

func leaderboardCmd() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the karma leaderboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, nil, nil)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			first := a.board.Page(0)
			if page > 0 {
				if page > first.PageCount {
					return fmt.Errorf("page %d out of range (1-%d)", page, first.PageCount)
				}
				fmt.Fprintln(out, leaderboard.Render(a.board.Page(page-1)))
				return nil
			}
			for p := 0; p < first.PageCount; p++ {
				if p > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintln(out, leaderboard.Render(a.board.Page(p)))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "print only this page (1-based)")
	return cmd
}
