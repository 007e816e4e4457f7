package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/at-ishikawa/cardreview/internal/card"
	"github.com/at-ishikawa/cardreview/internal/review"
)

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show today's review budgets and the number of cards per state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repos, err := openRepositories(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, repos.Close())
			}()

			budgets, err := review.ComputeBudgets(cmd.Context(), repos.logs, &cfg.Collection, time.Now())
			if err != nil {
				return err
			}
			counts, err := repos.cards.CountByState(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, err = fmt.Fprintf(out, "Today: %d new and %d due cards reviewed, %s and %s left\n",
				budgets.ReviewedNew,
				budgets.ReviewedDue,
				color.BlueString("%d new", budgets.New),
				color.GreenString("%d due", budgets.Due),
			)
			if err != nil {
				return err
			}
			for _, row := range []struct {
				label string
				state card.PracticeState
			}{
				{"New", card.StateNew},
				{"Learning", card.StateLearning},
				{"Due", card.StateDue},
			} {
				if _, err := fmt.Fprintf(out, "%-9s %d\n", row.label+":", counts[row.state]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
