package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/at-ishikawa/cardreview/internal/bootstrap"
	"github.com/at-ishikawa/cardreview/internal/cli"
	"github.com/at-ishikawa/cardreview/internal/collection"
	"github.com/at-ishikawa/cardreview/internal/config"
)

// NewCardOrderFlag overrides the configured order of new cards.
type NewCardOrderFlag string

// Set implements pflag.Value.
func (f *NewCardOrderFlag) Set(v string) error {
	switch config.NewCardOrder(v) {
	case config.NewCardOrderLinear, config.NewCardOrderRandom:
		*f = NewCardOrderFlag(v)
	default:
		return fmt.Errorf("invalid value %q, valid values are %q or %q", v, config.NewCardOrderLinear, config.NewCardOrderRandom)
	}
	return nil
}

// String implements pflag.Value.
func (f *NewCardOrderFlag) String() string {
	if f == nil {
		return ""
	}
	return string(*f)
}

// Type implements pflag.Value.
func (f *NewCardOrderFlag) Type() string {
	return "NewCardOrder"
}

var (
	_ pflag.Value = (*NewCardOrderFlag)(nil)
)

func newReviewCommand() *cobra.Command {
	var order NewCardOrderFlag
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review today's new, learning and due cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if order != "" {
				cfg.Collection.NewCardOrder = config.NewCardOrder(order)
			}

			app := bootstrap.New()
			repos, err := openRepositories(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			app.AddShutdownHook("database", func(ctx context.Context) error {
				return repos.Close()
			})

			coll, err := newReviewCollection(repos, &cfg.Collection)
			if err != nil {
				return err
			}
			// Registered last so that pending writes finish before the database closes
			app.AddShutdownHook("review persistence", func(ctx context.Context) error {
				return coll.Wait()
			})

			return app.Run(cmd.Context(), func(ctx context.Context) error {
				return runReview(ctx, cmd, coll)
			})
		},
	}
	cmd.Flags().Var(&order, "new-card-order", "order of new cards (linear or random)")
	return cmd
}

// newReviewCollection builds the collection over repos and closes repos when it fails.
func newReviewCollection(repos *repositories, cfg *config.CollectionConfig) (*collection.ReviewCollection, error) {
	coll, err := collection.New(collection.Deps{
		Cards:    repos.cards,
		Logs:     repos.logs,
		Hydrator: repos.cards.Helper(),
	}, cfg)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("collection.New() > %w", err), repos.Close())
	}
	return coll, nil
}

func runReview(ctx context.Context, cmd *cobra.Command, coll *collection.ReviewCollection) error {
	out := cmd.OutOrStdout()
	ok, err := coll.Initialize(ctx)
	if err != nil {
		return err
	}
	if !ok {
		_, err := fmt.Fprintln(out, "No cards to review today!")
		return err
	}

	reviewCLI := cli.NewReviewCLI(coll, cmd.InOrStdin(), out)
	if err := reviewCLI.Run(ctx, reviewCLI); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "Reviewed %d cards\n", reviewCLI.Reviewed())
	return err
}
