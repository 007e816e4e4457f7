package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/cardreview/internal/deck"
)

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <deck.yml>...",
		Short: "Import the notes of deck files as new cards",
		Args:  cobra.MinimumNArgs(1),
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

			importer := deck.NewImporter(repos.notes, &cfg.Collection, nil)
			for _, path := range args {
				d, err := deck.Load(path)
				if err != nil {
					return err
				}
				result, err := importer.Import(cmd.Context(), d)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Imported %d notes and %d cards from %s\n", result.Notes, result.Cards, path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
