package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/joho/godotenv"

	"github.com/at-ishikawa/cardreview/internal/card"
	"github.com/at-ishikawa/cardreview/internal/config"
	"github.com/at-ishikawa/cardreview/internal/database"
	"github.com/at-ishikawa/cardreview/internal/review"
)

func loadConfig() (*config.Config, error) {
	// A missing .env file is fine; variables may come from the environment
	_ = godotenv.Load()

	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	return loader.Load()
}

// repositories are the storage dependencies shared by the commands.
type repositories struct {
	store *database.Store
	cards *card.DBRepository
	notes *card.DBNoteRepository
	logs  *review.DBLogRepository
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Database.Driver, err)
	}
	repos, err := newRepositories(database.NewStore(db))
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return repos, nil
}

func newRepositories(store *database.Store) (*repositories, error) {
	helper, err := card.NewHelper()
	if err != nil {
		return nil, fmt.Errorf("card.NewHelper() > %w", err)
	}
	return &repositories{
		store: store,
		cards: card.NewDBRepository(store, helper),
		notes: card.NewDBNoteRepository(store),
		logs:  review.NewDBLogRepository(store),
	}, nil
}

func (r *repositories) Close() error {
	return r.store.Close()
}
