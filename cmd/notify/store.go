package main

import (
	"chat-notify/contract"
	"chat-notify/infrastructure/postgres"
	"chat-notify/infrastructure/storage"
	"chat-notify/internal"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// store bundles what the pipeline needs from the configured driver.
// chats and db are only set in embedded mode.
type store struct {
	feed     contract.ChangeFeed
	resolver contract.MembershipResolver
	chats    contract.IChatRepository
	db       *badger.DB
	closers  []func()
}

func (s *store) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStore(ctx context.Context, config internal.Config, log *slog.Logger) (*store, error) {
	switch config.StoreDriver {
	case internal.StoreDriverBadger:
		return openBadgerStore(ctx, config, log)
	default:
		return openPostgresStore(ctx, config, log)
	}
}

func openPostgresStore(ctx context.Context, config internal.Config, log *slog.Logger) (*store, error) {
	pool, err := pgxpool.New(ctx, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	log.Info("Using postgres store", "channels", config.Channels())
	return &store{
		feed:     postgres.NewFeed(config.DatabaseURL, log),
		resolver: postgres.NewMembershipResolver(pool),
		closers: []func(){func() {
			log.Info("Closing postgres pool...")
			pool.Close()
		}},
	}, nil
}

func openBadgerStore(ctx context.Context, config internal.Config, log *slog.Logger) (*store, error) {
	db, err := badger.Open(buildBadgerOpts(config, log, ctx))
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}
	repository, err := storage.NewChatRepository(db, log, config.NotificationTTL, config.LimitMessages)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("Using embedded store", "path", config.BadgerFilepath)
	return &store{
		feed:     storage.NewFeed(db, log, config.BusCapacity),
		resolver: repository,
		chats:    repository,
		db:       db,
		closers: []func(){
			func() {
				// Defer ensures the database lock is released and buffers are flushed before the function returns.
				log.Info("Closing BadgerDB...")
				_ = db.Close()
			},
			func() { _ = repository.Close() },
		},
	}, nil
}

// buildBadgerOpts keeps the store in memory when no path is configured.
func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if config.BadgerFilepath == "" {
		options = options.WithInMemory(true)
	}

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}
	return options
}
