// Package app wires configuration into the storage providers shared by the
// server and capture commands.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/afroash/serverroom-monitor/internal/config"
	"github.com/afroash/serverroom-monitor/internal/repository"
	"github.com/afroash/serverroom-monitor/internal/storage"
)

// Providers builds the ranked storage providers named in the config, in order
func Providers(cfg config.StorageSettings, logger zerolog.Logger) ([]repository.Provider, error) {
	providers := make([]repository.Provider, 0, len(cfg.Backends))
	for _, name := range cfg.Backends {
		p, err := provider(name, cfg, logger.With().Str("backend", name).Logger())
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func provider(name string, cfg config.StorageSettings, logger zerolog.Logger) (repository.Provider, error) {
	switch name {
	case config.BackendSQLite:
		return repository.Provider{
			Name: name,
			Open: func(ctx context.Context) (storage.Backend, error) {
				if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
					return nil, fmt.Errorf("failed to create data directory: %w", err)
				}
				store, err := storage.NewSQLiteStore(cfg.SQLitePath, logger)
				if err != nil {
					return nil, err
				}
				return store, nil
			},
		}, nil
	case config.BackendPostgres:
		return repository.Provider{
			Name: name,
			Open: func(ctx context.Context) (storage.Backend, error) {
				store, err := storage.NewPostgresStore(ctx, cfg.PostgresDSN, logger)
				if err != nil {
					return nil, err
				}
				return store, nil
			},
		}, nil
	case config.BackendFile:
		return repository.Provider{
			Name: name,
			Open: func(ctx context.Context) (storage.Backend, error) {
				store, err := storage.NewFileStore(storage.FileStoreConfig{
					Path:        cfg.FilePath,
					UniqueDates: cfg.FileUniqueDates,
				}, logger)
				if err != nil {
					return nil, err
				}
				return store, nil
			},
		}, nil
	}
	return repository.Provider{}, fmt.Errorf("unknown storage backend %q", name)
}

// OpenRepository opens the repository over the configured providers
func OpenRepository(ctx context.Context, cfg config.StorageSettings, logger zerolog.Logger, opts ...repository.Option) (*repository.Repository, error) {
	providers, err := Providers(cfg, logger)
	if err != nil {
		return nil, err
	}
	return repository.Open(ctx, providers, logger, opts...)
}
