package store

import (
	"context"
	"fmt"

	"github.com/SkoposLabs/csm/internal/config"
	"github.com/SkoposLabs/csm/internal/db"
	"github.com/SkoposLabs/csm/internal/logging"
)

// Open builds the DataStore selected by cfg.Store.Backend. The returned
// store owns any resources it opened; Close releases them.
//
// For sqlite the schema is migrated and, when SeedSample is set, the sample
// fleet is imported into an empty database. The memory store starts from
// the sample fleet when SeedSample is set and empty otherwise.
func Open(ctx context.Context, cfg *config.Config, log *logging.Logger) (DataStore, error) {
	log = log.With("component", "store", "backend", cfg.Store.Backend)

	switch cfg.Store.Backend {
	case config.BackendMemory:
		snap := Snapshot{}
		if cfg.Store.SeedSample {
			snap = SampleSnapshot()
		}
		log.Info("memory store ready", "applications", len(snap.Applications), "devices", len(snap.Devices))
		return NewMemoryStore(snap), nil

	case config.BackendSQLite:
		return openSQLite(ctx, cfg, log)

	case config.BackendRemote:
		rs, err := NewRemoteStore(RemoteConfig{
			BaseURL: cfg.Remote.BaseURL,
			Token:   cfg.Remote.Token,
			Timeout: cfg.RemoteTimeout(),
		})
		if err != nil {
			return nil, err
		}
		if err := rs.Ping(ctx); err != nil {
			// The remote may come up later; the health poller reports it.
			log.Warn("remote store not reachable yet", "url", cfg.Remote.BaseURL, "error", err)
		} else {
			log.Info("remote store ready", "url", cfg.Remote.BaseURL)
		}
		return rs, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func openSQLite(ctx context.Context, cfg *config.Config, log *logging.Logger) (*SQLiteStore, error) {
	database, err := db.Open(ctx, db.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	applied, err := database.Migrate(ctx)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	for _, name := range applied {
		log.Info("applied migration", "name", name)
	}

	s := NewSQLiteStore(database.Conn)
	s.ping = database.HealthCheck
	s.closer = database.Close

	if cfg.Store.SeedSample {
		empty, err := s.IsEmpty(ctx)
		if err != nil {
			database.Close()
			return nil, err
		}
		if empty {
			if err := s.Import(ctx, SampleSnapshot()); err != nil {
				database.Close()
				return nil, fmt.Errorf("seed sample data: %w", err)
			}
			log.Info("seeded sample fleet")
		}
	}

	log.Info("sqlite store ready", "path", database.Path())
	return s, nil
}
