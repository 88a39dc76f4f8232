package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/narcache/application/upload"
	"github.com/felixgeelhaar/narcache/domain/index"
	"github.com/felixgeelhaar/narcache/domain/signature"
	"github.com/felixgeelhaar/narcache/domain/storage"
	"github.com/felixgeelhaar/narcache/infrastructure/config"
	badgerindex "github.com/felixgeelhaar/narcache/infrastructure/index/badger"
	memoryindex "github.com/felixgeelhaar/narcache/infrastructure/index/memory"
	postgresindex "github.com/felixgeelhaar/narcache/infrastructure/index/postgres"
	sqliteindex "github.com/felixgeelhaar/narcache/infrastructure/index/sqlite"
	"github.com/felixgeelhaar/narcache/infrastructure/logging"
	"github.com/felixgeelhaar/narcache/infrastructure/storage/filesystem"
	s3storage "github.com/felixgeelhaar/narcache/infrastructure/storage/s3"
	"github.com/felixgeelhaar/narcache/interfaces/api"
)

// newServeCmd creates the serve command.
func (a *App) newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cache server",
		Long: `Serve starts the HTTP cache server with the configured storage
backend and artifact index, and runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.NewLoader().LoadFile(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			return a.serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")

	return cmd
}

// serve wires the configured collaborators together and runs the
// server until ctx is cancelled.
func (a *App) serve(ctx context.Context, cfg *config.Config) error {
	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	trusted, err := parseTrustedKeys(cfg.TrustedKeys)
	if err != nil {
		return err
	}

	backend, cleanupBackend, err := buildBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanupBackend()

	idx, cleanupIndex, err := buildIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanupIndex()

	coordinator, err := upload.New(backend, idx, trusted)
	if err != nil {
		return err
	}

	server, err := api.New(api.Config{
		Coordinator:    coordinator,
		Address:        cfg.Listen,
		Priority:       cfg.Priority,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logging.Info().
		Add(logging.Str("listen", cfg.Listen)).
		Add(logging.BackendName(cfg.Store.Backend)).
		Add(logging.Str("index", cfg.Index.Driver)).
		Msg("cache server started")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

// parseTrustedKeys parses the configured "name:base64" public keys.
func parseTrustedKeys(texts []string) ([]signature.PublicKey, error) {
	keys := make([]signature.PublicKey, 0, len(texts))
	for _, text := range texts {
		key, err := signature.ParsePublicKey(text)
		if err != nil {
			return nil, fmt.Errorf("parsing trusted key %q: %w", text, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// buildBackend constructs the configured storage backend.
func buildBackend(ctx context.Context, cfg *config.Config) (storage.Backend, func(), error) {
	noop := func() {}

	switch cfg.Store.Backend {
	case "filesystem":
		backend, err := filesystem.NewInDir(cfg.Store.Filesystem.Dir)
		if err != nil {
			return nil, noop, err
		}
		return backend, noop, nil

	case "s3":
		client, err := s3storage.NewClient(ctx, s3storage.ClientConfig{
			Region:          cfg.Store.S3.Region,
			AccessKeyID:     cfg.Store.S3.AccessKeyID,
			SecretAccessKey: cfg.Store.S3.SecretAccessKey,
			SessionToken:    cfg.Store.S3.SessionToken,
			Endpoint:        cfg.Store.S3.Endpoint,
		})
		if err != nil {
			return nil, noop, err
		}
		backend, err := s3storage.New(client, cfg.Store.S3.Bucket)
		if err != nil {
			return nil, noop, err
		}
		return backend, noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildIndex constructs the configured artifact index.
func buildIndex(ctx context.Context, cfg *config.Config) (index.Index, func(), error) {
	noop := func() {}

	switch cfg.Index.Driver {
	case "sqlite":
		sqliteCfg := sqliteindex.DefaultConfig()
		sqliteCfg.DSN = cfg.Index.SQLite.DSN
		idx, err := sqliteindex.New(sqliteCfg)
		if err != nil {
			return nil, noop, err
		}
		return idx, func() { _ = idx.Close() }, nil

	case "postgres":
		idx, err := postgresindex.Connect(ctx, cfg.Index.Postgres.DSN, cfg.Index.Postgres.Schema)
		if err != nil {
			return nil, noop, err
		}
		if err := idx.Migrate(ctx); err != nil {
			idx.Close()
			return nil, noop, err
		}
		return idx, func() { idx.Close() }, nil

	case "badger":
		idx, err := badgerindex.New(badgerindex.DefaultConfig(), badgerindex.WithDir(cfg.Index.Badger.Dir))
		if err != nil {
			return nil, noop, err
		}
		return idx, func() { _ = idx.Close() }, nil

	case "memory":
		return memoryindex.New(), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown index driver %q", cfg.Index.Driver)
	}
}
