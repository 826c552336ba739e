package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"forkcast/api/internal/app"
	"forkcast/api/internal/eips"
	"forkcast/api/internal/export"
	"forkcast/api/internal/gitrepo"
	"forkcast/api/internal/loader"
	"forkcast/api/internal/render"
	"forkcast/api/internal/search"
	"forkcast/api/internal/store"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.Addr = addr
			}
			return c.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func (c *cli) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log := c.cfg, c.log
	ds, err := c.dataset()
	if err != nil {
		return err
	}

	deps := app.Deps{EIPs: ds, Log: log}

	var db *sql.DB
	if cfg.DraftsEnabled() {
		db, err = store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()
		if err := store.ApplyMigrations(ctx, db); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
			return fmt.Errorf("create repos dir: %w", err)
		}
		drafts := store.NewPostgresStore(db)
		deps.Store = drafts
		deps.Git = gitrepo.New(cfg.ReposDir)
		deps.Checks = append(deps.Checks, app.Check{Name: "database", Ping: drafts.Ping})
	} else {
		log.Info("no database configured; draft routes disabled")
	}

	var cache loader.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := loader.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisCache.Close()
		cache = redisCache
		deps.Checks = append(deps.Checks, app.Check{Name: "redis", Ping: redisCache.Ping})
		log.Info("using redis for the document cache")
	} else {
		cache = loader.NewMemoryCache(loader.WithMemoryTTL(cfg.CacheTTL))
	}

	gists := loader.NewGitHubGists(cfg.GitHubAPI, cfg.GitHubToken, nil)
	deps.Loader = loader.New(gists, cache, ds, loader.WithTTL(cfg.CacheTTL), loader.WithLogger(log))
	deps.Gists = gists
	deps.GistsForToken = func(token string) app.GistPublisher {
		return loader.NewGitHubGists(cfg.GitHubAPI, token, nil)
	}

	searchService, meili := c.searchService(ds, db)
	if meili != nil {
		defer meili.Close()
		deps.Checks = append(deps.Checks, app.Check{Name: "meilisearch", Ping: func(context.Context) error {
			if !meili.Healthy() {
				return errors.New("meilisearch unavailable")
			}
			return nil
		}})
	}
	deps.Search = searchService

	exportService, err := c.exportService(ctx, ds)
	if err != nil {
		return err
	}
	deps.Export = exportService

	service := app.New(cfg, deps)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("forkcast api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	searchService.Wait()
	return nil
}

// searchService wires Meilisearch when configured, with the local dataset
// scan and Postgres FTS as fallbacks. The returned client is nil without a
// Meilisearch URL.
func (c *cli) searchService(ds *eips.Dataset, db *sql.DB) (*search.Service, *search.Meili) {
	var (
		index  search.Index
		drafts search.Searcher
		pg     *search.PgFTS
		meili  *search.Meili
	)
	if db != nil {
		pg = search.NewPgFTS(db)
		drafts = pg
	}
	if strings.TrimSpace(c.cfg.MeiliURL) != "" {
		meili = search.NewMeili(c.cfg.MeiliURL, c.cfg.MeiliMasterKey, c.log)
		index = meili
	}

	svc := search.NewService(index, search.NewLocal(ds), drafts, c.log)
	svc.ReindexEIPs(search.RecordsFromDataset(ds))
	if pg != nil {
		svc.ReindexDrafts(context.Background(), pg)
	}
	return svc, meili
}

func (c *cli) exportService(ctx context.Context, ds *eips.Dataset) (*export.Service, error) {
	opts := []export.Option{export.WithLogger(c.log)}
	if c.cfg.MinioEndpoint != "" {
		objects, err := export.NewMinioStore(export.MinioConfig{
			Endpoint:  c.cfg.MinioEndpoint,
			AccessKey: c.cfg.MinioAccessKey,
			SecretKey: c.cfg.MinioSecretKey,
			Bucket:    c.cfg.MinioBucket,
			UseSSL:    c.cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			// Exports still work without uploads.
			c.log.Warn("export bucket unavailable", zap.String("bucket", c.cfg.MinioBucket), zap.Error(err))
		} else {
			opts = append(opts, export.WithObjectStore(objects))
		}
	}
	return export.NewService(render.New(ds), opts...), nil
}
