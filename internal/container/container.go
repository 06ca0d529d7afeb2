package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"xiapu/imageguard/internal/category"
	"xiapu/imageguard/internal/client"
	"xiapu/imageguard/internal/config"
	"xiapu/imageguard/internal/dom"
	"xiapu/imageguard/internal/domain"
	"xiapu/imageguard/internal/httpapi"
	"xiapu/imageguard/internal/proxy"
	"xiapu/imageguard/internal/retry"
	"xiapu/imageguard/internal/service"
	"xiapu/imageguard/internal/state"
	"xiapu/imageguard/internal/stats"
	"xiapu/imageguard/internal/viewport"
	"xiapu/imageguard/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

// Container holds all initialized components
type Container struct {
	Config   *config.Config
	Document *dom.Document
	Store    state.Store
	Pipeline *service.Pipeline
	Watcher  *watcher.Watcher
	// Nil when images load eagerly.
	Tracker *viewport.Tracker
	// Nil when no inbox directory is configured.
	Inbox *watcher.Inbox

	fs    afero.Fs
	redis *redis.Client
}

// New creates a new container with all dependencies initialized
func New(cfg *config.Config, fs afero.Fs) (*Container, error) {
	container := &Container{
		Config: cfg,
		fs:     fs,
	}

	page, err := fs.Open(cfg.Site.Page)
	if err != nil {
		return nil, fmt.Errorf("failed to open page %s: %w", cfg.Site.Page, err)
	}
	defer page.Close()

	doc, err := dom.Parse(page)
	if err != nil {
		return nil, err
	}
	container.Document = doc

	resolver, err := newResolver(cfg.Images)
	if err != nil {
		return nil, err
	}

	var proxies proxy.Supplier
	if len(cfg.Images.Proxies) > 0 {
		proxies = proxy.NewSupplier(context.Background(), cfg.Images.Proxies, proxyTestURL(cfg))
	}

	prober, err := client.NewProber(client.Options{
		SiteURL:              cfg.Site.SiteURL,
		Timeout:              cfg.Images.ProbeTimeout,
		MaxRequestsPerSecond: cfg.Images.MaxRequestsPerSecond,
		UserAgent:            cfg.Images.UserAgent,
		Proxies:              proxies,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prober: %w", err)
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
		})

		// Test connection
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("✅ Connected to Redis successfully")

		container.redis = rdb
		container.Store = state.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
	} else {
		container.Store = state.NewMemoryStore()
	}

	reporter := stats.NewReporter(stats.NewLogOverlay(), stats.NewStoreOverlay(container.Store))

	var observer viewport.Observer
	if cfg.Images.Lazy {
		container.Tracker = viewport.NewTracker(cfg.Images.ViewportHeight, cfg.Images.RootMargin, cfg.Images.RowHeight)
		observer = container.Tracker
	}

	container.Pipeline = service.NewPipeline(
		doc,
		resolver,
		prober,
		retry.NewController(cfg.Images.MaxRetries, cfg.Images.RetryDelayBase),
		reporter,
		observer,
		service.Options{
			RetryAllStagger:     cfg.Images.RetryAllStagger,
			HealthCheckInterval: cfg.Images.HealthCheckInterval,
			MaxParallelChecks:   cfg.Images.MaxParallelChecks,
		},
	)
	container.Watcher = watcher.New(doc, container.Pipeline)

	if cfg.Site.Inbox != "" {
		container.Inbox = watcher.NewInbox(fs, cfg.Site.Inbox, cfg.Site.InsertSelector, doc)
	}

	return container, nil
}

// proxyTestURL picks a URL every proxy should be able to fetch.
func proxyTestURL(cfg *config.Config) string {
	if cfg.Site.SiteURL != "" {
		return cfg.Site.SiteURL
	}
	if urls := cfg.Images.Categories[domain.DefaultCategory.String()]; len(urls) > 0 {
		return urls[0]
	}
	return "https://www.example.com"
}

func newResolver(cfg config.ImagesConfig) (*category.Resolver, error) {
	var pool *domain.CategoryPool
	if cfg.AutoAssign {
		urls := make(map[domain.Category][]string, len(cfg.Categories))
		for name, list := range cfg.Categories {
			c, ok := domain.ParseCategory(name)
			if !ok {
				return nil, fmt.Errorf("unknown image category %q", name)
			}
			urls[c] = list
		}

		var err error
		if pool, err = domain.NewCategoryPool(urls); err != nil {
			return nil, fmt.Errorf("invalid images.categories: %w", err)
		}
	}

	assets := make(map[domain.FallbackType][]string, len(cfg.Fallbacks))
	for name, list := range cfg.Fallbacks {
		t, err := domain.ParseFallbackType(name)
		if err != nil {
			return nil, err
		}
		assets[t] = list
	}
	fallbacks, err := domain.NewFallbackPool(assets)
	if err != nil {
		return nil, fmt.Errorf("invalid images.fallbacks: %w", err)
	}

	return category.NewResolver(pool, fallbacks, nil), nil
}

// start begins watching the document and enrolls the images already there.
func (c *Container) start() {
	c.Watcher.Start()
	c.Pipeline.Start()
}

// Run serves the control API, the health check loop and the inbox until
// ctx is cancelled.
func (c *Container) Run(ctx context.Context) error {
	c.start()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.Pipeline.RunHealthChecks(ctx)
	})

	if c.Inbox != nil {
		g.Go(func() error {
			return c.Inbox.Run(ctx)
		})
	}

	server := &http.Server{
		Addr: c.Config.Server.Addr(),
		Handler: httpapi.NewRouter(&httpapi.App{
			Pipeline:       c.Pipeline,
			Document:       c.Document,
			Viewport:       c.scroller(),
			InsertSelector: c.Config.Site.InsertSelector,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Infof("🚀 Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// scroller keeps a nil tracker from turning into a non-nil interface.
func (c *Container) scroller() httpapi.Scroller {
	if c.Tracker == nil {
		return nil
	}
	return c.Tracker
}

// Check resolves every image once, inbox fragments included, and returns
// the final stats.
func (c *Container) Check(ctx context.Context) (domain.Stats, error) {
	c.start()

	if c.Inbox != nil {
		if _, err := c.Inbox.Scan(); err != nil {
			return domain.Stats{}, err
		}
	}

	if err := c.Pipeline.WaitIdle(ctx); err != nil {
		return c.Pipeline.Stats(), fmt.Errorf("images did not settle: %w", err)
	}
	return c.Pipeline.Stats(), nil
}

// WritePage renders the current document to path.
func (c *Container) WritePage(path string) error {
	out, err := c.Document.HTML()
	if err != nil {
		return err
	}
	if err := afero.WriteFile(c.fs, path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	c.Watcher.Stop()
	err := c.Pipeline.Close()
	if c.redis != nil {
		err = multierr.Append(err, c.redis.Close())
	}

	log.Info("Container shut down successfully")
	return err
}
