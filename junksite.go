// Package junksite is the backend of a junk-removal business website: a
// public JSON API for blog posts, newsletter signups and contact requests,
// and a bearer-protected admin API to manage them. Posts can be exported to
// and imported from zip archives (see package archive).
package junksite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/junksite/archive"
	"github.com/eringen/junksite/notify"
)

const shutdownTimeout = 10 * time.Second

// App wires together the store, cache, handlers and middleware.
type App struct {
	Config  SiteConfig
	Echo    *echo.Echo
	Store   *Store
	Cache   *PostCache
	Logger  *slog.Logger
	Metrics Metrics

	prom        *PromMetrics
	decoder     *archive.Decoder
	auth        Authorizer
	authLimiter *RateLimiter
	formLimiter *RateLimiter
	publisher   notify.Publisher
	ownsStore   bool
	ready       bool
}

// New creates an App with the given configuration. Call Setup or Run next.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.publisher == nil {
		a.publisher = notify.Noop{}
	}
	return a
}

// Setup opens the store and registers middleware and routes. It does not
// start listening.
func (a *App) Setup() error {
	if a.ready {
		return nil
	}
	if err := a.Config.Validate(); err != nil {
		return err
	}

	if a.Store == nil {
		store, err := NewStore(a.Config.DatabasePath)
		if err != nil {
			return fmt.Errorf("junksite: init store: %w", err)
		}
		a.Store = store
		a.ownsStore = true
	}

	a.Cache = NewPostCache(a.Store, a.Config.PostCacheTTL)
	if a.Metrics == nil {
		a.prom = NewPromMetrics()
		a.Metrics = a.prom
	}
	a.decoder = archive.NewDecoder(a.Config.ScratchDir, a.Logger)
	a.auth = NewTokenAuthorizer(a.Config.AdminToken)
	a.authLimiter = NewRateLimiter(10, time.Minute)
	a.formLimiter = NewRateLimiter(5, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()
	a.ready = true
	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.Setup(); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", "addr", a.Config.Addr, "url", a.Config.URL)
		errc <- a.Echo.Start(a.Config.Addr)
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Logger.Info("shutting down")
	return a.Echo.Shutdown(shutdownCtx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.GET("/healthz", a.handleHealth)
	if a.prom != nil {
		e.GET("/metrics", echo.WrapHandler(a.prom.Handler()))
	}
	e.GET("/feed.xml", a.handleFeed)

	api := e.Group("/api")

	// Public routes
	api.GET("/posts", a.handleListPosts)
	api.GET("/posts/categories", a.handleCategories)
	api.GET("/posts/:id", a.handleGetPost)
	api.GET("/posts/:id/related", a.handleRelatedPosts)
	api.GET("/posts/:id/image", a.handlePostImage)
	api.GET("/posts/:id/export", a.handleExport)
	api.POST("/newsletter", a.handleSubscribe)
	api.POST("/contact", a.handleContact)

	// Admin routes
	postsWrite := a.requireScope(ScopePostsWrite)
	inboxRead := a.requireScope(ScopeInboxRead)
	inboxWrite := a.requireScope(ScopeInboxWrite)

	api.POST("/posts", a.handleCreatePost, postsWrite, limitBody(a.Config.MaxImageSize))
	api.PUT("/posts/:id", a.handleUpdatePost, postsWrite, limitBody(a.Config.MaxImageSize))
	api.DELETE("/posts/:id", a.handleDeletePost, postsWrite)
	api.POST("/posts/import", a.handleImport, postsWrite, limitBody(a.Config.MaxImportSize))

	api.GET("/newsletter", a.handleListSubscribers, inboxRead)
	api.DELETE("/newsletter/:id", a.handleDeleteSubscriber, inboxWrite)
	api.GET("/contact", a.handleListContacts, inboxRead)
	api.DELETE("/contact/:id", a.handleDeleteContact, inboxWrite)
}

// publish sends a site event. Delivery is best-effort.
func (a *App) publish(ctx context.Context, ev notify.Event) {
	if err := a.publisher.Publish(ctx, ev); err != nil {
		a.Logger.Warn("publish event failed", "kind", ev.Kind, "id", ev.ID, "error", err)
	}
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.authLimiter != nil {
		a.authLimiter.Stop()
	}
	if a.formLimiter != nil {
		a.formLimiter.Stop()
	}
	a.publisher.Close()
	if a.ownsStore && a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
