// Package app wires the pairgate runtime: config, logging, credential storage,
// the pairing orchestrator, HTTP routes and the artifact stream.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pairgate/cmd/internal/broadcast"
	"pairgate/cmd/internal/credstore"
	"pairgate/cmd/internal/linkapi"
	"pairgate/cmd/internal/observability"
	"pairgate/cmd/internal/pairing"
	"pairgate/cmd/internal/protocol"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App owns the HTTP server and every long-lived dependency behind it.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	stores  credstore.Provider
	channel *broadcast.Channel
	pairing *pairing.Service

	stream *broadcast.StreamGateway
	link   *linkapi.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}
	observability.RegisterMetrics()

	ctx := context.Background()

	var (
		pool      *pgxpool.Pool
		dbEnabled bool
	)
	if cfg.DatabaseURL != "" {
		p, err := openDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		pool, dbEnabled = p, true
		log.Info("db.enabled")
	} else {
		log.Info("db.disabled")
	}

	a := &App{cfg: cfg, log: log, dbPool: pool, dbEnabled: dbEnabled}
	if err := a.wire(ctx); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	stores, err := newCredentialProvider(ctx, a.cfg, a.log, a.dbPool)
	if err != nil {
		return err
	}
	a.stores = stores

	clients, err := protocol.NewFactory(a.cfg.ProtocolDriver, protocol.SimConfig{
		QRInterval: a.cfg.SimQRInterval,
		LinkAfter:  a.cfg.SimLinkAfter,
	})
	if err != nil {
		return err
	}

	browser := protocol.DefaultBrowser
	if a.cfg.Browser != "" {
		b, ok := protocol.ParseBrowser(a.cfg.Browser)
		if !ok {
			a.log.Warn("config.browser.invalid", "value", a.cfg.Browser)
		} else {
			browser = b
		}
	}

	var versions pairing.VersionSource = pairing.StaticVersion(pairing.FallbackVersion)
	if a.cfg.VersionURL != "" {
		versions = pairing.HTTPVersionSource{URL: a.cfg.VersionURL}
	}

	a.channel = broadcast.NewChannel(a.log, broadcast.DefaultRenderer{})
	a.stream = broadcast.NewStreamGateway(a.log, a.channel, a.cfg.Stream)

	svc, err := pairing.NewService(a.log, pairing.Config{
		Window:           a.cfg.LinkWindow,
		SettleInterval:   a.cfg.SettleInterval,
		VersionTimeout:   a.cfg.VersionTimeout,
		CodeTimeout:      a.cfg.CodeTimeout,
		DeliveryTimeout:  a.cfg.DeliveryTimeout,
		Browser:          browser,
		NotifyRegistered: a.cfg.NotifyRegistered,
	}, pairing.Deps{
		Stores:   a.stores,
		Clients:  clients,
		Channel:  a.channel,
		Versions: versions,
	})
	if err != nil {
		return err
	}
	a.pairing = svc

	link, err := linkapi.NewHandler(a.log, a.cfg.Link, svc)
	if err != nil {
		return err
	}
	a.link = link
	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.stream, a.link)
	return WithSecurityHeaders(WithRequestLogging(mux, a.log))
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbEnabled,
		"cred_store", a.cfg.CredStore,
		"protocol_driver", a.cfg.ProtocolDriver,
		"link_window", a.cfg.LinkWindow.String(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}
	if err := a.Close(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}

	a.log.Info("server.stopped")
	return runErr
}

// Close ends every live session, then releases the channel, stores and pool.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.pairing != nil {
		if serr := a.pairing.Shutdown(ctx); serr != nil {
			a.log.Error("pairing.shutdown.fail", "err", serr)
			err = serr
		}
	}
	a.closeResources()
	return err
}

func (a *App) closeResources() {
	if a.channel != nil {
		a.channel.Close()
	}
	if a.stores != nil {
		if err := a.stores.Close(); err != nil {
			a.log.Error("credstore.close.fail", "err", err)
		}
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
