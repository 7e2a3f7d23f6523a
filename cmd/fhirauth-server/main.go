package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-fhir-auth"
	"github.com/goliatone/go-fhir-auth/activitymap"
	"github.com/goliatone/go-fhir-auth/config"
	"github.com/goliatone/go-fhir-auth/middleware/jwtware"
	"github.com/goliatone/go-fhir-auth/repository"
	"github.com/goliatone/go-fhir-auth/storage"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
)

type App struct {
	config  *gconfig.Container[*config.BaseConfig]
	logger  *glog.BaseLogger
	bunDB   *bun.DB
	repo    auth.RepositoryManager
	metrics *auth.Metrics
	store   auth.ContentStore
	gateway *auth.BinaryGateway
	signer  *auth.BinarySigner
	tokens  auth.TokenService
	logins  auth.LoginStateMachine
	events  auth.ActivitySink
	fiber   *fiber.App
	srv     router.Server[*fiber.App]
}

func (a *App) Config() *config.BaseConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Debug),
		glog.WithName("fhirauth"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg := gconfig.New(&config.BaseConfig{}).
		WithLogger(lgr.GetLogger("config"))

	ctx := context.Background()
	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	if cfg.Raw().Debug {
		fmt.Println(print.MaybeHighlightJSON(cfg.Raw()))
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}

	steps := []func(context.Context, *App) error{
		WithMetrics,
		WithPersistence,
		WithContentStore,
		WithServices,
		WithHTTPServer,
	}
	for _, step := range steps {
		if err := step(ctx, app); err != nil {
			lgr.Error("startup failed", "error", err)
			os.Exit(1)
		}
	}
	defer app.bunDB.Close()
	defer storage.Close(app.store)

	if app.Config().GetPersistence().GetSeed() {
		if err := Seed(ctx, app); err != nil {
			lgr.Error("seed failed", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		if err := app.srv.Serve(app.Config().GetServer().GetAddress()); err != nil {
			lgr.Error("server stopped", "error", err)
		}
	}()

	sig := WaitExitSignal()
	lgr.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, app.Config().GetServer().GetShutdownTimeout())
	defer cancel()
	if err := app.srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("shutdown failed", "error", err)
	}
}

func WithMetrics(_ context.Context, app *App) error {
	if !app.Config().GetMetrics().GetEnabled() {
		return nil
	}
	app.metrics = auth.NewMetrics(prometheus.DefaultRegisterer)
	return nil
}

func WithPersistence(ctx context.Context, app *App) error {
	manager, db, err := repository.NewRepositoryManager(
		ctx,
		app.Config().GetPersistence(),
		app.metrics,
		auth.WithResourceRepositoryLogger(app.GetLogger("repository")),
	)
	if err != nil {
		return err
	}
	app.bunDB = db
	app.repo = manager
	return nil
}

func WithContentStore(ctx context.Context, app *App) error {
	cfg := app.Config().GetStorage()
	switch cfg.GetProvider() {
	case "gcs":
		store, err := storage.NewGCSStore(ctx, cfg.GetBucket(), cfg.GetCredentialsFile())
		if err != nil {
			return err
		}
		app.store = store
	default:
		app.store = storage.NewFileSystemStore(cfg.GetBaseDir())
	}
	return nil
}

func WithServices(_ context.Context, app *App) error {
	acfg := app.Config().GetAuth()
	resources := app.repo.Resources()

	app.events = activitymap.NewLogSink(app.GetLogger("activity"),
		activitymap.WithChannel(app.Config().Name),
	)

	app.logins = auth.NewLoginStateMachine(resources,
		auth.WithStateMachineLogger(app.GetLogger("logins")),
		auth.WithStateMachineActivitySink(app.events),
		auth.WithStateMachineMetrics(app.metrics),
	)

	app.tokens = auth.NewTokenServiceFromConfig(acfg, app.GetLogger("tokens"))
	app.signer = auth.NewBinarySigner([]byte(acfg.GetSigningKey()), acfg.GetBinaryURLTTL(), acfg.GetIssuer())

	app.gateway = auth.NewBinaryGateway(resources, app.store,
		auth.WithSignatureVerifier(app.signer),
		auth.WithBinaryGatewayLogger(app.GetLogger("storage")),
		auth.WithBinaryGatewayMetrics(app.metrics),
		auth.WithBinaryGatewayActivitySink(app.events),
	)
	return nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app.fiber = router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: app.Config().Debug,
			StrictRouting:     false,
		}))
		return app.fiber
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	resources := app.repo.Resources()
	bindProfile := auth.NewBindProfileHandler(app.logins).
		WithLogger(app.GetLogger("profile"))
	exchangeCode := auth.NewExchangeCodeHandler(resources, app.logins, app.tokens).
		WithActivitySink(app.events).
		WithLogger(app.GetLogger("token"))

	guard := jwtware.New(jwtware.Config{
		TokenValidator: app.tokens,
	})

	auth.RegisterProfileRoutes(srv.Router(),
		auth.WithBindProfileHandler(bindProfile),
		auth.WithExchangeCodeHandler(exchangeCode),
		auth.WithMeRoute(guard, auth.NewReferenceResolver(resources)),
		auth.WithControllerLogger(app.GetLogger("controller")),
		auth.WithControllerDebug(app.Config().Debug),
	)

	scfg := app.Config().GetStorage()
	opts := []storage.HandlerOption{
		storage.WithLogger(app.GetLogger("storage")),
		storage.WithSignedLocations(app.signer, scfg.GetBaseURL()),
	}
	if scfg.GetUploads() {
		opts = append(opts, storage.WithUploads(app.tokens))
	}
	storage.RegisterStorageRoutes(app.fiber, app.gateway, opts...)

	if mcfg := app.Config().GetMetrics(); mcfg.GetEnabled() {
		app.fiber.Get(mcfg.GetPath(), adaptor.HTTPHandler(promhttp.Handler()))
	}

	app.srv = srv
	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
