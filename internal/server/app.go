// Package server initializes and runs the userhub server.
// It opens the database and applies migrations, connects the image host,
// starts the REST API, the gRPC health endpoint and the photo sweeper, and
// handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/userhub/internal/cryptox"
	"github.com/dmitrijs2005/userhub/internal/filex"
	"github.com/dmitrijs2005/userhub/internal/logging"
	"github.com/dmitrijs2005/userhub/internal/server/config"
	"github.com/dmitrijs2005/userhub/internal/server/imagehost"
	"github.com/dmitrijs2005/userhub/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/userhub/internal/server/rest"
	"github.com/dmitrijs2005/userhub/internal/server/services"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	gs "github.com/dmitrijs2005/userhub/internal/server/grpc"
)

const (
	// multipartOverhead is allowed on top of the photo size for the
	// multipart framing and any extra form fields.
	multipartOverhead = 64 << 10

	healthCheckInterval = 10 * time.Second
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	httpServer *rest.Server
	grpcServer *gs.GRPCServer
	cron       *cron.Cron
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	uploadDir, err := filex.EnsureSubdDir(c.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("upload dir init error: %w", err)
	}
	c.UploadDir = uploadDir

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	images, err := imagehost.NewS3Host(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("image host init error: %w", err)
	}
	if err := images.EnsureBucket(ctx); err != nil {
		logger.Warn(ctx, "image bucket is not ready", "bucket", c.S3Bucket, "error", err)
	}

	hasher := cryptox.NewBcryptHasher(cryptox.DefaultCost)
	as := services.NewAuthService(db, rm, hasher, c, logger)
	ps := services.NewProfileService(db, rm, hasher, images, c, logger)

	h := rest.NewHandler(as, ps, c.MaxPhotoSize+multipartOverhead, logger)
	router := rest.NewRouter(h, rest.RouterOptions{
		SecretKey:    []byte(c.SecretKey),
		LoginLimiter: rest.NewClientLimiter(rate.Every(c.LoginRateInterval), c.LoginRateBurst),
		Logger:       logger,
	})

	sweeper := services.NewPhotoSweeper(db, rm, images, c.PhotoSweepGrace, logger)
	sched, err := newSweepCron(c.PhotoSweepSchedule, sweeper)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("photo sweep schedule error: %w", err)
	}

	return &App{
		config:     c,
		logger:     logger,
		db:         db,
		httpServer: rest.NewServer(c.HTTPAddr, router, logger),
		grpcServer: gs.NewGRPCServer(c.GRPCAddr, logger, db, healthCheckInterval),
		cron:       sched,
	}, nil
}

// newSweepCron schedules job on spec. An empty spec disables sweeping and
// yields a nil scheduler.
func newSweepCron(spec string, job cron.Job) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddJob(spec, job); err != nil {
		return nil, err
	}
	return c, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpServer.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpcServer.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startSweeper(ctx context.Context) {
	if app.cron == nil {
		app.logger.Info(ctx, "Photo sweeper disabled")
		return
	}

	app.logger.Info(ctx, "Starting photo sweeper", "schedule", app.config.PhotoSweepSchedule)
	app.cron.Start()

	<-ctx.Done()
	app.logger.Info(ctx, "Stopping photo sweeper...")
	<-app.cron.Stop().Done()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startSweeper(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
