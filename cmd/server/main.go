package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Brownie44l1/route-grader/internal/config"
	"github.com/Brownie44l1/route-grader/internal/fetch"
	"github.com/Brownie44l1/route-grader/internal/handlers"
	"github.com/Brownie44l1/route-grader/internal/logging"
	"github.com/Brownie44l1/route-grader/internal/route"
	"github.com/Brownie44l1/route-grader/internal/service"
)

const (
	fetchTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	def := config.Default()
	app := &cli.App{
		Name:  "route-grader",
		Usage: "serve bouldering route grade predictions over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Value: def.Port, EnvVars: []string{"PORT"}},
			&cli.StringFlag{Name: "color-model", Usage: "hold colour detector (.onnx)", EnvVars: []string{"COLOR_MODEL"}},
			&cli.StringFlag{Name: "color-metadata", Usage: "colour detector metadata (.json)", EnvVars: []string{"COLOR_METADATA"}},
			&cli.StringFlag{Name: "type-model", Usage: "hold type classifier (.onnx)", EnvVars: []string{"TYPE_MODEL"}},
			&cli.StringFlag{Name: "type-metadata", Usage: "type classifier metadata (.json)", EnvVars: []string{"TYPE_METADATA"}},
			&cli.StringFlag{Name: "gnn-weights", Usage: "grade network weights (.json)", EnvVars: []string{"GNN_WEIGHTS"}},
			&cli.StringFlag{Name: "ort-lib", Usage: "path to the onnxruntime shared library", EnvVars: []string{"ORT_LIB"}},
			&cli.Float64Flag{Name: "confidence", Value: def.Confidence, EnvVars: []string{"CONFIDENCE"}},
			&cli.Float64Flag{Name: "iou", Value: def.IoU, EnvVars: []string{"IOU"}},
			&cli.StringFlag{Name: "routes-path", Usage: "record predictions to this JSON file", EnvVars: []string{"ROUTES_PATH"}},
			&cli.StringFlag{Name: "mongo-uri", Usage: "record predictions to MongoDB", EnvVars: []string{"MONGO_URI"}},
			&cli.StringFlag{Name: "mongo-db", Value: def.MongoDB, EnvVars: []string{"MONGO_DB"}},
			&cli.DurationFlag{Name: "stub-delay", Value: def.StubDelay, Usage: "simulated latency without models", EnvVars: []string{"STUB_DELAY"}},
			&cli.Int64Flag{Name: "max-image-bytes", Value: def.MaxImageBytes, EnvVars: []string{"MAX_IMAGE_BYTES"}},
			&cli.StringFlag{Name: "log-level", Value: def.LogLevel, EnvVars: []string{"LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-file", EnvVars: []string{"LOG_FILE"}},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func configFrom(c *cli.Context) config.Config {
	return config.Config{
		Port:          c.String("port"),
		ColorModel:    c.String("color-model"),
		ColorMetadata: c.String("color-metadata"),
		TypeModel:     c.String("type-model"),
		TypeMetadata:  c.String("type-metadata"),
		GNNWeights:    c.String("gnn-weights"),
		ORTLibrary:    c.String("ort-lib"),
		Confidence:    c.Float64("confidence"),
		IoU:           c.Float64("iou"),
		RoutesPath:    c.String("routes-path"),
		MongoURI:      c.String("mongo-uri"),
		MongoDB:       c.String("mongo-db"),
		StubDelay:     c.Duration("stub-delay"),
		MaxImageBytes: c.Int64("max-image-bytes"),
		LogLevel:      c.String("log-level"),
		LogFile:       c.String("log-file"),
	}
}

func run(c *cli.Context) (err error) {
	cfg := configFrom(c)
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	logger, err := logging.New("server", logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var predictor service.Predictor
	if cfg.HasModels() {
		models, lerr := service.LoadModels(cfg, logger)
		if lerr != nil {
			return lerr
		}
		defer func() { err = multierr.Append(err, models.Close()) }()
		predictor = service.NewPipeline(models.Extractor, models.GNN, logger)
	} else {
		logger.Warnw("no models configured, serving placeholder grades", "delay", cfg.StubDelay)
		predictor = service.NewRandom(cfg.StubDelay)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err = multierr.Append(err, store.Close(closeCtx))
		}()
	}

	loader := fetch.NewLoader(&http.Client{Timeout: fetchTimeout}, cfg.MaxImageBytes)
	h := handlers.NewHandler(predictor, loader, store, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           cors.AllowAll().Handler(h.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Infow("server starting", "addr", srv.Addr)
	logger.Info("endpoints:")
	logger.Info("  GET  /                  - status")
	logger.Info("  GET  /health            - health check")
	logger.Info("  POST /api/upload        - grade from {image_url, hold_color}")
	logger.Info("  POST /predict/image     - grade from multipart image upload")
	logger.Info("  POST /api/predict/holds - grade from extracted holds")
	logger.Info("  GET  /api/routes        - recorded routes")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (route.Store, error) {
	switch {
	case cfg.MongoURI != "":
		logger.Infow("recording routes to mongo", "db", cfg.MongoDB)
		return route.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	case cfg.RoutesPath != "":
		logger.Infow("recording routes to file", "path", cfg.RoutesPath)
		return route.NewFileStore(cfg.RoutesPath), nil
	default:
		return nil, nil
	}
}
