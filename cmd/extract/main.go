// Command extract turns a folder of labelled wall photos into route records for
// training the grade network.
package main

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/route-grader/internal/annotate"
	"github.com/Brownie44l1/route-grader/internal/config"
	"github.com/Brownie44l1/route-grader/internal/fetch"
	"github.com/Brownie44l1/route-grader/internal/holds"
	"github.com/Brownie44l1/route-grader/internal/logging"
	"github.com/Brownie44l1/route-grader/internal/route"
	"github.com/Brownie44l1/route-grader/internal/service"
)

func main() {
	def := config.Default()
	app := &cli.App{
		Name:      "extract",
		Usage:     "extract routes from photos named like orange_V4.jpg",
		ArgsUsage: "<image folder>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "routes.json", Usage: "routes JSON file"},
			&cli.StringFlag{Name: "results-dir", Usage: "write annotated <image_id>_color_result.jpg files here"},
			&cli.IntFlag{Name: "workers", Value: runtime.NumCPU()},
			&cli.StringFlag{Name: "color-model", Required: true, EnvVars: []string{"COLOR_MODEL"}},
			&cli.StringFlag{Name: "color-metadata", Required: true, EnvVars: []string{"COLOR_METADATA"}},
			&cli.StringFlag{Name: "type-model", Required: true, EnvVars: []string{"TYPE_MODEL"}},
			&cli.StringFlag{Name: "type-metadata", Required: true, EnvVars: []string{"TYPE_METADATA"}},
			&cli.StringFlag{Name: "ort-lib", EnvVars: []string{"ORT_LIB"}},
			&cli.Float64Flag{Name: "confidence", Value: def.Confidence},
			&cli.Float64Flag{Name: "iou", Value: def.IoU},
			&cli.StringFlag{Name: "mongo-uri", Usage: "also save routes to MongoDB", EnvVars: []string{"MONGO_URI"}},
			&cli.StringFlag{Name: "mongo-db", Value: def.MongoDB, EnvVars: []string{"MONGO_DB"}},
			&cli.StringFlag{Name: "log-level", Value: def.LogLevel},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run(c *cli.Context) (err error) {
	if c.NArg() != 1 {
		return errors.New("expected exactly one image folder")
	}
	folder := c.Args().First()

	cfg := config.Default()
	cfg.ColorModel = c.String("color-model")
	cfg.ColorMetadata = c.String("color-metadata")
	cfg.TypeModel = c.String("type-model")
	cfg.TypeMetadata = c.String("type-metadata")
	cfg.ORTLibrary = c.String("ort-lib")
	cfg.Confidence = c.Float64("confidence")
	cfg.IoU = c.Float64("iou")
	cfg.MongoURI = c.String("mongo-uri")
	cfg.MongoDB = c.String("mongo-db")
	cfg.LogLevel = c.String("log-level")

	logger, err := logging.New("extract", logging.Options{Level: cfg.LogLevel})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	images, skipped, err := collectImages(folder)
	if err != nil {
		return err
	}
	for _, name := range skipped {
		logger.Warnw("skipping: could not parse color/grade", "image", name)
	}

	resultsDir := c.String("results-dir")
	if resultsDir != "" {
		if err := os.MkdirAll(resultsDir, 0o755); err != nil {
			return errors.Wrap(err, "create results dir")
		}
	}

	// Only the detectors are loaded; no gnn weights are configured.
	models, err := service.LoadModels(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, models.Close()) }()

	ex := &extractor{
		classifier: models.Extractor,
		loader:     fetch.NewLoader(nil, cfg.MaxImageBytes),
		resultsDir: resultsDir,
		logger:     logger,
		routes:     make([]*route.Route, len(images)),
	}

	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(max(1, c.Int("workers")))
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			return ex.process(ctx, i, img)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	routes := ex.collected()
	out := route.NewFileStore(c.String("output"))
	if err := out.Save(c.Context, routes); err != nil {
		return err
	}
	logger.Infow("saved routes", "count", len(routes), "folder", folder, "output", out.Path())

	if cfg.MongoURI != "" {
		mongo, merr := route.NewMongoStore(c.Context, cfg.MongoURI, cfg.MongoDB)
		if merr != nil {
			return merr
		}
		defer func() { err = multierr.Append(err, mongo.Close(context.Background())) }()
		if err := mongo.Save(c.Context, routes); err != nil {
			return err
		}
		logger.Infow("saved routes to mongo", "count", len(routes), "db", cfg.MongoDB)
	}
	return nil
}

type extractor struct {
	classifier *holds.Extractor
	loader     *fetch.Loader
	resultsDir string
	logger     *zap.SugaredLogger

	mu     sync.Mutex
	routes []*route.Route
}

func (e *extractor) process(ctx context.Context, i int, li labelledImage) error {
	img, err := e.loader.Load(ctx, li.Path)
	if err != nil {
		return errors.Wrapf(err, "load %s", li.Name)
	}
	byColor, wall, err := e.classifier.ClassifyAll(ctx, img)
	if err != nil {
		return errors.Wrapf(err, "classify %s", li.Name)
	}
	hs := byColor[li.Color]

	if e.resultsDir != "" {
		if err := e.writeResult(li, img, hs); err != nil {
			return err
		}
	}

	if len(hs) == 0 {
		e.logger.Warnw("no holds found for color", "color", li.Color, "image", li.Name)
		return nil
	}
	rt := route.New(li.RouteID(), li.Name, li.Color, wall, hs, li.Grade)
	e.mu.Lock()
	e.routes[i] = &rt
	e.mu.Unlock()
	e.logger.Debugw("extracted route", "route_id", rt.RouteID, "holds", rt.NumHolds, "grade", rt.Grade)
	return nil
}

func (e *extractor) writeResult(li labelledImage, img image.Image, hs []holds.Hold) (err error) {
	path := filepath.Join(e.resultsDir, li.ID+"_color_result.jpg")
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create result image")
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	return errors.Wrapf(annotate.WriteJPEG(f, img, hs), "write %s", path)
}

// collected returns the extracted routes in image order.
func (e *extractor) collected() []route.Route {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]route.Route, 0, len(e.routes))
	for _, r := range e.routes {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
