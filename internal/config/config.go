// Package config holds the settings shared by the server and the dataset tools.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Config is the full runtime configuration.
type Config struct {
	Port string

	ColorModel    string
	ColorMetadata string
	TypeModel     string
	TypeMetadata  string
	GNNWeights    string
	ORTLibrary    string

	Confidence float64
	IoU        float64

	RoutesPath string
	MongoURI   string
	MongoDB    string

	StubDelay     time.Duration
	MaxImageBytes int64

	LogLevel string
	LogFile  string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Port:          "8000",
		Confidence:    0.25,
		IoU:           0.7,
		MongoDB:       "climbing",
		StubDelay:     2 * time.Second,
		MaxImageBytes: 20 << 20,
		LogLevel:      "info",
	}
}

// HasModels reports whether any model file is configured. Without models the server
// answers with placeholder grades.
func (c Config) HasModels() bool {
	return c.ColorModel != "" || c.ColorMetadata != "" || c.TypeModel != "" ||
		c.TypeMetadata != "" || c.GNNWeights != ""
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
	return ":" + c.Port
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var err error
	if p, perr := strconv.Atoi(c.Port); perr != nil || p <= 0 || p > 65535 {
		err = multierr.Append(err, errors.Errorf("invalid port %q", c.Port))
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		err = multierr.Append(err, errors.Errorf("confidence must be in (0, 1), got %v", c.Confidence))
	}
	if c.IoU <= 0 || c.IoU >= 1 {
		err = multierr.Append(err, errors.Errorf("iou must be in (0, 1), got %v", c.IoU))
	}
	if c.StubDelay < 0 {
		err = multierr.Append(err, errors.New("stub delay cannot be negative"))
	}
	if c.MaxImageBytes <= 0 {
		err = multierr.Append(err, errors.New("max image bytes must be positive"))
	}
	if c.MongoURI != "" && c.MongoDB == "" {
		err = multierr.Append(err, errors.New("mongo database name is required with a mongo uri"))
	}
	if c.HasModels() {
		for name, path := range map[string]string{
			"color model":    c.ColorModel,
			"color metadata": c.ColorMetadata,
			"type model":     c.TypeModel,
			"type metadata":  c.TypeMetadata,
			"gnn weights":    c.GNNWeights,
		} {
			err = multierr.Append(err, checkFile(name, path))
		}
	}
	return err
}

func checkFile(name, path string) error {
	if path == "" {
		return errors.Errorf("%s is required when any model is configured", name)
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "%s", name)
	}
	if info.IsDir() {
		return errors.Errorf("%s %s is a directory", name, path)
	}
	return nil
}
