package service

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Brownie44l1/route-grader/internal/config"
	"github.com/Brownie44l1/route-grader/internal/detect"
	"github.com/Brownie44l1/route-grader/internal/gnn"
	"github.com/Brownie44l1/route-grader/internal/holds"
	"github.com/Brownie44l1/route-grader/internal/model"
)

// Models holds every loaded network. Close releases the ONNX sessions and the runtime.
type Models struct {
	Extractor *holds.Extractor
	GNN       *gnn.Model

	sessions []*model.Session
}

// LoadModels initializes the ONNX runtime and loads the colour detector, the type
// classifier and, when cfg names weights, the grade network.
func LoadModels(cfg config.Config, logger *zap.SugaredLogger) (*Models, error) {
	if err := model.InitRuntime(cfg.ORTLibrary); err != nil {
		return nil, err
	}
	m := &Models{}
	if err := m.load(cfg, logger); err != nil {
		return nil, multierr.Append(err, m.Close())
	}
	return m, nil
}

func (m *Models) load(cfg config.Config, logger *zap.SugaredLogger) error {
	colors, err := m.detector("color", cfg.ColorModel, cfg.ColorMetadata, cfg)
	if err != nil {
		return err
	}
	types, err := m.detector("type", cfg.TypeModel, cfg.TypeMetadata, cfg)
	if err != nil {
		return err
	}
	logger.Infow("detectors loaded", "colors", colors.Classes(), "types", types.Classes())

	if m.Extractor, err = holds.NewExtractor(colors, types, logger); err != nil {
		return err
	}
	if cfg.GNNWeights == "" {
		return nil
	}
	if m.GNN, err = gnn.Load(cfg.GNNWeights); err != nil {
		return err
	}
	logger.Infow("grade network loaded", "path", cfg.GNNWeights, "grades", m.GNN.Grades())
	return nil
}

func (m *Models) detector(name, modelPath, metadataPath string, cfg config.Config) (*detect.YOLO, error) {
	sess, err := model.NewSession(modelPath, metadataPath)
	if err != nil {
		return nil, errors.Wrapf(err, "%s model", name)
	}
	m.sessions = append(m.sessions, sess)
	y, err := detect.NewYOLO(sess, sess.Metadata,
		detect.WithConfidence(cfg.Confidence), detect.WithIoU(cfg.IoU))
	if err != nil {
		return nil, errors.Wrapf(err, "%s model", name)
	}
	return y, nil
}

// Close closes every session and shuts the runtime down.
func (m *Models) Close() error {
	var err error
	for _, s := range m.sessions {
		err = multierr.Append(err, s.Close())
	}
	m.sessions = nil
	return multierr.Append(err, model.ShutdownRuntime())
}
