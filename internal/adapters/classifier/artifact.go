// Package classifier loads the pre-trained burst classifier and the source
// encoding it was fitted with.
//
// An artifact is described by a YAML manifest:
//
//	kind: forest                  # forest | onnx
//	model: rf_model.json          # .zst suffix for zstd-compressed files
//	encoding: label_encoder.json  # .json vocabulary or .bolt database
//	onnx_runtime: libonnxruntime.so
//	feature_order: [src_ip_encoded, request_rate, unique_urls_proxy]
//
// Relative paths resolve against the manifest's directory.
package classifier

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

const (
	KindForest = "forest"
	KindONNX   = "onnx"

	ManifestName = "manifest.yaml"
)

var FeatureOrder = []string{"src_ip_encoded", "request_rate", "unique_urls_proxy"}

type Manifest struct {
	Kind         string   `yaml:"kind"`
	Model        string   `yaml:"model"`
	Encoding     string   `yaml:"encoding"`
	ONNXRuntime  string   `yaml:"onnx_runtime,omitempty"`
	FeatureOrder []string `yaml:"feature_order,omitempty"`
	TrainedAt    string   `yaml:"trained_at,omitempty"`

	dir string
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.dir, p)
}

func (m *Manifest) ModelPath() string    { return m.resolve(m.Model) }
func (m *Manifest) EncodingPath() string { return m.resolve(m.Encoding) }

func (m *Manifest) RuntimePath() string {
	if m.ONNXRuntime == "" {
		return filepath.Join(filepath.Dir(m.ModelPath()), "libonnxruntime.so")
	}
	return m.resolve(m.ONNXRuntime)
}

func (m *Manifest) validate() error {
	switch m.Kind {
	case KindForest, KindONNX:
	default:
		return fmt.Errorf("manifest: unknown kind %q", m.Kind)
	}
	if m.Model == "" {
		return errors.New("manifest: model is required")
	}
	if m.Encoding == "" {
		return errors.New("manifest: encoding is required")
	}
	if len(m.FeatureOrder) > 0 && !slices.Equal(m.FeatureOrder, FeatureOrder) {
		return fmt.Errorf("manifest: feature order %v, want %v", m.FeatureOrder, FeatureOrder)
	}
	return nil
}

// ReadManifest accepts the manifest file itself or a directory holding
// manifest.yaml.
func ReadManifest(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingArtifactError{Component: "artifact", Path: path, Err: err}
		}
		return nil, err
	}
	if info.IsDir() {
		path = filepath.Join(path, ManifestName)
	}

	data, err := readArtifactFile(path, "manifest")
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

type model interface {
	Predict(x [numFeatures]float64) (domain.Label, error)
	Close() error
}

// Artifact binds a model to its encoding and implements ports.Classifier.
type Artifact struct {
	manifest *Manifest
	encoder  closableEncoder
	model    model
}

func Load(path string) (*Artifact, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}

	enc, err := loadEncoding(m.EncodingPath())
	if err != nil {
		return nil, err
	}

	var mdl model
	switch m.Kind {
	case KindForest:
		mdl, err = LoadForest(m.ModelPath())
	case KindONNX:
		mdl, err = LoadONNXModel(m.ModelPath(), m.RuntimePath())
	}
	if err != nil {
		enc.Close()
		return nil, err
	}

	log.Info().
		Str("kind", m.Kind).
		Str("model", m.ModelPath()).
		Int("known_sources", enc.Size()).
		Str("trained_at", m.TrainedAt).
		Msg("Classifier artifact loaded")

	return &Artifact{manifest: m, encoder: enc, model: mdl}, nil
}

// New assembles an artifact from already loaded parts.
func New(kind string, enc closableEncoder, mdl model) *Artifact {
	return &Artifact{manifest: &Manifest{Kind: kind}, encoder: enc, model: mdl}
}

func (a *Artifact) Encode(sourceID string) int {
	return a.encoder.Encode(sourceID)
}

func (a *Artifact) Size() int {
	return a.encoder.Size()
}

func (a *Artifact) Predict(encodedID int, features domain.Features) (domain.Label, error) {
	return a.model.Predict(features.Vector(encodedID))
}

func (a *Artifact) Name() string {
	return a.manifest.Kind
}

func (a *Artifact) Manifest() Manifest {
	return *a.manifest
}

func (a *Artifact) Close() error {
	return errors.Join(a.model.Close(), a.encoder.Close())
}
