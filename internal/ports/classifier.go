package ports

import "github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"

// SourceEncoder maps a source id to the integer encoding the classifier was
// fitted with.
//
// Implementations:
//   - MapEncoding: in-memory vocabulary loaded from JSON
//   - BoltEncoding: read-only bbolt database with Bloom prefilter
type SourceEncoder interface {
	// Encode returns the fitted index of sourceID, or domain.UnseenSource.
	// It never fails.
	Encode(sourceID string) int

	// Size returns the number of known sources.
	Size() int
}

// Classifier is a pre-trained binary burst classifier bound to its encoding.
//
// Thread Safety: implementations MUST be safe for concurrent Predict calls.
type Classifier interface {
	SourceEncoder

	// Predict classifies the feature vector (encodedID, rate, unique URLs).
	//
	// Contract:
	//   - returns LabelBenign or LabelBurst for every encodedID, including
	//     domain.UnseenSource
	//   - errors only when the inference backend itself fails
	Predict(encodedID int, features domain.Features) (domain.Label, error)

	// Name identifies the backend for logging ("forest", "onnx").
	Name() string

	Close() error
}
