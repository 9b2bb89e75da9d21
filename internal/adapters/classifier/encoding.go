package classifier

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/ports"
)

// encodingFile is the JSON export of a fitted label encoder. The index of a
// source in Classes is its encoding.
type encodingFile struct {
	Classes []string `json:"classes"`
}

type MapEncoding struct {
	index map[string]int
}

func NewMapEncoding(classes []string) (*MapEncoding, error) {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate source %q in encoding", c)
		}
		index[c] = i
	}
	return &MapEncoding{index: index}, nil
}

func (e *MapEncoding) Encode(sourceID string) int {
	if idx, ok := e.index[sourceID]; ok {
		return idx
	}
	return domain.UnseenSource
}

func (e *MapEncoding) Size() int {
	return len(e.index)
}

func (e *MapEncoding) Close() error {
	return nil
}

func readEncodingClasses(path string) ([]string, error) {
	data, err := readArtifactFile(path, "encoding")
	if err != nil {
		return nil, err
	}
	var f encodingFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse encoding %s: %w", path, err)
	}
	return f.Classes, nil
}

func LoadMapEncoding(path string) (*MapEncoding, error) {
	classes, err := readEncodingClasses(path)
	if err != nil {
		return nil, err
	}
	return NewMapEncoding(classes)
}

type closableEncoder interface {
	ports.SourceEncoder
	Close() error
}

// loadEncoding picks the backend from the file extension.
func loadEncoding(path string) (closableEncoder, error) {
	switch strings.ToLower(filepath.Ext(baseName(path))) {
	case ".bolt", ".db":
		return OpenBoltEncoding(BoltEncodingConfig{Path: path})
	default:
		return LoadMapEncoding(path)
	}
}
