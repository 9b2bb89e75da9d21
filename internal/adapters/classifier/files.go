package classifier

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

const zstdSuffix = ".zst"

var zstdDecoder struct {
	once sync.Once
	dec  *zstd.Decoder
	err  error
}

func decoder() (*zstd.Decoder, error) {
	zstdDecoder.once.Do(func() {
		zstdDecoder.dec, zstdDecoder.err = zstd.NewReader(nil)
	})
	return zstdDecoder.dec, zstdDecoder.err
}

// readArtifactFile reads one artifact component, decompressing it when the
// name ends in .zst. A missing file is a *domain.MissingArtifactError.
func readArtifactFile(path, component string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingArtifactError{Component: component, Path: path, Err: err}
		}
		return nil, fmt.Errorf("read %s: %w", component, err)
	}

	if !strings.HasSuffix(path, zstdSuffix) {
		return data, nil
	}
	dec, err := decoder()
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", component, err)
	}
	return out, nil
}

// baseName strips a trailing .zst so the underlying format can be detected.
func baseName(path string) string {
	return strings.TrimSuffix(path, zstdSuffix)
}
