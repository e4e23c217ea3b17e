// Package archive compresses finished recording files for upload.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// CompressionLevel represents the zstd compression level.
type CompressionLevel string

const (
	LevelFastest CompressionLevel = "fastest"
	LevelDefault CompressionLevel = "default"
	LevelBetter  CompressionLevel = "better"
	LevelBest    CompressionLevel = "best"
)

// ToZstdLevel converts a CompressionLevel to a zstd.EncoderLevel.
func (l CompressionLevel) ToZstdLevel() zstd.EncoderLevel {
	switch l {
	case LevelFastest:
		return zstd.SpeedFastest
	case LevelBetter:
		return zstd.SpeedBetterCompression
	case LevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// Compress streams src through a zstd encoder into w.
func Compress(w io.Writer, src io.Reader, level CompressionLevel) error {
	zw, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(level.ToZstdLevel()),
		zstd.WithEncoderConcurrency(1), // Synchronous for predictable streaming
	)
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}

	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		return fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}
	return nil
}

// CompressFile reads a recording file and returns its zstd-compressed bytes.
// Recordings are bounded in size by the recorder's limits, so buffering is
// acceptable here.
func CompressFile(path string, level CompressionLevel) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := Compress(&buf, f, level); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress streams a zstd frame from r into w.
func Decompress(w io.Writer, r io.Reader) error {
	zr, err := zstd.NewReader(r,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		return fmt.Errorf("create zstd decoder: %w", err)
	}
	defer zr.Close()

	if _, err := io.Copy(w, zr); err != nil {
		return fmt.Errorf("decompress: %w", err)
	}
	return nil
}
