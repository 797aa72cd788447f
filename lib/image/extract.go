// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/fsharness/lib/outcome"
	"github.com/bureau-foundation/fsharness/lib/runner"
)

// Config holds configuration for creating a Pipeline.
type Config struct {
	// Runner executes the tool and the restore tool. Required.
	Runner *runner.Runner

	// Tool is the filesystem tool under test. Required.
	Tool string

	// RestoreTool converts metadata dumps to images. Required only
	// for metadata-dump formats.
	RestoreTool string

	// RestoreArgs precede "<dump> <output>".
	RestoreArgs []string

	// CheckArgs run the read-only check. The image path is appended.
	CheckArgs []string

	// RepairArgs run the repairing check. The image path is appended.
	RepairArgs []string

	// Logger for pipeline progress. Default: slog.Default().
	Logger *slog.Logger
}

// Pipeline extracts and checks images.
type Pipeline struct {
	runner      *runner.Runner
	tool        string
	restoreTool string
	restoreArgs []string
	checkArgs   []string
	repairArgs  []string
	logger      *slog.Logger
}

// New creates a Pipeline.
func New(config Config) (*Pipeline, error) {
	if config.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if config.Tool == "" {
		return nil, fmt.Errorf("tool is required")
	}
	if len(config.CheckArgs) == 0 || len(config.RepairArgs) == 0 {
		return nil, fmt.Errorf("check and repair arguments are required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		runner:      config.Runner,
		tool:        config.Tool,
		restoreTool: config.RestoreTool,
		restoreArgs: slices.Clone(config.RestoreArgs),
		checkArgs:   slices.Clone(config.CheckArgs),
		repairArgs:  slices.Clone(config.RepairArgs),
		logger:      logger,
	}, nil
}

// Extract produces the working copy of the image at path and returns
// its path. If the working copy already exists it is returned as is.
func (p *Pipeline) Extract(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", outcome.Assertf("extract requires an image path")
	}
	image, err := Parse(path)
	if err != nil {
		return "", outcome.Assertf("%v", err)
	}
	return p.extract(ctx, image)
}

func (p *Pipeline) extract(ctx context.Context, image *Image) (string, error) {
	restored := image.RestoredPath()
	if image.HasRestoredArtifact() {
		p.logger.Debug("image already extracted", "image", image.Path, "restored", restored)
		return restored, nil
	}

	if err := p.fingerprint(image); err != nil {
		return "", err
	}

	var err error
	switch image.Format {
	case FormatRaw:
		err = writeAtomically(restored, func(destination *os.File) error {
			return copySparse(image.Path, destination)
		})
	case FormatRawCompressed, FormatStreamCompressed:
		err = writeAtomically(restored, func(destination *os.File) error {
			return decompress(image.Path, image.Compression, destination)
		})
	case FormatMetaDump:
		err = p.restore(ctx, image.Path, restored)
	case FormatMetaDumpCompressed:
		err = p.restoreCompressed(ctx, image, restored)
	default:
		err = fmt.Errorf("unhandled image format %s", image.Format)
	}
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", image.Path, err)
	}

	p.logger.Info("image extracted",
		"image", image.Path,
		"format", image.Format.String(),
		"restored", restored,
	)
	return restored, nil
}

// fingerprint records the BLAKE3 digest of the source in the results
// log.
func (p *Pipeline) fingerprint(image *Image) error {
	file, err := os.Open(image.Path)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return fmt.Errorf("hashing %s: %w", image.Path, err)
	}
	p.runner.Log().Linef("image %s blake3:%s", filepath.Base(image.Path), hex.EncodeToString(hasher.Sum(nil)))
	return nil
}

// restore runs the restore tool on dump, writing output.
func (p *Pipeline) restore(ctx context.Context, dump, output string) error {
	if p.restoreTool == "" {
		return outcome.Assertf("no restore tool configured for metadata dump %s", dump)
	}
	p.runner.Log().Linef("restoring image %s", filepath.Base(dump))

	argv := append([]string{p.restoreTool}, p.restoreArgs...)
	argv = append(argv, dump, output)
	if _, err := p.runner.Check(ctx, runner.Cmd(argv...)); err != nil {
		os.Remove(output)
		return err
	}
	return nil
}

// restoreCompressed decompresses a dump to a temporary file beside
// the source, restores from it, and removes it.
func (p *Pipeline) restoreCompressed(ctx context.Context, image *Image, restored string) error {
	intermediate, err := os.CreateTemp(filepath.Dir(image.Path), "."+filepath.Base(image.Uncompressed())+".*")
	if err != nil {
		return fmt.Errorf("creating intermediate dump: %w", err)
	}
	defer os.Remove(intermediate.Name())

	err = decompress(image.Path, image.Compression, intermediate)
	if closeErr := intermediate.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	return p.restore(ctx, intermediate.Name(), restored)
}

// writeAtomically fills a temporary file beside path and renames it
// into place, so a failed extraction never leaves a file that looks
// like a finished working copy.
func writeAtomically(path string, fill func(*os.File) error) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	name := temporary.Name()

	err = fill(temporary)
	if err == nil {
		err = temporary.Chmod(0o644)
	}
	if closeErr := temporary.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(name, path)
	}
	if err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// decompress writes the decompressed contents of source to
// destination, leaving runs of zeros as holes.
func decompress(source string, compression Compression, destination *os.File) error {
	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening compressed image: %w", err)
	}
	defer file.Close()

	reader, err := newDecompressor(bufio.NewReader(file), compression)
	if err != nil {
		return fmt.Errorf("%s decompress %s: %w", compression, source, err)
	}
	defer reader.Close()

	writer := &sparseWriter{file: destination}
	if _, err := io.CopyBuffer(writer, reader, make([]byte, copyBufferSize)); err != nil {
		return fmt.Errorf("%s decompress %s: %w", compression, source, err)
	}
	return writer.finish()
}

func newDecompressor(reader io.Reader, compression Compression) (io.ReadCloser, error) {
	switch compression {
	case CompressionXZ:
		decoder, err := xz.NewReader(reader)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(decoder), nil
	case CompressionZstd:
		decoder, err := zstd.NewReader(reader)
		if err != nil {
			return nil, err
		}
		return decoder.IOReadCloser(), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(reader)), nil
	case CompressionGzip:
		return gzip.NewReader(reader)
	default:
		return nil, fmt.Errorf("image is not compressed")
	}
}

const (
	copyBufferSize = 1 << 20
	sparseBlock    = 4096
)

var zeroBlock = make([]byte, sparseBlock)

// sparseWriter writes sequentially to a file, skipping all-zero
// blocks instead of writing them. finish sets the final size.
type sparseWriter struct {
	file   *os.File
	offset int64
}

func (w *sparseWriter) Write(data []byte) (int, error) {
	for start := 0; start < len(data); start += sparseBlock {
		block := data[start:min(start+sparseBlock, len(data))]
		if !bytes.Equal(block, zeroBlock[:len(block)]) {
			if _, err := w.file.WriteAt(block, w.offset); err != nil {
				return start, err
			}
		}
		w.offset += int64(len(block))
	}
	return len(data), nil
}

func (w *sparseWriter) finish() error {
	return w.file.Truncate(w.offset)
}

// copySparse copies the data extents of source into destination,
// found with SEEK_DATA/SEEK_HOLE. Filesystems without extent seeking
// fall back to a zero-skipping copy.
func copySparse(source string, destination *os.File) error {
	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", source, err)
	}
	size := info.Size()
	fd := int(file.Fd())

	for offset := int64(0); offset < size; {
		data, err := unix.Seek(fd, offset, unix.SEEK_DATA)
		if errors.Is(err, unix.ENXIO) {
			break
		}
		if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EOPNOTSUPP) {
			return copyZeroSkipping(file, offset, destination)
		}
		if err != nil {
			return fmt.Errorf("seeking data in %s: %w", source, err)
		}
		hole, err := unix.Seek(fd, data, unix.SEEK_HOLE)
		if err != nil {
			return fmt.Errorf("seeking hole in %s: %w", source, err)
		}
		extent := io.NewSectionReader(file, data, hole-data)
		if _, err := io.Copy(io.NewOffsetWriter(destination, data), extent); err != nil {
			return fmt.Errorf("copying %s: %w", source, err)
		}
		offset = hole
	}
	return destination.Truncate(size)
}

func copyZeroSkipping(source *os.File, offset int64, destination *os.File) error {
	writer := &sparseWriter{file: destination, offset: offset}
	reader := io.NewSectionReader(source, offset, 1<<62)
	if _, err := io.CopyBuffer(writer, reader, make([]byte, copyBufferSize)); err != nil {
		return fmt.Errorf("copying %s: %w", source.Name(), err)
	}
	return writer.finish()
}
