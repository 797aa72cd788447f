// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"fmt"
	"os"
	"strings"
)

// Format is the packing of an image file.
type Format int

const (
	// FormatRaw is a plain filesystem image.
	FormatRaw Format = iota

	// FormatRawCompressed is a compressed plain image.
	FormatRawCompressed

	// FormatMetaDump is a metadata dump that the restore tool turns
	// into an image.
	FormatMetaDump

	// FormatMetaDumpCompressed is a compressed metadata dump.
	FormatMetaDumpCompressed

	// FormatStreamCompressed is a compressed send stream.
	FormatStreamCompressed
)

// String returns the name of the format.
func (f Format) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatRawCompressed:
		return "raw-compressed"
	case FormatMetaDump:
		return "metadump"
	case FormatMetaDumpCompressed:
		return "metadump-compressed"
	case FormatStreamCompressed:
		return "stream-compressed"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// Compressed reports whether images of this format carry a
// compression suffix.
func (f Format) Compressed() bool {
	switch f {
	case FormatRawCompressed, FormatMetaDumpCompressed, FormatStreamCompressed:
		return true
	default:
		return false
	}
}

// Compression is the codec of a compressed image.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionXZ
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// String returns the name of the codec.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionXZ:
		return "xz"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionGzip:
		return "gzip"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Suffix returns the file suffix of the codec, including the dot.
func (c Compression) Suffix() string {
	switch c {
	case CompressionXZ:
		return ".xz"
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	case CompressionGzip:
		return ".gz"
	default:
		return ""
	}
}

var compressions = []Compression{CompressionXZ, CompressionZstd, CompressionLZ4, CompressionGzip}

// restoredSuffix is appended to the uncompressed name of an image to
// form its working copy.
const restoredSuffix = ".restored"

// Image is a packed image file.
type Image struct {
	// Path is the source file.
	Path string

	Format      Format
	Compression Compression
}

// Parse classifies path by its suffix.
func Parse(path string) (*Image, error) {
	lower := strings.ToLower(path)

	compression := CompressionNone
	for _, candidate := range compressions {
		if strings.HasSuffix(lower, candidate.Suffix()) {
			compression = candidate
			lower = strings.TrimSuffix(lower, candidate.Suffix())
			break
		}
	}
	compressed := compression != CompressionNone

	var format Format
	switch {
	case strings.HasSuffix(lower, ".raw") && compressed:
		format = FormatRawCompressed
	case strings.HasSuffix(lower, ".raw"):
		format = FormatRaw
	case strings.HasSuffix(lower, ".img") && compressed:
		format = FormatMetaDumpCompressed
	case strings.HasSuffix(lower, ".img"):
		format = FormatMetaDump
	case strings.HasSuffix(lower, ".stream") && compressed:
		format = FormatStreamCompressed
	default:
		return nil, fmt.Errorf("unrecognized image suffix: %s", path)
	}

	return &Image{Path: path, Format: format, Compression: compression}, nil
}

// Uncompressed returns the path without its compression suffix. For
// uncompressed images this is Path.
func (i *Image) Uncompressed() string {
	if i.Compression == CompressionNone {
		return i.Path
	}
	return i.Path[:len(i.Path)-len(i.Compression.Suffix())]
}

// RestoredPath returns the path of the working copy.
func (i *Image) RestoredPath() string {
	return i.Uncompressed() + restoredSuffix
}

// HasRestoredArtifact reports whether the working copy exists.
func (i *Image) HasRestoredArtifact() bool {
	_, err := os.Stat(i.RestoredPath())
	return err == nil
}

// checkable reports whether CheckAll selects images of this format.
func (f Format) checkable() bool {
	switch f {
	case FormatRaw, FormatRawCompressed, FormatMetaDump, FormatMetaDumpCompressed:
		return true
	default:
		return false
	}
}
