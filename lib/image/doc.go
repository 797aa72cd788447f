// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package image turns packed filesystem images into checkable working
// copies and drives the tool's corruption round-trip on them.
//
// A packed image is named by its suffix: ".raw" for a plain image,
// ".img" for a metadata dump, and ".stream" for a send stream, each
// optionally followed by a compression suffix (".xz", ".zst", ".lz4",
// ".gz"). Stream images only ever appear compressed. Matching is
// case-insensitive. [Parse] maps a path to its [Format] and
// [Compression]; any other suffix is an error.
//
// [Pipeline.Extract] produces "<name>.restored" next to the source,
// where name is the source path without the compression suffix:
//
//   - raw images are copied, preserving holes
//   - compressed raw and stream images are decompressed straight into
//     the restored path
//   - metadata dumps go through the external restore tool; a
//     compressed dump is first decompressed to an intermediate file
//     that is removed afterwards whatever the outcome
//
// The source is never modified. An existing restored artifact means
// the image was already extracted and nothing is done.
//
// [Pipeline.Check] runs the detect, repair, verify protocol: the
// read-only check must report corruption, the repairing check must
// succeed, and a second read-only check must then come back clean.
// [Pipeline.CheckAll] applies extract and check to every raw and
// metadata-dump image in a directory, in sorted order.
package image
