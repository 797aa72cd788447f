// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/fsharness/lib/outcome"
	"github.com/bureau-foundation/fsharness/lib/runner"
)

// MissedCorruption is the outcome line when the read-only check
// passes an image that is known to be corrupt.
const MissedCorruption = "check should have detected corruption"

// Checker checks one working copy. Pipeline.Check is the default.
type Checker func(ctx context.Context, restored string) error

// Check runs the detect, repair, verify protocol on a working copy.
func (p *Pipeline) Check(ctx context.Context, restored string) error {
	if restored == "" {
		return outcome.Assertf("check requires an image path")
	}

	detect, err := p.runner.MayFail(ctx, p.command(p.checkArgs, restored))
	if err != nil {
		return err
	}
	if detect.ExitCode == 0 {
		p.runner.Log().Linef("%s", MissedCorruption)
		p.logger.Error("corruption not detected", "image", restored)
		return &outcome.Failure{
			Class:    outcome.UnexpectedSuccess,
			Command:  detect.Command,
			ExitCode: detect.ExitCode,
			Message:  MissedCorruption,
		}
	}

	if _, err := p.runner.Check(ctx, p.command(p.repairArgs, restored)); err != nil {
		return err
	}
	if _, err := p.runner.Check(ctx, p.command(p.checkArgs, restored)); err != nil {
		return err
	}

	p.logger.Info("image repaired", "image", restored)
	return nil
}

func (p *Pipeline) command(arguments []string, restored string) runner.Command {
	argv := append([]string{p.tool}, arguments...)
	return runner.Cmd(append(argv, restored)...)
}

// Find returns the images in directory that CheckAll selects, sorted
// by path. Subdirectories are not searched.
func Find(directory string) ([]*Image, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, err
	}

	var images []*Image
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		image, err := Parse(filepath.Join(directory, entry.Name()))
		if err != nil || !image.Format.checkable() {
			continue
		}
		images = append(images, image)
	}
	slices.SortFunc(images, func(a, b *Image) int {
		return strings.Compare(a.Path, b.Path)
	})
	return images, nil
}

// Checked describes one image processed by CheckAll.
type Checked struct {
	Image   *Image
	Elapsed time.Duration
}

// CheckAll extracts, checks and removes the working copy of every
// image Find selects in directory. checker replaces Pipeline.Check
// when non-nil. It stops at the first failure; the images completed
// before it are returned either way.
func (p *Pipeline) CheckAll(ctx context.Context, directory string, checker Checker) ([]Checked, error) {
	if directory == "" {
		return nil, outcome.Assertf("check-all requires a directory")
	}
	info, err := os.Stat(directory)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, outcome.Assertf("image directory %s does not exist", directory)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", directory, err)
	}
	if !info.IsDir() {
		return nil, outcome.Assertf("%s is not a directory", directory)
	}

	if checker == nil {
		checker = p.Check
	}

	images, err := Find(directory)
	if err != nil {
		return nil, fmt.Errorf("listing images in %s: %w", directory, err)
	}
	p.logger.Info("checking images", "directory", directory, "count", len(images))

	var checked []Checked
	for _, image := range images {
		start := time.Now()
		restored, err := p.extract(ctx, image)
		if err != nil {
			return checked, err
		}
		if err := checker(ctx, restored); err != nil {
			return checked, fmt.Errorf("image %s: %w", filepath.Base(image.Path), err)
		}
		if err := os.Remove(restored); err != nil {
			return checked, fmt.Errorf("removing %s: %w", restored, err)
		}
		checked = append(checked, Checked{Image: image, Elapsed: time.Since(start)})
	}
	return checked, nil
}
