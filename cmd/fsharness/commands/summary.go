// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/fsharness/lib/image"
)

const (
	columnWidthStatus = 6
	columnWidthFormat = 21
)

var (
	passStyle    = lipgloss.NewStyle().Width(columnWidthStatus).Foreground(lipgloss.Color("2")).Bold(true)
	failStyle    = lipgloss.NewStyle().Width(columnWidthStatus).Foreground(lipgloss.Color("1")).Bold(true)
	formatStyle  = lipgloss.NewStyle().Width(columnWidthFormat).Foreground(lipgloss.Color("8"))
	nameStyle    = lipgloss.NewStyle()
	elapsedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// renderCheckSummary renders one row per checked image, plus a row
// for the image that failed when failed is not nil.
func renderCheckSummary(directory string, checked []image.Checked, failed *image.Image) string {
	var builder strings.Builder
	builder.WriteString(headerStyle.Render(fmt.Sprintf("Images in %s", directory)))
	builder.WriteString("\n")

	for _, entry := range checked {
		builder.WriteString(passStyle.Render("PASS"))
		builder.WriteString(formatStyle.Render(entry.Image.Format.String()))
		builder.WriteString(nameStyle.Render(filepath.Base(entry.Image.Path)))
		builder.WriteString(" ")
		builder.WriteString(elapsedStyle.Render(entry.Elapsed.Round(time.Millisecond).String()))
		builder.WriteString("\n")
	}
	if failed != nil {
		builder.WriteString(failStyle.Render("FAIL"))
		builder.WriteString(formatStyle.Render(failed.Format.String()))
		builder.WriteString(nameStyle.Render(filepath.Base(failed.Path)))
		builder.WriteString("\n")
	}

	total := len(checked)
	if failed != nil {
		total++
	}
	builder.WriteString(fmt.Sprintf("%d of %d passed\n", len(checked), total))
	return builder.String()
}
