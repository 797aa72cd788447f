// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cmdspec

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/bureau-foundation/fsharness/lib/resultlog"
)

// ToolSet recognizes the tool under test by the last path segment of
// a command token, so "/build/btrfs", "./btrfs" and "btrfs" all match
// a tool configured as "/usr/bin/btrfs".
type ToolSet struct {
	names []string
}

// NewToolSet builds a set from tool paths or names.
func NewToolSet(tools ...string) ToolSet {
	var set ToolSet
	for _, tool := range tools {
		if tool == "" {
			continue
		}
		name := filepath.Base(tool)
		if !slices.Contains(set.names, name) {
			set.names = append(set.names, name)
		}
	}
	return set
}

// Match reports whether token names one of the tools.
func (s ToolSet) Match(token string) bool {
	if token == "" {
		return false
	}
	return slices.Contains(s.names, filepath.Base(token))
}

// InsertionIndex returns the zero-based position in argv at which
// extra arguments are spliced. The token just before that position is
// the one looked up in the [Spec].
//
// For a mediated command whose second token is the tool
// ("sudo btrfs check ...") the index is 3. Otherwise, if the first
// token is the tool ("btrfs check ..."), the index is 2. This covers a
// mediated command run with a pass-through mediator, which has no
// prefix token. Anything else is not the tool: extras go right after
// the first token and the lookup key is that token itself.
func InsertionIndex(argv []string, mediated bool, tools ToolSet) int {
	if mediated && len(argv) > 1 && tools.Match(argv[1]) {
		return 3
	}
	if len(argv) > 0 && tools.Match(argv[0]) {
		return 2
	}
	return 1
}

// Spec is the suite-wide override table.
type Spec struct {
	// Enabled turns injection on.
	Enabled bool

	// Args maps a subcommand, or a program base name, to the
	// arguments injected after it.
	Args map[string][]string

	// Skip, when non-nil, is consulted with the lookup token and
	// every argument after it. Returning true suppresses injection
	// for this command.
	Skip func(args []string) bool
}

// Extras returns the arguments to inject for a command whose lookup
// token is remaining[0]. A nil Spec, a disabled Spec, a skip, or an
// unmapped token all yield nil.
func (s *Spec) Extras(remaining []string) []string {
	if s == nil || !s.Enabled || len(remaining) == 0 {
		return nil
	}
	if s.Skip != nil && s.Skip(remaining) {
		return nil
	}
	extras, ok := s.Args[filepath.Base(remaining[0])]
	if !ok {
		return nil
	}
	return slices.Clone(extras)
}

// Invocation is a command broken into the parts that are rendered in
// a fixed order: Mediator, Program, Subcommand, Injected, Args.
// It is immutable once built.
type Invocation struct {
	// Mediator is the privilege prefix ("sudo", "-n"). Empty for
	// unprivileged commands and for a pass-through mediator.
	Mediator []string

	// Program is the executable.
	Program string

	// Subcommand is the token the extras follow. Empty when the
	// program is not the tool under test.
	Subcommand string

	// Injected are the suite-wide extras.
	Injected []string

	// Args are the caller's remaining arguments.
	Args []string

	// Privileged records that mediation was requested, even when the
	// mediator turned out to be a pass-through.
	Privileged bool
}

// BuildOptions configure [Build].
type BuildOptions struct {
	// Privileged requests privilege mediation.
	Privileged bool

	// Mediator is the prefix the privilege mediator wraps commands
	// with. Ignored unless Privileged is set.
	Mediator []string

	// Tools recognizes the tool under test.
	Tools ToolSet

	// Spec supplies extras. May be nil.
	Spec *Spec
}

// Build splices extras into argv (program first, without any
// mediator prefix) and returns the resulting Invocation.
func Build(argv []string, options BuildOptions) (*Invocation, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("command is required")
	}

	var mediator []string
	if options.Privileged {
		mediator = slices.Clone(options.Mediator)
	}

	// The positional rule counts the mediator as a single token, no
	// matter how many words it has.
	flat := argv
	if len(mediator) > 0 {
		flat = append([]string{mediator[0]}, argv...)
	}
	index := InsertionIndex(flat, options.Privileged, options.Tools)
	if len(mediator) > 0 {
		// Back to an index into argv. Never split the mediator
		// from its program.
		index = max(index-1, 1)
	}
	index = min(index, len(argv))

	invocation := &Invocation{
		Mediator:   mediator,
		Program:    argv[0],
		Args:       slices.Clone(argv[index:]),
		Privileged: options.Privileged,
	}
	if index == 2 {
		invocation.Subcommand = argv[1]
	}
	invocation.Injected = options.Spec.Extras(argv[index-1:])

	return invocation, nil
}

// Render returns the full argument vector, mediator first.
func (i *Invocation) Render() []string {
	rendered := make([]string, 0, len(i.Mediator)+2+len(i.Injected)+len(i.Args))
	rendered = append(rendered, i.Mediator...)
	rendered = append(rendered, i.Program)
	if i.Subcommand != "" {
		rendered = append(rendered, i.Subcommand)
	}
	rendered = append(rendered, i.Injected...)
	rendered = append(rendered, i.Args...)
	return rendered
}

// InjectionIndex returns where Injected begins in Render().
func (i *Invocation) InjectionIndex() int {
	index := len(i.Mediator) + 1
	if i.Subcommand != "" {
		index++
	}
	return index
}

// String returns the rendered command line, shell-quoted.
func (i *Invocation) String() string {
	return resultlog.Join(i.Render())
}
