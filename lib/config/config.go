// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "FSHARNESS_CONFIG"

// Config is the complete harness configuration.
type Config struct {
	// ResultsLog is the append-only log every execution writes to.
	ResultsLog string `yaml:"results_log" json:"results_log"`

	// Tool is the path to the filesystem tool under test.
	Tool string `yaml:"tool" json:"tool"`

	// ToolNames are additional program names treated as the tool
	// when deciding where to splice override arguments (for example
	// a mkfs front end). Matching is on the last path segment.
	ToolNames []string `yaml:"tool_names" json:"tool_names"`

	// HelpersDir holds internal helper binaries built alongside the
	// tool (image restore, fuzz helpers, ...).
	HelpersDir string `yaml:"helpers_dir" json:"helpers_dir"`

	// TestDevice is the file or block device tests format and mount.
	TestDevice string `yaml:"test_device" json:"test_device"`

	// TestDeviceSize is the size a regular-file test device is
	// truncated to, as a human-readable string ("2GiB").
	TestDeviceSize string `yaml:"test_device_size" json:"test_device_size"`

	// MountPoint is where the test device is mounted.
	MountPoint string `yaml:"mount_point" json:"mount_point"`

	// Override configures suite-wide argument injection.
	Override OverrideConfig `yaml:"override" json:"override"`

	// Privilege configures privilege mediation.
	Privilege PrivilegeConfig `yaml:"privilege" json:"privilege"`

	// Loop configures loop device backing files.
	Loop LoopConfig `yaml:"loop" json:"loop"`

	// Image configures the image extraction and check pipeline.
	Image ImageConfig `yaml:"image" json:"image"`
}

// OverrideConfig is the subcommand → extra arguments table.
type OverrideConfig struct {
	// Enabled turns injection on. When false no extra arguments are
	// ever added, whatever Args contains.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Args maps a subcommand (or program base name) to the arguments
	// injected right after it.
	Args map[string][]string `yaml:"args" json:"args"`

	// SkipWhen lists argument values that suppress injection when any
	// of them appears in the invocation (for example "--help", where
	// extra options would change the output being tested).
	SkipWhen []string `yaml:"skip_when" json:"skip_when"`
}

// PrivilegeConfig configures how privileged commands are run.
type PrivilegeConfig struct {
	// Program is the escalation program that is probed. Default: sudo.
	Program string `yaml:"program" json:"program"`

	// Helper, when set, is used verbatim as the command prefix for
	// privileged invocations and probing is skipped.
	Helper []string `yaml:"helper" json:"helper"`
}

// LoopConfig configures loop device backing files.
type LoopConfig struct {
	// Prefix is the path prefix of backing files; index N is
	// "<prefix>N".
	Prefix string `yaml:"prefix" json:"prefix"`

	// Size is the sparse size of each backing file.
	Size string `yaml:"size" json:"size"`

	// Program is the loop control program. Default: losetup.
	Program string `yaml:"program" json:"program"`
}

// ImageConfig configures the image pipeline.
type ImageConfig struct {
	// RestoreTool converts metadata dumps into mountable images. A
	// bare name is looked up in HelpersDir.
	RestoreTool string `yaml:"restore_tool" json:"restore_tool"`

	// RestoreArgs precede "<dump> <output>" on the restore tool's
	// command line.
	RestoreArgs []string `yaml:"restore_args" json:"restore_args"`

	// CheckArgs run the tool's read-only check.
	CheckArgs []string `yaml:"check_args" json:"check_args"`

	// RepairArgs run the tool's repairing check.
	RepairArgs []string `yaml:"repair_args" json:"repair_args"`
}

// Default returns the default configuration. The defaults describe a
// harness run from a build tree with the tool in the current
// directory.
func Default() *Config {
	workingDirectory, err := os.Getwd()
	if err != nil {
		workingDirectory = "."
	}

	return &Config{
		ResultsLog:     filepath.Join(workingDirectory, "tests", "results.txt"),
		Tool:           filepath.Join(workingDirectory, "btrfs"),
		ToolNames:      []string{"mkfs.btrfs", "btrfs-convert", "btrfs-image"},
		HelpersDir:     workingDirectory,
		TestDevice:     filepath.Join(workingDirectory, "tests", "test.img"),
		TestDeviceSize: "2GiB",
		MountPoint:     filepath.Join(workingDirectory, "tests", "mnt"),
		Override: OverrideConfig{
			Args: map[string][]string{},
		},
		Privilege: PrivilegeConfig{
			Program: "sudo",
		},
		Loop: LoopConfig{
			Prefix:  filepath.Join(workingDirectory, "tests", "img"),
			Size:    "2GiB",
			Program: "losetup",
		},
		Image: ImageConfig{
			RestoreTool: "btrfs-image",
			RestoreArgs: []string{"-r"},
			CheckArgs:   []string{"check"},
			RepairArgs:  []string{"check", "--repair", "--force"},
		},
	}
}

// Load loads the file named by FSHARNESS_CONFIG, or returns the
// defaults when the variable is unset. The process environment is
// applied in both cases.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		cfg := Default()
		cfg.ApplyEnvironment(os.Environ())
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file, then applies
// the process environment and expands path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.ApplyEnvironment(os.Environ())
	cfg.expandVariables()

	return cfg, nil
}

// loadFile merges a single configuration file into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return nil
}

// argsPrefix is the environment prefix for per-subcommand override
// arguments: TEST_ARGS_CHECK="--mode=lowmem" injects into "check".
const argsPrefix = "TEST_ARGS_"

// ApplyEnvironment overlays the test-suite environment variables in
// environ (KEY=VALUE strings, as from os.Environ) onto c.
func (c *Config) ApplyEnvironment(environ []string) {
	for _, entry := range environ {
		key, value, found := strings.Cut(entry, "=")
		if !found || value == "" {
			continue
		}
		switch key {
		case "RESULTS":
			c.ResultsLog = value
		case "TEST_TOOL":
			c.Tool = value
		case "TEST_HELPERS":
			c.HelpersDir = value
		case "TEST_DEV":
			c.TestDevice = value
		case "TEST_MNT":
			c.MountPoint = value
		case "TEST_ENABLE_OVERRIDE":
			c.Override.Enabled = value == "true"
		case "SUDO_HELPER":
			c.Privilege.Helper = strings.Fields(value)
		default:
			if !strings.HasPrefix(key, argsPrefix) || len(key) == len(argsPrefix) {
				continue
			}
			subcommand := strings.ToLower(strings.TrimPrefix(key, argsPrefix))
			if c.Override.Args == nil {
				c.Override.Args = map[string][]string{}
			}
			c.Override.Args[subcommand] = strings.Fields(value)
		}
	}
}

// SkipFunc returns the predicate that suppresses argument injection,
// or nil when no skip values are configured.
func (c *Config) SkipFunc() func(args []string) bool {
	if len(c.Override.SkipWhen) == 0 {
		return nil
	}
	skipWhen := slices.Clone(c.Override.SkipWhen)
	return func(args []string) bool {
		for _, argument := range args {
			if slices.Contains(skipWhen, argument) {
				return true
			}
		}
		return false
	}
}

// LoopSizeBytes parses Loop.Size.
func (c *Config) LoopSizeBytes() (int64, error) {
	return parseSize("loop.size", c.Loop.Size)
}

// TestDeviceSizeBytes parses TestDeviceSize.
func (c *Config) TestDeviceSizeBytes() (int64, error) {
	return parseSize("test_device_size", c.TestDeviceSize)
}

func parseSize(field, value string) (int64, error) {
	size, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if size == 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return int64(size), nil
}

// HelperPath resolves a helper binary name against HelpersDir. Names
// containing a slash are returned unchanged.
func (c *Config) HelperPath(name string) string {
	if strings.Contains(name, "/") || c.HelpersDir == "" {
		return name
	}
	return filepath.Join(c.HelpersDir, name)
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.ResultsLog = expandVars(c.ResultsLog, vars)
	c.Tool = expandVars(c.Tool, vars)
	c.HelpersDir = expandVars(c.HelpersDir, vars)
	vars["TEST_HELPERS"] = c.HelpersDir

	c.TestDevice = expandVars(c.TestDevice, vars)
	c.MountPoint = expandVars(c.MountPoint, vars)
	c.Loop.Prefix = expandVars(c.Loop.Prefix, vars)
	c.Image.RestoreTool = expandVars(c.Image.RestoreTool, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		defaultValue := parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.ResultsLog == "" {
		errs = append(errs, errors.New("results_log is required"))
	}
	if c.Tool == "" {
		errs = append(errs, errors.New("tool is required"))
	}
	if c.Privilege.Program == "" && len(c.Privilege.Helper) == 0 {
		errs = append(errs, errors.New("privilege.program or privilege.helper is required"))
	}
	if c.Loop.Prefix == "" {
		errs = append(errs, errors.New("loop.prefix is required"))
	}
	if _, err := c.LoopSizeBytes(); err != nil {
		errs = append(errs, err)
	}
	if c.TestDeviceSize != "" {
		if _, err := c.TestDeviceSizeBytes(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(c.Image.CheckArgs) == 0 {
		errs = append(errs, errors.New("image.check_args is required"))
	}
	if len(c.Image.RepairArgs) == 0 {
		errs = append(errs, errors.New("image.repair_args is required"))
	}
	for subcommand, arguments := range c.Override.Args {
		if subcommand == "" {
			errs = append(errs, fmt.Errorf("override.args: empty subcommand maps to %v", arguments))
		}
	}

	return errors.Join(errs...)
}
