// Package config loads compreg settings from a YAML file with COMPREG_
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/gnana997/compreg/pkg/indexer"
	"github.com/gnana997/compreg/pkg/scanner"
	"github.com/gnana997/compreg/pkg/util"
)

// DefaultFile is the config file looked up when none is given.
const DefaultFile = "component-registry.yaml"

// Mode values.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Config holds every compreg setting. YAML keys match the generator's
// option names; environment variables override the file.
type Config struct {
	// Root is the project root. Relative paths below resolve against it.
	Root string `yaml:"root" env:"COMPREG_ROOT"`

	ComponentPaths  []string `yaml:"componentPaths" env:"COMPREG_COMPONENT_PATHS" env-separator:","`
	OutputPath      string   `yaml:"outputPath" env:"COMPREG_OUTPUT_PATH"`
	IncludePatterns []string `yaml:"includePatterns" env:"COMPREG_INCLUDE_PATTERNS" env-separator:","`
	ExcludePatterns []string `yaml:"excludePatterns" env:"COMPREG_EXCLUDE_PATTERNS" env-separator:","`

	MaxParallelScans int  `yaml:"maxParallelScans" env:"COMPREG_MAX_PARALLEL_SCANS"`
	Incremental      bool `yaml:"incremental" env:"COMPREG_INCREMENTAL"`

	// Watch applies to development mode only.
	Watch      bool `yaml:"watch" env:"COMPREG_WATCH"`
	DebounceMs int  `yaml:"debounceMs" env:"COMPREG_DEBOUNCE_MS"`

	Cache     bool   `yaml:"cache" env:"COMPREG_CACHE"`
	CacheFile string `yaml:"cacheFile" env:"COMPREG_CACHE_FILE"`

	LogLevel  string `yaml:"logLevel" env:"COMPREG_LOG_LEVEL"`
	LogFormat string `yaml:"logFormat" env:"COMPREG_LOG_FORMAT"`

	Minify  bool   `yaml:"minify" env:"COMPREG_MINIFY"`
	BuildID string `yaml:"buildId" env:"COMPREG_BUILD_ID"`
	Mode    string `yaml:"mode" env:"COMPREG_MODE"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Root:             ".",
		ComponentPaths:   []string{"./src/components/ui"},
		OutputPath:       "./public/static/component-registry.json",
		IncludePatterns:  []string{"**/*.tsx", "**/*.jsx"},
		ExcludePatterns:  []string{"**/*.test.*", "**/*.spec.*", "**/node_modules/**"},
		MaxParallelScans: indexer.DefaultMaxParallelScans,
		Incremental:      true,
		Watch:            true,
		DebounceMs:       int(indexer.DefaultDebounce / time.Millisecond),
		Cache:            true,
		CacheFile:        ".component-registry-cache.json",
		LogLevel:         string(util.LevelInfo),
		LogFormat:        string(util.FormatText),
		Mode:             ModeDevelopment,
	}
}

// Load builds a Config from defaults, the YAML file at path and the
// environment, in that order. An empty path looks for DefaultFile and
// tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks patterns, bounds and enum values.
func (c *Config) Validate() error {
	var errs []error

	if len(c.ComponentPaths) == 0 {
		errs = append(errs, errors.New("componentPaths must not be empty"))
	}
	if c.OutputPath == "" {
		errs = append(errs, errors.New("outputPath is required"))
	}
	if len(c.IncludePatterns) == 0 {
		errs = append(errs, errors.New("includePatterns must not be empty"))
	}
	if err := scanner.ValidatePatterns(c.IncludePatterns, c.ExcludePatterns); err != nil {
		errs = append(errs, err)
	}
	if c.MaxParallelScans < 1 {
		errs = append(errs, fmt.Errorf("maxParallelScans must be >= 1, got %d", c.MaxParallelScans))
	}
	if c.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("debounceMs must be >= 0, got %d", c.DebounceMs))
	}
	if c.Cache && c.CacheFile == "" {
		errs = append(errs, errors.New("cacheFile is required when cache is enabled"))
	}

	switch util.LogLevel(c.LogLevel) {
	case util.LevelVerbose, util.LevelDebug, util.LevelInfo, util.LevelWarn, util.LevelError:
	default:
		errs = append(errs, fmt.Errorf("logLevel must be one of verbose, info, warn, error, got %q", c.LogLevel))
	}
	switch util.LogFormat(c.LogFormat) {
	case util.FormatJSON, util.FormatText:
	default:
		errs = append(errs, fmt.Errorf("logFormat must be json or text, got %q", c.LogFormat))
	}
	switch c.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		errs = append(errs, fmt.Errorf("mode must be development or production, got %q", c.Mode))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether Mode is production.
func (c *Config) IsProduction() bool {
	return c.Mode == ModeProduction
}

// ProjectRoot returns Root as an absolute path.
func (c *Config) ProjectRoot() (string, error) {
	root := c.Root
	if root == "" {
		root = "."
	}
	return filepath.Abs(root)
}

// Resolve anchors a relative path at the project root.
func (c *Config) Resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	root, err := c.ProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.FromSlash(path)), nil
}

// Debounce returns DebounceMs as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Logger builds the process logger.
func (c *Config) Logger() util.LoggerConfig {
	lc := util.DefaultLoggerConfig()
	lc.Level = util.ParseLogLevel(c.LogLevel)
	lc.Format = util.LogFormat(c.LogFormat)
	return lc
}

// IndexerOptions converts the config into engine options.
func (c *Config) IndexerOptions() (indexer.Options, error) {
	root, err := c.ProjectRoot()
	if err != nil {
		return indexer.Options{}, fmt.Errorf("failed to resolve project root: %w", err)
	}
	return indexer.Options{
		ProjectRoot:      root,
		Roots:            append([]string(nil), c.ComponentPaths...),
		Include:          append([]string(nil), c.IncludePatterns...),
		Exclude:          append([]string(nil), c.ExcludePatterns...),
		MaxParallelScans: c.MaxParallelScans,
		Incremental:      c.Incremental,
		Verbose:          util.IsVerbose(util.ParseLogLevel(c.LogLevel)),
		Environment:      c.Mode,
	}, nil
}
