// Package config loads the run configuration shared by the command-line
// tools and the MCP server.
//
// Values are resolved in this order, later sources winning: built-in
// defaults, an optional YAML file, MASKTOOLS_* environment variables, and
// finally explicit overrides (usually command-line flags). The result is a
// plain value; nothing reads viper after Load returns.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/ironsheep/mask-tools/internal/imaging"
	"github.com/ironsheep/mask-tools/internal/logging"
)

// ErrInvalid reports a configuration value that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is the environment variable prefix; "tiling.size" is read from
// MASKTOOLS_TILING_SIZE.
const EnvPrefix = "MASKTOOLS"

// Config is the complete, immutable configuration of one run.
type Config struct {
	Tiling     TilingConfig     `mapstructure:"tiling"`
	Dataset    DatasetConfig    `mapstructure:"dataset"`
	Submission SubmissionConfig `mapstructure:"submission"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Log        LogConfig        `mapstructure:"log"`
}

// TilingConfig controls how source images are cut into tiles.
type TilingConfig struct {
	Out      string `mapstructure:"out"`
	Size     int    `mapstructure:"size"`
	Overlap  int    `mapstructure:"overlap"`
	Format   string `mapstructure:"format"`
	Workers  int    `mapstructure:"workers"`
	FailFast bool   `mapstructure:"fail_fast"`
	// DefaultClass owns mask files found directly in the masks directory.
	DefaultClass string `mapstructure:"default_class"`
}

// DatasetConfig locates a braintissue dataset and selects one subset.
type DatasetConfig struct {
	Root        string        `mapstructure:"root"`
	Subset      string        `mapstructure:"subset"`
	ValImageIDs []string      `mapstructure:"val_image_ids"`
	Classes     []ClassConfig `mapstructure:"classes"`
}

// ClassConfig names one instance class. Masks of the class live in
// "<Name>_masks" directories.
type ClassConfig struct {
	ID   int    `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

// SubmissionConfig holds where submission files are written.
type SubmissionConfig struct {
	ResultsDir string `mapstructure:"results_dir"`
}

// LedgerConfig configures the optional SQLite run ledger.
type LedgerConfig struct {
	// Path of the SQLite ledger; empty disables it.
	Path string `mapstructure:"path"`
}

// LogConfig selects the log level and the zap preset ("release" or
// development).
type LogConfig struct {
	Level string `mapstructure:"level"`
	Mode  string `mapstructure:"mode"`
}

// Load resolves the configuration. configPath may be empty; overrides maps
// dotted keys ("tiling.size") to values and is applied last.
func Load(configPath string, overrides map[string]any) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, val := range overrides {
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without consulting files or
// the environment.
func Default() Config {
	return Config{
		Tiling: TilingConfig{
			Out:          "partitions",
			Size:         512,
			Overlap:      0,
			Format:       "png",
			Workers:      runtime.NumCPU(),
			DefaultClass: "tissue",
		},
		Dataset: DatasetConfig{
			Subset:      "train",
			ValImageIDs: []string{"artif1_0_crop1", "artif1_6_crop4", "artif1_2_crop8"},
			Classes: []ClassConfig{
				{ID: 1, Name: "tissue"},
				{ID: 2, Name: "magnetic"},
			},
		},
		Submission: SubmissionConfig{ResultsDir: "results"},
		Log:        LogConfig{Level: "info", Mode: "development"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("tiling.out", d.Tiling.Out)
	v.SetDefault("tiling.size", d.Tiling.Size)
	v.SetDefault("tiling.overlap", d.Tiling.Overlap)
	v.SetDefault("tiling.format", d.Tiling.Format)
	v.SetDefault("tiling.workers", d.Tiling.Workers)
	v.SetDefault("tiling.fail_fast", d.Tiling.FailFast)
	v.SetDefault("tiling.default_class", d.Tiling.DefaultClass)

	v.SetDefault("dataset.root", d.Dataset.Root)
	v.SetDefault("dataset.subset", d.Dataset.Subset)
	v.SetDefault("dataset.val_image_ids", d.Dataset.ValImageIDs)
	classes := make([]map[string]any, len(d.Dataset.Classes))
	for i, c := range d.Dataset.Classes {
		classes[i] = map[string]any{"id": c.ID, "name": c.Name}
	}
	v.SetDefault("dataset.classes", classes)

	v.SetDefault("submission.results_dir", d.Submission.ResultsDir)
	v.SetDefault("ledger.path", d.Ledger.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.mode", d.Log.Mode)
}

// Validate checks every value that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	t := c.Tiling
	switch {
	case t.Out == "":
		return fmt.Errorf("%w: tiling.out must not be empty", ErrInvalid)
	case t.Size <= 0:
		return fmt.Errorf("%w: tiling.size %d must be positive", ErrInvalid, t.Size)
	case t.Overlap < 0:
		return fmt.Errorf("%w: tiling.overlap %d must not be negative", ErrInvalid, t.Overlap)
	case t.Overlap >= t.Size:
		return fmt.Errorf("%w: tiling.overlap %d must be smaller than tiling.size %d", ErrInvalid, t.Overlap, t.Size)
	case t.Workers < 0:
		return fmt.Errorf("%w: tiling.workers %d must not be negative", ErrInvalid, t.Workers)
	case t.DefaultClass == "":
		return fmt.Errorf("%w: tiling.default_class must not be empty", ErrInvalid)
	}
	if _, err := imaging.ParseFormat(t.Format); err != nil {
		return fmt.Errorf("%w: tiling.format: %v", ErrInvalid, err)
	}

	seen := make(map[string]bool)
	for _, cl := range c.Dataset.Classes {
		if cl.Name == "" || cl.ID <= 0 {
			return fmt.Errorf("%w: dataset class %+v needs a name and a positive id", ErrInvalid, cl)
		}
		if seen[cl.Name] {
			return fmt.Errorf("%w: dataset class %q listed twice", ErrInvalid, cl.Name)
		}
		seen[cl.Name] = true
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	return nil
}

// ImageFormat returns the parsed tiling output format.
func (c Config) ImageFormat() imaging.Format {
	f, err := imaging.ParseFormat(c.Tiling.Format)
	if err != nil {
		return imaging.FormatPNG
	}
	return f
}

// ClassID returns the numeric id of the named class, 0 when unknown.
func (c Config) ClassID(name string) int {
	for _, cl := range c.Dataset.Classes {
		if cl.Name == name {
			return cl.ID
		}
	}
	return 0
}
