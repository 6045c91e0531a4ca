// Package config loads the YAML settings shared by the QC commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the QC pipeline. Command flags override it.
type Config struct {
	Dataset struct {
		// Root of the BIDS tree
		Root string `yaml:"root"`

		// Participants table; relative paths resolve against Root
		Participants string `yaml:"participants"`
	} `yaml:"dataset"`

	Destripe struct {
		// Manifest of scans to repair
		Manifest string `yaml:"manifest"`

		// Overwrite replaces scans in place; otherwise repaired files go to StagingDir
		Overwrite bool `yaml:"overwrite"`

		StagingDir string `yaml:"stagingDir"`
		Suffix     string `yaml:"suffix"`
		Extension  string `yaml:"extension"`

		// ReportDir receives per-scan QC plots when set
		ReportDir string `yaml:"reportDir"`
	} `yaml:"destripe"`

	Lag struct {
		Oversampling int    `yaml:"oversampling"`
		Workers      int    `yaml:"workers"`
		Output       string `yaml:"output"`
		DumpDir      string `yaml:"dumpDir"`
		PlotDir      string `yaml:"plotDir"`
		Chart        string `yaml:"chart"`
	} `yaml:"lag"`

	QC struct {
		// GradientThreshold flags scans whose sagittal score falls below it
		GradientThreshold float64 `yaml:"gradientThreshold"`
		Output            string  `yaml:"output"`
	} `yaml:"qc"`

	SliceTiming struct {
		// Threshold on |lag| in TR above which a scan counts as interleaved
		Threshold float64 `yaml:"threshold"`
		Backup    bool    `yaml:"backup"`

		// TRReport lists scans whose repetition time was inferred
		TRReport string `yaml:"trReport"`
	} `yaml:"sliceTiming"`

	Store struct {
		// Path of the SQLite ledger; empty disables it
		Path string `yaml:"path"`
	} `yaml:"store"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Dataset.Root = "bids"
	cfg.Dataset.Participants = "participants.tsv"

	cfg.Destripe.Manifest = "permuted_brains.csv"
	cfg.Destripe.Overwrite = false
	cfg.Destripe.StagingDir = "destriped"
	cfg.Destripe.Suffix = "bold"
	cfg.Destripe.Extension = "nii.gz"

	cfg.Lag.Oversampling = 10
	cfg.Lag.Workers = runtime.NumCPU()
	cfg.Lag.Output = "lags.csv"

	cfg.QC.GradientThreshold = 1000
	cfg.QC.Output = "permuted_brains.csv"

	cfg.SliceTiming.Threshold = 0.1
	cfg.SliceTiming.Backup = true
	cfg.SliceTiming.TRReport = "inferred_tr.csv"

	cfg.Store.Path = "qc.db"

	return cfg
}

// ApplyEnv takes the dataset root from DATA and places relative outputs
// under RESULT when those variables are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if data := getenv("DATA"); data != "" {
		c.Dataset.Root = data
	}

	result := getenv("RESULT")
	if result == "" {
		return
	}
	for _, p := range []*string{
		&c.Destripe.StagingDir,
		&c.Lag.Output,
		&c.QC.Output,
		&c.SliceTiming.TRReport,
		&c.Store.Path,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(result, *p)
		}
	}
}

// ParticipantsPath resolves the participants table.
func (c *Config) ParticipantsPath() string {
	if c.Dataset.Participants == "" || filepath.IsAbs(c.Dataset.Participants) {
		return c.Dataset.Participants
	}
	return filepath.Join(c.Dataset.Root, c.Dataset.Participants)
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	if c.Lag.Oversampling < 1 {
		return fmt.Errorf("lag.oversampling must be at least 1, got %d", c.Lag.Oversampling)
	}
	if c.Lag.Workers < 0 {
		return fmt.Errorf("lag.workers must not be negative, got %d", c.Lag.Workers)
	}
	if !c.Destripe.Overwrite && c.Destripe.StagingDir == "" {
		return fmt.Errorf("destripe.stagingDir is required unless destripe.overwrite is set")
	}
	if c.SliceTiming.Threshold < 0 {
		return fmt.Errorf("sliceTiming.threshold must not be negative, got %g", c.SliceTiming.Threshold)
	}
	return nil
}

// LoadConfig reads configPath over the defaults and the DATA and RESULT
// environment variables. A missing file yields the defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.ApplyEnv(os.Getenv)

	if configPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig writes cfg as YAML, creating the parent directory.
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
