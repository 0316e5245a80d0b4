package config

import (
	"fmt"
	"time"

	"github.com/pithecene-io/nanoplex/types"
)

// Config represents a nanoplex.yaml file. Every value is optional and acts
// as a default for "nanoplex run"; command-line flags always win.
type Config struct {
	Threads          int    `yaml:"threads"`
	GPUs             *int   `yaml:"gpus"`
	Mode             string `yaml:"mode"`
	KeepUnclassified bool   `yaml:"keep_unclassified"`
	Trim             bool   `yaml:"trim"`
	Scratch          string `yaml:"scratch"`

	Tools    ToolsConfig    `yaml:"tools"`
	Bundle   BundleConfig   `yaml:"bundle"`
	Primers  PrimersConfig  `yaml:"primers"`
	Fallback FallbackConfig `yaml:"fallback"`
	Storage  StorageConfig  `yaml:"storage"`
	Adapter  AdapterConfig  `yaml:"adapter"`
}

// ToolsConfig overrides external tool executables.
type ToolsConfig struct {
	Basecaller string `yaml:"basecaller"`
	Samtools   string `yaml:"samtools"`
	Pigz       string `yaml:"pigz"`
	Gzip       string `yaml:"gzip"`
	Cutadapt   string `yaml:"cutadapt"`
}

// BundleConfig locates the barcode bundle archive.
type BundleConfig struct {
	URL     string   `yaml:"url"`
	Region  string   `yaml:"region"`
	Timeout Duration `yaml:"timeout"`
}

// PrimersConfig overrides the trimming primer set.
type PrimersConfig struct {
	Forward   string `yaml:"forward"`
	Reverse   string `yaml:"reverse"`
	MinLength *int   `yaml:"min_length"`
}

// FallbackConfig overrides the read summary column positions used when
// the converter is unavailable.
type FallbackConfig struct {
	IDColumn       *int `yaml:"id_column"`
	SequenceColumn *int `yaml:"sequence_column"`
	QualityColumn  *int `yaml:"quality_column"`
}

// StorageConfig configures optional run record publishing.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig configures the optional run-completed notification.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML strings such as "10s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a Go duration string. An empty string is zero.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ApplyTools overlays configured executables onto base.
func (t ToolsConfig) ApplyTools(base types.ToolPaths) types.ToolPaths {
	overlay(&base.Basecaller, t.Basecaller)
	overlay(&base.Samtools, t.Samtools)
	overlay(&base.Pigz, t.Pigz)
	overlay(&base.Gzip, t.Gzip)
	overlay(&base.Cutadapt, t.Cutadapt)
	return base
}

// ApplyPrimers overlays configured primers onto base.
func (p PrimersConfig) ApplyPrimers(base types.PrimerSet) types.PrimerSet {
	overlay(&base.Forward, p.Forward)
	overlay(&base.Reverse, p.Reverse)
	if p.MinLength != nil {
		base.MinLength = *p.MinLength
	}
	return base
}

// ApplyColumns overlays configured column positions onto base.
func (f FallbackConfig) ApplyColumns(base types.FallbackColumns) types.FallbackColumns {
	if f.IDColumn != nil {
		base.ID = *f.IDColumn
	}
	if f.SequenceColumn != nil {
		base.Sequence = *f.SequenceColumn
	}
	if f.QualityColumn != nil {
		base.Quality = *f.QualityColumn
	}
	return base
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
