// Package config loads the pipeline configuration from HCL. Connection
// credentials can be overridden from the environment so config files never
// need to carry secrets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/TheBB/CICO/api"
)

// Root is the top level of a configuration file.
type Root struct {
	Pipeline *Pipeline `hcl:"pipeline,block"`
}

// Pipeline describes one conversion pass: a source, an optional filter
// stack, and a sink.
type Pipeline struct {
	Name string `hcl:"name,label"`

	Source  SourceConfig `hcl:"source,block"`
	Filters *Filters     `hcl:"filters,block"`
	Sink    SinkConfig   `hcl:"sink,block"`

	// Geometry names the geometry field to drive the pass with. Empty
	// means the first geometry candidate of the first basis.
	Geometry string `hcl:"geometry,optional"`

	// Checkpoint is the cursor file enabling resumable passes.
	Checkpoint string `hcl:"checkpoint,optional"`
}

// SourceConfig selects and parameterizes the source.
type SourceConfig struct {
	Kind  string   `hcl:"kind"`
	Path  string   `hcl:"path,optional"`
	Paths []string `hcl:"paths,optional"`
}

// Filters assembles the filter stack. Zero values leave the corresponding
// filter out of the chain.
type Filters struct {
	Strict     bool     `hcl:"strict,optional"`
	KeyZones   bool     `hcl:"key_zones,optional"`
	Decompose  bool     `hcl:"decompose,optional"`
	OnlyBases  []string `hcl:"only_bases,optional"`
	OnlyFields []string `hcl:"only_fields,optional"`
	StepStart  int      `hcl:"step_start,optional"`
	StepStop   *int     `hcl:"step_stop,optional"`
	StepStride int      `hcl:"step_stride,optional"`
	LastStep   bool     `hcl:"last_step,optional"`
}

// Sliced reports whether any step slicing option is set.
func (f *Filters) Sliced() bool {
	return f.StepStart > 0 || f.StepStop != nil || f.StepStride > 1
}

// SinkConfig selects and parameterizes the sink.
type SinkConfig struct {
	Kind       string `hcl:"kind"`
	Path       string `hcl:"path,optional"`
	Mode       string `hcl:"mode,optional"`
	Endianness string `hcl:"endianness,optional"`

	Postgres *PostgresConfig `hcl:"postgres,block"`
	Upload   *UploadConfig   `hcl:"upload,block"`
}

// Settings translates the sink options into the closed settings set.
func (s *SinkConfig) Settings() api.Settings {
	settings := api.DefaultSettings()
	if s.Mode != "" {
		settings.Mode = api.OutputMode(s.Mode)
	}
	if s.Endianness != "" {
		settings.Endianness = api.Endianness(s.Endianness)
	}
	return settings
}

// PostgresConfig holds database connection parameters.
type PostgresConfig struct {
	Host           string `hcl:"host,optional"`
	Port           string `hcl:"port,optional"`
	Database       string `hcl:"database,optional"`
	Username       string `hcl:"username,optional"`
	Password       string `hcl:"password,optional"`
	SSLMode        string `hcl:"sslmode,optional"`
	ConnectTimeout string `hcl:"connect_timeout,optional"`
}

// Timeout parses the connect timeout, zero when unset or malformed.
func (p *PostgresConfig) Timeout() time.Duration {
	duration, err := time.ParseDuration(p.ConnectTimeout)
	if err != nil {
		return 0
	}
	return duration
}

// UploadConfig holds object storage parameters for uploading finished
// output.
type UploadConfig struct {
	Endpoint        string `hcl:"endpoint,optional"`
	Region          string `hcl:"region,optional"`
	Bucket          string `hcl:"bucket"`
	Prefix          string `hcl:"prefix,optional"`
	AccessKeyID     string `hcl:"access_key_id,optional"`
	SecretAccessKey string `hcl:"secret_access_key,optional"`
	UseSSL          bool   `hcl:"use_ssl,optional"`
}

// Load parses the configuration file at path. Environment variables are
// exposed to expressions as env.NAME, and CICO_PG_* variables override the
// postgres block after decoding.
func Load(path string) (*Pipeline, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %s", path, diags.Error())
	}

	var root Root
	diags = gohcl.DecodeBody(file.Body, evalContext(), &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %s", path, diags.Error())
	}
	if root.Pipeline == nil {
		return nil, fmt.Errorf("%s declares no pipeline", path)
	}

	pipeline := root.Pipeline
	if err := pipeline.validate(); err != nil {
		return nil, err
	}
	applyEnvOverrides(pipeline)
	return pipeline, nil
}

func (p *Pipeline) validate() error {
	switch p.Source.Kind {
	case "envelope":
		if p.Source.Path == "" && len(p.Source.Paths) == 0 {
			return fmt.Errorf("pipeline %q: envelope source needs a path", p.Name)
		}
	default:
		return fmt.Errorf("pipeline %q: unknown source kind %q", p.Name, p.Source.Kind)
	}

	switch p.Sink.Kind {
	case "debug", "arrow":
		if p.Sink.Path == "" {
			return fmt.Errorf("pipeline %q: %s sink needs a path", p.Name, p.Sink.Kind)
		}
	case "postgres":
		if p.Sink.Postgres == nil {
			return fmt.Errorf("pipeline %q: postgres sink needs a postgres block", p.Name)
		}
	default:
		return fmt.Errorf("pipeline %q: unknown sink kind %q", p.Name, p.Sink.Kind)
	}

	if p.Filters != nil && p.Filters.LastStep && p.Filters.Sliced() {
		return fmt.Errorf("pipeline %q: last_step and step slicing are mutually exclusive", p.Name)
	}
	return nil
}

// evalContext exposes the process environment to HCL expressions.
func evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(env),
		},
	}
}

// applyEnvOverrides lets credentials come from the environment instead of
// the file.
func applyEnvOverrides(pipeline *Pipeline) {
	if pipeline.Sink.Postgres != nil {
		pg := pipeline.Sink.Postgres
		override(&pg.Host, "CICO_PG_HOST")
		override(&pg.Port, "CICO_PG_PORT")
		override(&pg.Database, "CICO_PG_DATABASE")
		override(&pg.Username, "CICO_PG_USERNAME")
		override(&pg.Password, "CICO_PG_PASSWORD")
		override(&pg.SSLMode, "CICO_PG_SSLMODE")
	}
	if pipeline.Sink.Upload != nil {
		up := pipeline.Sink.Upload
		override(&up.Endpoint, "CICO_S3_ENDPOINT")
		override(&up.AccessKeyID, "CICO_S3_ACCESS_KEY_ID")
		override(&up.SecretAccessKey, "CICO_S3_SECRET_ACCESS_KEY")
	}
}

func override(target *string, envVar string) {
	if value := os.Getenv(envVar); value != "" {
		*target = value
	}
}
