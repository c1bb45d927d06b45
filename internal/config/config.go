// Package config loads graphsql configuration from CUE.
//
// An embedded schema supplies types, constraints and defaults. A user file,
// when given, is unified with it, so a file only needs the keys it changes:
//
//	connector: socket: "/run/apdb.sock"
//	schema: population_max_age: "15m"
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// Config is the decoded configuration.
type Config struct {
	Connector ConnectorConfig `json:"connector"`
	Query     QueryConfig     `json:"query"`
	Planner   PlannerConfig   `json:"planner"`
	Schema    SchemaConfig    `json:"schema"`
	Catalog   CatalogConfig   `json:"catalog"`
	Log       LogConfig       `json:"log"`
}

type ConnectorConfig struct {
	Socket   string `json:"socket"`
	Endpoint string `json:"endpoint"`
	Timeout  string `json:"timeout"`
	PoolSize int    `json:"pool_size"`
}

type QueryConfig struct {
	BatchSize     int `json:"batch_size"`
	BlobBatchSize int `json:"blob_batch_size"`
}

type PlannerConfig struct {
	IndexedEstimate int64 `json:"indexed_estimate"`
}

type SchemaConfig struct {
	PopulationMaxAge string `json:"population_max_age"`
	Concurrency      int    `json:"concurrency"`
}

type CatalogConfig struct {
	Path string `json:"path"`
}

type LogConfig struct {
	Level string `json:"level"`
}

// Error codes for LoadError.
const (
	ErrCodeNotFound    = "CONFIG_NOT_FOUND"
	ErrCodeSyntax      = "CONFIG_SYNTAX"
	ErrCodeInvalid     = "CONFIG_INVALID"
	ErrCodeBadDuration = "CONFIG_BAD_DURATION"
)

// LoadError is a configuration problem, with the CUE position when known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsLoadError reports whether err is or wraps a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// Default returns the configuration with every default applied.
func Default() (*Config, error) {
	return Parse(nil, "")
}

// Load reads path and unifies it with the schema. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
	}
	return Parse(data, path)
}

// Parse unifies CUE source with the schema and decodes it. filename is used
// in error positions.
func Parse(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("embedded config schema: %w", err)
	}
	value := schema.LookupPath(cue.ParsePath("#Config"))

	if len(data) > 0 {
		user := ctx.CompileBytes(data, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return nil, cueError(ErrCodeSyntax, err)
		}
		value = value.Unify(user)
	}
	if err := value.Validate(); err != nil {
		return nil, cueError(ErrCodeInvalid, err)
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, cueError(ErrCodeInvalid, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func cueError(code string, err error) error {
	le := &LoadError{Code: code, Message: err.Error()}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Message = errs[0].Error()
		le.Pos = errs[0].Position()
	}
	return le
}

func (c *Config) validate() error {
	for key, raw := range map[string]string{
		"connector.timeout":         c.Connector.Timeout,
		"schema.population_max_age": c.Schema.PopulationMaxAge,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			return &LoadError{Code: ErrCodeBadDuration, Message: fmt.Sprintf("%s: %v", key, err)}
		}
	}
	return nil
}

// ConnectorTimeout returns connector.timeout.
func (c *Config) ConnectorTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Connector.Timeout)
	return d
}

// PopulationMaxAge returns schema.population_max_age.
func (c *Config) PopulationMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.Schema.PopulationMaxAge)
	return d
}

// LogLevel returns log.level as a slog level.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
