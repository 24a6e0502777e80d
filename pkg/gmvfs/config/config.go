// Package config loads gmvfs settings from an HCL file. Expressions in the
// file can use an env object holding the process environment and a small
// set of string and path functions:
//
//	server {
//	  executable      = pathexpand("~/bin/yy-boss")
//	  log_file        = "${env.TMPDIR}/gmvfs.log"
//	  startup_timeout = "PT15S"
//	}
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

// DefaultFileName is looked for in the working directory when no config
// file is named explicitly.
const DefaultFileName = "gmvfs.hcl"

// Defaults.
const (
	DefaultStartupTimeout = 30 * time.Second
	DefaultShutdownGrace  = 5 * time.Second
	DefaultQueueSize      = 64
	DefaultWatchDebounce  = 250 * time.Millisecond
	DefaultLogLevel       = "info"
)

// Config is the resolved configuration.
type Config struct {
	Server    ServerConfig
	Workspace WorkspaceConfig
	Log       LogConfig

	// Source is the file the configuration was read from, empty when only
	// defaults apply.
	Source string
}

// ServerConfig says how to reach the project server: either a subprocess
// (Executable) or a websocket endpoint (URL).
type ServerConfig struct {
	Executable       string
	WorkingDirectory string
	LogFile          string
	URL              string
	Headers          map[string]string
	StartupTimeout   time.Duration
	ShutdownGrace    time.Duration
	QueueSize        int
}

// WorkspaceConfig locates the project.
type WorkspaceConfig struct {
	Root          string
	Project       string
	WatchDebounce time.Duration
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Executable:       "yy-boss",
			WorkingDirectory: os.TempDir(),
			StartupTimeout:   DefaultStartupTimeout,
			ShutdownGrace:    DefaultShutdownGrace,
			QueueSize:        DefaultQueueSize,
		},
		Workspace: WorkspaceConfig{
			Root:          ".",
			WatchDebounce: DefaultWatchDebounce,
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

type fileConfig struct {
	Server    *serverBlock    `hcl:"server,block"`
	Workspace *workspaceBlock `hcl:"workspace,block"`
	Log       *logBlock       `hcl:"log,block"`
}

type serverBlock struct {
	Executable       *string           `hcl:"executable,optional"`
	WorkingDirectory *string           `hcl:"working_directory,optional"`
	LogFile          *string           `hcl:"log_file,optional"`
	URL              *string           `hcl:"url,optional"`
	Headers          map[string]string `hcl:"headers,optional"`
	StartupTimeout   hcl.Expression    `hcl:"startup_timeout,optional"`
	ShutdownGrace    hcl.Expression    `hcl:"shutdown_grace,optional"`
	QueueSize        *int              `hcl:"queue_size,optional"`
}

type workspaceBlock struct {
	Root          *string        `hcl:"root,optional"`
	Project       *string        `hcl:"project,optional"`
	WatchDebounce hcl.Expression `hcl:"watch_debounce,optional"`
}

type logBlock struct {
	Level *string `hcl:"level,optional"`
}

// ConfigBuilder reads configuration sources on top of the defaults.
type ConfigBuilder struct {
	logger   *zap.Logger
	path     string
	src      []byte
	optional bool
	environ  []string
}

// NewConfig starts building a configuration.
func NewConfig() *ConfigBuilder {
	return &ConfigBuilder{logger: zap.NewNop(), environ: os.Environ()}
}

func (cb *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	cb.logger = logger
	return cb
}

// WithFile reads path. When optional is set a missing file leaves the
// defaults in place.
func (cb *ConfigBuilder) WithFile(path string, optional bool) *ConfigBuilder {
	cb.path = path
	cb.optional = optional
	return cb
}

// WithSource parses src instead of a file; name is used in diagnostics.
func (cb *ConfigBuilder) WithSource(name string, src []byte) *ConfigBuilder {
	cb.path = name
	cb.src = src
	return cb
}

// WithEnviron replaces the environment exposed as env.
func (cb *ConfigBuilder) WithEnviron(environ []string) *ConfigBuilder {
	cb.environ = environ
	return cb
}

// Build parses the source, applies it over Default and validates the
// result.
func (cb *ConfigBuilder) Build() (*Config, hcl.Diagnostics) {
	cfg := Default()

	if cb.path == "" && cb.src == nil {
		return cfg, nil
	}

	parser := hclparse.NewParser()
	var file *hcl.File
	var diags hcl.Diagnostics

	if cb.src != nil {
		file, diags = parser.ParseHCL(cb.src, cb.path)
	} else {
		if _, err := os.Stat(cb.path); err != nil {
			if cb.optional && os.IsNotExist(err) {
				cb.logger.Debug("No config file, using defaults", zap.String("path", cb.path))
				return cfg, nil
			}
			return nil, hcl.Diagnostics{&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Failed to read config file",
				Detail:   fmt.Sprintf("Error statting %s: %s", cb.path, err),
			}}
		}
		file, diags = parser.ParseHCLFile(cb.path)
	}
	if diags.HasErrors() {
		return nil, diags
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": envObject(cb.environ)},
		Functions: functions(),
	}

	var fc fileConfig
	diags = diags.Extend(gohcl.DecodeBody(file.Body, evalCtx, &fc))
	if diags.HasErrors() {
		return nil, diags
	}

	diags = diags.Extend(cfg.apply(&fc, evalCtx))
	if diags.HasErrors() {
		return nil, diags
	}
	cfg.Source = cb.path

	if err := cfg.Validate(); err != nil {
		return nil, diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid configuration",
			Detail:   err.Error(),
			Subject:  file.Body.MissingItemRange().Ptr(),
		})
	}

	cb.logger.Debug("Config loaded", zap.String("path", cb.path))
	return cfg, diags
}

func (c *Config) apply(fc *fileConfig, evalCtx *hcl.EvalContext) hcl.Diagnostics {
	var diags hcl.Diagnostics
	var d hcl.Diagnostics

	if s := fc.Server; s != nil {
		set(&c.Server.Executable, s.Executable)
		set(&c.Server.WorkingDirectory, s.WorkingDirectory)
		set(&c.Server.LogFile, s.LogFile)
		set(&c.Server.URL, s.URL)
		set(&c.Server.QueueSize, s.QueueSize)
		if s.Headers != nil {
			c.Server.Headers = s.Headers
		}
		c.Server.StartupTimeout, d = parseDuration(s.StartupTimeout, evalCtx, c.Server.StartupTimeout)
		diags = diags.Extend(d)
		c.Server.ShutdownGrace, d = parseDuration(s.ShutdownGrace, evalCtx, c.Server.ShutdownGrace)
		diags = diags.Extend(d)
	}

	if w := fc.Workspace; w != nil {
		set(&c.Workspace.Root, w.Root)
		set(&c.Workspace.Project, w.Project)
		c.Workspace.WatchDebounce, d = parseDuration(w.WatchDebounce, evalCtx, c.Workspace.WatchDebounce)
		diags = diags.Extend(d)
	}

	if l := fc.Log; l != nil {
		set(&c.Log.Level, l.Level)
	}

	return diags
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
