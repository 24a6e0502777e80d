package config

import (
	"errors"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Log levels accepted in the log block.
var LogLevels = []any{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}

// Validate validates the server configuration. A URL, when set, takes
// precedence over the executable.
func (c *ServerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Executable, validation.When(c.URL == "", validation.Required)),
		validation.Field(&c.WorkingDirectory, validation.When(c.URL == "", validation.Required)),
		validation.Field(&c.URL, is.URL, validation.By(websocketScheme)),
		validation.Field(&c.StartupTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ShutdownGrace, validation.Min(time.Duration(0))),
		validation.Field(&c.QueueSize, validation.Required, validation.Min(1)),
	)
}

// Remote reports whether the server is reached over a websocket.
func (c *ServerConfig) Remote() bool {
	return c.URL != ""
}

func websocketScheme(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("must be a ws:// or wss:// URL")
	}
	return nil
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.WatchDebounce, validation.Min(time.Duration(0))),
	)
}

// Validate validates the log configuration.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.Required, validation.In(LogLevels...)),
	)
}
