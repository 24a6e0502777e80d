package config

import (
	"github.com/tsarna/gmvfs/pkg/gmvfs/session"
)

// Connector returns the session connector for projectPath described by the
// server block.
func (c *Config) Connector(projectPath string) session.Connector {
	if c.Server.Remote() {
		headers := make(map[string][]string, len(c.Server.Headers))
		for k, v := range c.Server.Headers {
			headers[k] = []string{v}
		}
		return session.WebsocketConnector{
			URL:         c.Server.URL,
			Headers:     headers,
			DialTimeout: c.Server.StartupTimeout,
		}
	}

	return session.ProcessConnector{
		ServerPath:    c.Server.Executable,
		ProjectPath:   projectPath,
		WorkingDir:    c.Server.WorkingDirectory,
		LogPath:       c.Server.LogFile,
		ShutdownGrace: c.Server.ShutdownGrace,
	}
}

// SessionBuilder returns a session builder carrying the configured startup
// timeout and queue size.
func (c *Config) SessionBuilder() *session.Builder {
	return session.NewSession().
		WithStartupTimeout(c.Server.StartupTimeout).
		WithQueueSize(c.Server.QueueSize)
}
