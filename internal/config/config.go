package config

import "path/filepath"

// Defaults applied at the CLI boundary. Base dir mirrors the layout the
// shared nginx compose stack is provisioned with.
const (
	DefaultBaseDir      = "/srv/nginx"
	DefaultPortStart    = 8080
	DefaultPortAttempts = 100
	DefaultContainer    = "nginx-web"
	DefaultServeRoot    = "/usr/share/nginx/html"
)

// Config carries every knob the lifecycle manager needs. It is built once
// when arguments are parsed and threaded through explicitly; nothing reads
// configuration ad hoc.
type Config struct {
	// BaseDir is the host directory holding the proxy's compose file and
	// the config/html/deployments subtrees.
	BaseDir string

	// PortStart and PortAttempts bound the port probe range
	// [PortStart, PortStart+PortAttempts).
	PortStart    int
	PortAttempts int

	// Container is the name of the running nginx container to signal.
	Container string

	// ServeRoot is the document-root prefix as seen inside the proxy
	// container, where BaseDir/html is mounted. Host and container paths
	// differ, so generated vhosts must use this prefix, never HTMLRoot.
	ServeRoot string
}

// Default returns a Config for the given base directory, falling back to
// DefaultBaseDir when empty.
func Default(baseDir string) Config {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	return Config{
		BaseDir:      baseDir,
		PortStart:    DefaultPortStart,
		PortAttempts: DefaultPortAttempts,
		Container:    DefaultContainer,
		ServeRoot:    DefaultServeRoot,
	}
}

// HTMLRoot is the host directory staged sites are copied under.
func (c Config) HTMLRoot() string {
	return filepath.Join(c.BaseDir, "html")
}

// ConfDir is where per-site vhost files are written.
func (c Config) ConfDir() string {
	return filepath.Join(c.BaseDir, "config", "conf.d")
}

// RecordDir holds one JSON record per deployment.
func (c Config) RecordDir() string {
	return filepath.Join(c.BaseDir, "deployments")
}

// ComposeFile is the declarative definition the proxy is started from.
func (c Config) ComposeFile() string {
	return filepath.Join(c.BaseDir, "docker-compose.yml")
}
