package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"paritystore/internal/peer"
	"paritystore/internal/queue"
	"paritystore/internal/scanner"
	"paritystore/internal/storage"
)

// ErrInvalidConfig is wrapped by every validation and argument error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the node configuration.
type Config struct {
	DirectoryHost string `yaml:"directoryHost"`
	DirectoryPort int    `yaml:"directoryPort"`
	// Peers is a static "host:port,host:port" list used instead of the
	// directory when set.
	Peers string `yaml:"peers"`

	ListenHost string `yaml:"listenHost"`
	ListenPort int    `yaml:"listenPort"`
	// AdvertiseHost is the address registered with the directory. Empty
	// means the local address of the directory connection.
	AdvertiseHost string `yaml:"advertiseHost"`

	// SeedFile is loaded instead of bootstrapping from peers when set.
	SeedFile string `yaml:"seedFile"`

	FileSize      int     `yaml:"fileSize"`
	ChunkSize     int     `yaml:"chunkSize"`
	QueueCapacity int     `yaml:"queueCapacity"`
	ScanRate      float64 `yaml:"scanRate"`
	LogLevel      string  `yaml:"logLevel"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		FileSize:      storage.DefaultFileSize,
		ChunkSize:     100,
		QueueCapacity: queue.DefaultCapacity,
		ScanRate:      scanner.DefaultPassRate,
		LogLevel:      "info",
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// ApplyArgs overrides the directory address, listen port and seed file from
// positional arguments: <directoryHost> <directoryPort> <listenPort> [seedFile].
// No arguments leaves cfg unchanged.
func (c *Config) ApplyArgs(args []string) error {
	if len(args) == 0 {
		return nil
	}
	if len(args) < 3 || len(args) > 4 {
		return fmt.Errorf("%w: expected <directoryHost> <directoryPort> <listenPort> [seedFile], got %d arguments", ErrInvalidConfig, len(args))
	}

	dirPort, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: directory port %q: %v", ErrInvalidConfig, args[1], err)
	}
	listenPort, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("%w: listen port %q: %v", ErrInvalidConfig, args[2], err)
	}

	c.DirectoryHost = args[0]
	c.DirectoryPort = dirPort
	c.ListenPort = listenPort
	if len(args) == 4 {
		c.SeedFile = args[3]
	}
	return nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Peers != "" {
		if _, err := peer.ParsePeers(c.Peers); err != nil {
			return fmt.Errorf("%w: peers: %v", ErrInvalidConfig, err)
		}
	} else {
		if c.DirectoryHost == "" {
			return fmt.Errorf("%w: directory host is required", ErrInvalidConfig)
		}
		if c.DirectoryPort < 1 || c.DirectoryPort > 65535 {
			return fmt.Errorf("%w: directory port %d out of range", ErrInvalidConfig, c.DirectoryPort)
		}
	}

	// Port 0 picks a free port.
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("%w: listen port %d out of range", ErrInvalidConfig, c.ListenPort)
	}
	if c.FileSize <= 0 {
		return fmt.Errorf("%w: file size must be positive", ErrInvalidConfig)
	}
	if c.ChunkSize <= 0 || c.ChunkSize > c.FileSize {
		return fmt.Errorf("%w: chunk size must be in [1, %d]", ErrInvalidConfig, c.FileSize)
	}
	if chunks := (c.FileSize + c.ChunkSize - 1) / c.ChunkSize; c.QueueCapacity < chunks {
		return fmt.Errorf("%w: queue capacity %d cannot hold %d chunks", ErrInvalidConfig, c.QueueCapacity, chunks)
	}
	if c.ScanRate < 0 {
		return fmt.Errorf("%w: scan rate must not be negative", ErrInvalidConfig)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// StaticPeers returns the parsed static peer list, or nil when the
// directory is used.
func (c *Config) StaticPeers() []peer.Peer {
	if c.Peers == "" {
		return nil
	}
	peers, _ := peer.ParsePeers(c.Peers)
	return peers
}

// DirectoryAddr returns host:port of the directory service.
func (c *Config) DirectoryAddr() string {
	return peer.Peer{Host: c.DirectoryHost, Port: c.DirectoryPort}.Addr()
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
