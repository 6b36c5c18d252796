package config

import (
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/anthanhphan/gosdk/conflux"
	"github.com/anthanhphan/gosdk/logger"
)

// Engine names accepted in StoreConfig.Engine.
const (
	EngineBitcask = "bitcask"
	EngineBolt    = "bolt"
)

// Config holds the key/value server configuration.
type Config struct {
	Server ServerConfig  `json:"server" yaml:"server"`
	Store  StoreConfig   `json:"store" yaml:"store"`
	Logger logger.Config `json:"logger" yaml:"logger"`
}

type ServerConfig struct {
	// Addr is the TCP listen address for the key/value protocol.
	Addr string `json:"addr" yaml:"addr"`
	// HealthAddr enables the HTTP health/stats endpoint when non-empty.
	HealthAddr string `json:"health_addr" yaml:"health_addr"`
	// Workers sizes the engine worker pool. Zero means one per logical CPU.
	Workers int `json:"workers" yaml:"workers"`
}

type StoreConfig struct {
	// Engine selects the storage backend: "bitcask" or "bolt".
	Engine  string `json:"engine" yaml:"engine"`
	DataDir string `json:"data_dir" yaml:"data_dir"`
	FSync   bool   `json:"fsync" yaml:"fsync"`
	// CompactionThreshold is the uncompacted-byte count that triggers
	// log compaction. Zero means the default of 1 MiB.
	CompactionThreshold int64 `json:"compaction_threshold" yaml:"compaction_threshold"`
	// MaxSegmentSize rotates the active segment once it grows past
	// this many bytes. Zero means the default of 64 MiB.
	MaxSegmentSize int64 `json:"max_segment_size" yaml:"max_segment_size"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:    "127.0.0.1:4000",
			Workers: runtime.NumCPU(),
		},
		Store: StoreConfig{
			Engine:  EngineBitcask,
			DataDir: "./data",
			FSync:   true,
		},
		Logger: logger.Config{
			LogLevel:    logger.LevelInfo,
			LogEncoding: logger.EncodingJSON,
		},
	}
}

// Load loads configuration from file.
func Load(path string) (*Config, error) {
	configPath := path
	if configPath == "" {
		env := os.Getenv("ENV")
		if env == "" {
			env = "local"
		}
		configPath = filepath.Join("internal", "kv", "config", env+".yaml")
	}

	cfg := DefaultConfig()

	parsedCfg, err := conflux.ParseConfig(configPath, cfg)
	if err != nil {
		log.Printf("Config file not found or failed to parse, using defaults if file not specified. Path: %s, Error: %v", configPath, err)
		if path != "" {
			return nil, err
		}
		return cfg, nil
	}

	return parsedCfg, nil
}

// MustLoad loads configuration or exits on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}
