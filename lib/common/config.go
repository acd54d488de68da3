package common

import (
	"fmt"
	"runtime"
	"strings"
)

// --------------------------------------------------------------------------
// Store configuration struct
// --------------------------------------------------------------------------

// Supported storage engines
const (
	EngineFSDir = "fsdir"
	EngineMaple = "maple"
)

// StoreConfig holds all configuration parameters for opening a document store.
type StoreConfig struct {
	// RootDir is the directory that holds all databases
	RootDir string

	// Engine selects the storage engine (fsdir or maple)
	Engine string
	// SyncWrites enables fsync of every unit (fsdir only)
	SyncWrites bool

	// Serializer is the base codec (json or gob)
	Serializer string
	// Compression wraps the codec (none, zstd or lz4)
	Compression string

	// ScanWorkers bounds the parallelism of the recovery scan
	ScanWorkers int

	// Logging configuration
	LogLevel string
}

// DefaultStoreConfig returns the default configuration for the given root directory
func DefaultStoreConfig(rootDir string) StoreConfig {
	return StoreConfig{
		RootDir:     rootDir,
		Engine:      EngineFSDir,
		SyncWrites:  true,
		Serializer:  "json",
		Compression: "none",
		ScanWorkers: runtime.NumCPU(),
		LogLevel:    "info",
	}
}

// Validate checks the configuration for invalid values
func (c *StoreConfig) Validate() error {
	if c.RootDir == "" && c.Engine != EngineMaple {
		return fmt.Errorf("root directory must be set for engine %q", c.Engine)
	}
	switch c.Engine {
	case EngineFSDir, EngineMaple:
	default:
		return fmt.Errorf("invalid engine: %s. must be one of %s, %s", c.Engine, EngineFSDir, EngineMaple)
	}
	if c.ScanWorkers < 0 {
		return fmt.Errorf("scan workers must not be negative (got %d)", c.ScanWorkers)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *StoreConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Storage
	addSection("Storage")
	addField("Root Directory", c.RootDir)
	addField("Engine", c.Engine)
	if c.Engine == EngineFSDir {
		addField("Sync Writes", fmt.Sprintf("%t", c.SyncWrites))
	}
	addField("Scan Workers", fmt.Sprintf("%d", c.ScanWorkers))

	// Codec
	addSection("Codec")
	addField("Serializer", c.Serializer)
	addField("Compression", c.Compression)

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
