package state

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the tunables of the state core.
type Config struct {
	// AccountType is "bot" or "client". Client accounts need guild sync
	// passes to complete presences; bots do not.
	AccountType string

	// BulkDeleteSplitting selects whether a batch message deletion is
	// split into one synthetic single-deletion event per id (true, the
	// default) or dispatched as a single aggregate event.
	BulkDeleteSplitting bool

	// ChunkTimeout bounds how long a guild bootstrap may wait for member
	// chunks before the transport cancels the wait.
	ChunkTimeout time.Duration

	// OutgoingQueueSize is the control-channel send buffer.
	OutgoingQueueSize int
}

// yamlConfig is the on-disk shape. Fields are pointers so an absent key
// keeps its default; durations are Go duration strings ("45s", "2m").
type yamlConfig struct {
	AccountType         *string `yaml:"account_type"`
	BulkDeleteSplitting *bool   `yaml:"bulk_delete_splitting"`
	ChunkTimeout        *string `yaml:"chunk_timeout"`
	OutgoingQueueSize   *int    `yaml:"outgoing_queue_size"`
}

func DefaultConfig() *Config {
	return &Config{
		AccountType:         "bot",
		BulkDeleteSplitting: true,
		ChunkTimeout:        time.Minute,
		OutgoingQueueSize:   64,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if raw.AccountType != nil {
		cfg.AccountType = *raw.AccountType
	}
	if raw.BulkDeleteSplitting != nil {
		cfg.BulkDeleteSplitting = *raw.BulkDeleteSplitting
	}
	if raw.ChunkTimeout != nil {
		timeout, err := time.ParseDuration(*raw.ChunkTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse chunk_timeout: %w", err)
		}
		cfg.ChunkTimeout = timeout
	}
	if raw.OutgoingQueueSize != nil {
		cfg.OutgoingQueueSize = *raw.OutgoingQueueSize
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.AccountType {
	case "bot", "client":
	default:
		return fmt.Errorf("invalid account_type %q", c.AccountType)
	}
	if c.ChunkTimeout <= 0 {
		return fmt.Errorf("chunk_timeout must be positive")
	}
	if c.OutgoingQueueSize <= 0 {
		return fmt.Errorf("outgoing_queue_size must be positive")
	}
	return nil
}

// Account maps the configured account type string to its tag.
func (c *Config) Account() AccountType {
	if c.AccountType == "client" {
		return AccountTypeClient
	}
	return AccountTypeBot
}
