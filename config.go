package cd11

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConnectRetryInterval = time.Second
	DefaultReadPollInterval     = 100 * time.Millisecond
	DefaultGapExpiryDays        = 7
)

// Config is the local identity of a CD-1.1 endpoint plus timing knobs. It
// can be loaded from YAML or TOML.
type Config struct {
	// Creator is the name written into the creator field of every frame
	// sent, e.g. a station name.
	Creator string `yaml:"creator" toml:"creator"`
	// Destination is written into the destination field of every frame
	// sent. "0" addresses any receiver.
	Destination string `yaml:"destination" toml:"destination"`
	AuthKeyID   int32  `yaml:"auth_key_id" toml:"auth_key_id"`
	Series      int32  `yaml:"series" toml:"series"`

	// ConnectRetryInterval is how long Connect sleeps between attempts.
	ConnectRetryInterval time.Duration `yaml:"connect_retry_interval" toml:"connect_retry_interval"`
	// ReadPollInterval is the longest a read blocks before the halt
	// predicate is consulted again.
	ReadPollInterval time.Duration `yaml:"read_poll_interval" toml:"read_poll_interval"`
	// GapExpiryDays is how long a gap may go unchanged before the session
	// stops asking for it.
	GapExpiryDays int `yaml:"gap_expiry_days" toml:"gap_expiry_days"`

	Log LogConfig `yaml:"log" toml:"log"`
}

// DefaultConfig returns a Config with every timing knob set.
func DefaultConfig(creator, destination string) Config {
	return Config{
		Creator:              creator,
		Destination:          destination,
		ConnectRetryInterval: DefaultConnectRetryInterval,
		ReadPollInterval:     DefaultReadPollInterval,
		GapExpiryDays:        DefaultGapExpiryDays,
	}
}

// LoadConfig reads a Config from a .yaml, .yml or .toml file. Knobs missing
// from the file get their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig("", "")
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config %v: %w", path, err)
		}
	case ".toml":
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("decode config %v: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("decode config %v: unknown keys %v", path, undecoded)
		}
	default:
		return cfg, fmt.Errorf("config %v: unsupported format %q", path, ext)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %v: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ConnectRetryInterval <= 0 {
		c.ConnectRetryInterval = DefaultConnectRetryInterval
	}
	if c.ReadPollInterval <= 0 {
		c.ReadPollInterval = DefaultReadPollInterval
	}
	if c.GapExpiryDays <= 0 {
		c.GapExpiryDays = DefaultGapExpiryDays
	}
}

// Validate checks the identity fields.
func (c *Config) Validate() error {
	if err := c.frameBuilder().Validate(); err != nil {
		return err
	}
	if c.ConnectRetryInterval < 0 || c.ReadPollInterval < 0 {
		return fmt.Errorf("%w: negative interval", ErrInvalidField)
	}
	return nil
}

// FramesetName is the name of the frameset this endpoint creates.
func (c *Config) FramesetName() string {
	return FramesetName(c.Creator, c.Destination)
}

func (c *Config) frameBuilder() *FrameBuilder {
	return &FrameBuilder{Creator: c.Creator, Destination: c.Destination, AuthKeyID: c.AuthKeyID, Series: c.Series}
}
