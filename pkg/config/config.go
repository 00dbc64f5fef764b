// Package config describes how to assemble a WORAM stack without
// touching Go code: the leaf backend, the block geometry, the scheme
// for each level, the position-map flavor, and the crypto wrapping.
// Key material is never stored in the configuration file; only the
// name of an environment variable that holds it.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (WORAM_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/woram/internal/bytesize"
)

// Config is the root configuration for a WORAM stack.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Backend configures the leaf Memory the stack bottoms out in.
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`

	// Woram selects and tunes the write-only ORAM scheme.
	Woram WoramConfig `mapstructure:"woram" yaml:"woram"`

	// PosMap selects how positions are tracked.
	PosMap PosMapConfig `mapstructure:"posmap" yaml:"posmap"`

	// Crypto configures the cipher wrapping around the backend split.
	Crypto CryptoConfig `mapstructure:"crypto" yaml:"crypto"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `mapstructure:"format" yaml:"format"`

	// Output is "stdout", "stderr", or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// BackendConfig configures the leaf Memory.
type BackendConfig struct {
	// Kind is "local" (RAM) or "file".
	Kind string `mapstructure:"kind" yaml:"kind"`

	// Path is the backing file for the "file" kind.
	Path string `mapstructure:"path" yaml:"path"`

	// Blocksize is the block width; accepts suffixed values ("4KB").
	Blocksize bytesize.ByteSize `mapstructure:"blocksize" yaml:"blocksize"`

	// Size is the logical device capacity; the backend itself is
	// provisioned larger, per the selected scheme's preference.
	Size bytesize.ByteSize `mapstructure:"size" yaml:"size"`

	// Create makes the "file" kind create and pre-size the backing
	// file instead of requiring it to exist.
	Create bool `mapstructure:"create" yaml:"create"`
}

// WoramConfig selects the write-only ORAM scheme.
type WoramConfig struct {
	// Kind is "det", "onewrite" or "bmno".
	Kind string `mapstructure:"kind" yaml:"kind"`

	// Grow is the det scheme's backend-to-logical ratio (holding area
	// = (Grow-1) x logical size). Minimum and default 2.
	Grow uint64 `mapstructure:"grow" yaml:"grow"`

	// Mult is the onewrite scheme's slots-per-logical-block budget.
	// Default 10.
	Mult uint64 `mapstructure:"mult" yaml:"mult"`

	// K is the bmno scheme's rewrite fan-out. Default 3.
	K int `mapstructure:"k" yaml:"k"`
}

// PosMapConfig selects how positions are tracked.
type PosMapConfig struct {
	// Kind is "recursive" (packed pointers in smaller WORAMs, down to
	// a one-block base case) or "trie" (a pointer trie in a single
	// node-store WORAM).
	Kind string `mapstructure:"kind" yaml:"kind"`

	// Branching is the trie fan-out. Default 2.
	Branching int `mapstructure:"branching" yaml:"branching"`
}

// CryptoConfig configures cipher wrapping. The key itself never
// appears in configuration, only the environment variable holding it.
type CryptoConfig struct {
	// Split is "none", "ctr" or "rand". "rand" wraps the position-map
	// half of the backend split in AES-CBC with random IVs. "ctr" puts
	// AES-CTR inside the det scheme's own area split (or around the
	// onewrite backend) and leaves the position-map split unencrypted,
	// except under a trie position map, whose node area gets the
	// random-IV cipher instead.
	Split string `mapstructure:"split" yaml:"split"`

	// KeyEnv names the environment variable carrying the key: either
	// 32/48/64 hex characters used directly, or an arbitrary
	// passphrase stretched to a 256-bit key.
	KeyEnv string `mapstructure:"key_env" yaml:"key_env"`
}

// Default returns the baseline configuration: a 1 MiB RAM-backed
// device of 4 KiB blocks behind a deterministic WORAM with a
// recursive position map and no encryption.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
		},
		Backend: BackendConfig{
			Kind:      "local",
			Blocksize: 4 * bytesize.KiB,
			Size:      1 * bytesize.MiB,
		},
		Woram: WoramConfig{
			Kind: "det",
			Grow: 2,
			Mult: 10,
			K:    3,
		},
		PosMap: PosMapConfig{
			Kind:      "recursive",
			Branching: 2,
		},
		Crypto: CryptoConfig{
			Split:  "none",
			KeyEnv: "WORAM_KEY",
		},
	}
}

// Load reads configuration from the given file path (optional) and
// the WORAM_* environment, layered over the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := Default()
	decode := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		byteSizeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decode); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WORAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Registering every key's default is what lets AutomaticEnv feed
	// Unmarshal for keys the config file never mentions.
	d := Default()
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("backend.kind", d.Backend.Kind)
	v.SetDefault("backend.path", d.Backend.Path)
	v.SetDefault("backend.blocksize", d.Backend.Blocksize.String())
	v.SetDefault("backend.size", d.Backend.Size.String())
	v.SetDefault("backend.create", d.Backend.Create)
	v.SetDefault("woram.kind", d.Woram.Kind)
	v.SetDefault("woram.grow", d.Woram.Grow)
	v.SetDefault("woram.mult", d.Woram.Mult)
	v.SetDefault("woram.k", d.Woram.K)
	v.SetDefault("posmap.kind", d.PosMap.Kind)
	v.SetDefault("posmap.branching", d.PosMap.Branching)
	v.SetDefault("crypto.split", d.Crypto.Split)
	v.SetDefault("crypto.key_env", d.Crypto.KeyEnv)
}

// byteSizeHook decodes strings like "4KiB" into bytesize.ByteSize.
func byteSizeHook() mapstructure.DecodeHookFuncType {
	byteSizeType := reflect.TypeOf(bytesize.ByteSize(0))
	return func(_, to reflect.Type, data interface{}) (interface{}, error) {
		if to != byteSizeType {
			return data, nil
		}
		if s, ok := data.(string); ok {
			return bytesize.ParseByteSize(s)
		}
		return data, nil
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Backend.Kind) {
	case "local":
	case "file":
		if c.Backend.Path == "" {
			return fmt.Errorf("backend.path is required for the file backend")
		}
	default:
		return fmt.Errorf("unknown backend.kind %q (want local or file)", c.Backend.Kind)
	}
	if c.Backend.Blocksize == 0 {
		return fmt.Errorf("backend.blocksize must be > 0")
	}
	if c.Backend.Blocksize.Uint64()%16 != 0 {
		return fmt.Errorf("backend.blocksize %s must be a multiple of 16 bytes", c.Backend.Blocksize)
	}
	if c.Backend.Size < c.Backend.Blocksize {
		return fmt.Errorf("backend.size %s smaller than one block (%s)", c.Backend.Size, c.Backend.Blocksize)
	}

	switch strings.ToLower(c.Woram.Kind) {
	case "det", "onewrite", "bmno":
	default:
		return fmt.Errorf("unknown woram.kind %q (want det, onewrite or bmno)", c.Woram.Kind)
	}
	if c.Woram.K < 0 {
		return fmt.Errorf("woram.k must be >= 0")
	}

	switch strings.ToLower(c.PosMap.Kind) {
	case "recursive", "trie":
	default:
		return fmt.Errorf("unknown posmap.kind %q (want recursive or trie)", c.PosMap.Kind)
	}
	if c.PosMap.Branching < 0 || c.PosMap.Branching == 1 {
		return fmt.Errorf("posmap.branching must be 0 (default) or >= 2")
	}

	switch strings.ToLower(c.Crypto.Split) {
	case "none", "ctr", "rand":
	default:
		return fmt.Errorf("unknown crypto.split %q (want none, ctr or rand)", c.Crypto.Split)
	}
	needsKey := strings.ToLower(c.Crypto.Split) != "none" || strings.ToLower(c.Woram.Kind) == "bmno"
	if needsKey && c.Crypto.KeyEnv == "" {
		return fmt.Errorf("crypto.key_env is required when crypto.split is enabled or woram.kind is bmno")
	}
	return nil
}

// NumBlocks returns the logical device size in blocks.
func (c *Config) NumBlocks() uint64 {
	return c.Backend.Size.Blocks(c.Backend.Blocksize)
}

// WriteFile marshals the configuration to YAML at path, refusing to
// overwrite an existing file unless force is set.
func (c *Config) WriteFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}
