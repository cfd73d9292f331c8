package ulc

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates a Config field is outside its valid range.
var ErrInvalidConfig = errors.New("ulc: invalid config")

// Config is the immutable configuration for one encoder stream. It is the
// Go realization of the data model's stream-level fields: everything that
// is fixed for the lifetime of an EncoderState, as opposed to the per-block
// arguments EncodeBlockCBR/EncodeBlockVBR take.
type Config struct {
	// RateHz is the input sample rate, used by the window controller's
	// transient search and by MaxCodingKbps.
	RateHz float32 `yaml:"rate_hz"`

	// NChan is the number of interleaved-by-block channels in src.
	NChan int `yaml:"n_chan"`

	// BlockSize is the number of samples per channel per block; must be a
	// power of two no smaller than 16 (the window controller's minimum
	// overlap floor). No upper bound is checked; ratectl.MaxQBands is sized
	// for block sizes up to 8192, and beyond that key extraction merges the
	// excess zones into the last one.
	BlockSize int `yaml:"block_size"`

	// MinOverlap and MaxOverlap are overlap bounds expressed as
	// log2(BlockSize/OverlapSamples) (0 meaning no bound). They are only
	// validated (non-negative, MinOverlap <= MaxOverlap when MaxOverlap is
	// set); they are not passed to the window controller and do not limit
	// the overlap scale it picks.
	MinOverlap int `yaml:"min_overlap"`
	MaxOverlap int `yaml:"max_overlap"`

	// Ultrastable enables the noise-masking term in the psychoacoustic
	// model (internal/psycho's ultrastable window), trading a small
	// amount of coding gain for a mask that reacts less to short-term
	// spectral fluctuation.
	Ultrastable bool `yaml:"ultrastable"`

	// PowerDecayDb is the per-channel bias, in decibels, applied to later
	// channels' survivor weights so that a bit-starved multichannel
	// stream favors earlier channels instead of splitting bits evenly.
	PowerDecayDb float32 `yaml:"power_decay_db"`
}

// LoadConfig reads and validates a Config encoded as YAML.
func LoadConfig(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("ulc: decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.RateHz <= 0 {
		return fmt.Errorf("%w: rate_hz must be positive, got %v", ErrInvalidConfig, c.RateHz)
	}
	if c.NChan < 1 {
		return fmt.Errorf("%w: n_chan must be at least 1, got %d", ErrInvalidConfig, c.NChan)
	}
	if c.BlockSize < 16 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("%w: block_size must be a power of two >= 16, got %d", ErrInvalidConfig, c.BlockSize)
	}
	if c.MinOverlap < 0 || c.MaxOverlap < 0 {
		return fmt.Errorf("%w: overlap bounds cannot be negative", ErrInvalidConfig)
	}
	if c.MaxOverlap != 0 && c.MinOverlap > c.MaxOverlap {
		return fmt.Errorf("%w: min_overlap (%d) exceeds max_overlap (%d)", ErrInvalidConfig, c.MinOverlap, c.MaxOverlap)
	}
	return nil
}
