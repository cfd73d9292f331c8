package ulc

import (
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		RateHz:    48000,
		NChan:     1,
		BlockSize: 64,
	}
}

func TestInit_RejectsInvalidConfig(t *testing.T) {
	cases := []Config{
		{RateHz: 0, NChan: 1, BlockSize: 64},
		{RateHz: 48000, NChan: 0, BlockSize: 64},
		{RateHz: 48000, NChan: 1, BlockSize: 0},
		{RateHz: 48000, NChan: 1, BlockSize: 17}, // not a power of two
		{RateHz: 48000, NChan: 1, BlockSize: 64, MinOverlap: 5, MaxOverlap: 2},
	}
	for _, cfg := range cases {
		if _, err := Init(cfg); err == nil {
			t.Errorf("Init(%+v) succeeded, want an error", cfg)
		}
	}
}

func TestEncodeBlockCBR_RejectsMismatchedSrcLength(t *testing.T) {
	s, err := Init(testConfig())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer s.Destroy()

	dst := make([]byte, 256)
	src := make([]float32, 7) // wrong length
	if _, err := s.EncodeBlockCBR(dst, src, 64); err == nil {
		t.Fatal("EncodeBlockCBR accepted a mismatched src length")
	}
}

func TestEncodeBlockCBR_RejectsUndersizedDst(t *testing.T) {
	cfg := testConfig()
	s, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer s.Destroy()

	src := make([]float32, cfg.NChan*cfg.BlockSize)
	dst := make([]byte, 1) // far too small for the worst case
	if _, err := s.EncodeBlockCBR(dst, src, 64); err == nil {
		t.Fatal("EncodeBlockCBR accepted an undersized dst")
	}
}

func TestEncodeBlockCBR_SilentBlockProducesOnlyTheHeader(t *testing.T) {
	cfg := testConfig()
	s, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer s.Destroy()

	src := make([]float32, cfg.NChan*cfg.BlockSize)
	dst := make([]byte, 256)
	bits, err := s.EncodeBlockCBR(dst, src, 64)
	if err != nil {
		t.Fatalf("EncodeBlockCBR failed: %v", err)
	}
	// A silent block has one quantizer zone and no survivors: the 8-bit
	// window-control byte plus a single 0xF (unused zone) header nybble.
	if bits != 12 {
		t.Fatalf("bits = %d, want 12 (window-control byte plus one 0xF quantizer nybble)", bits)
	}
}

func TestEncodeBlockVBR_ZeroQualityStillEmitsHeader(t *testing.T) {
	cfg := testConfig()
	s, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer s.Destroy()

	src := make([]float32, cfg.NChan*cfg.BlockSize)
	for i := range src {
		src[i] = 0.5
	}
	dst := make([]byte, 256)
	bits, err := s.EncodeBlockVBR(dst, src, 0)
	if err != nil {
		t.Fatalf("EncodeBlockVBR failed: %v", err)
	}
	if bits < 8 {
		t.Fatalf("bits = %d, want at least the 8-bit window-control header", bits)
	}
}

func TestDestroy_RejectsFurtherEncodeCalls(t *testing.T) {
	cfg := testConfig()
	s, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	s.Destroy()

	src := make([]float32, cfg.NChan*cfg.BlockSize)
	dst := make([]byte, 256)
	if _, err := s.EncodeBlockCBR(dst, src, 64); err != ErrClosed {
		t.Fatalf("EncodeBlockCBR after Destroy = %v, want ErrClosed", err)
	}
}

func TestLoadConfig_ParsesYAML(t *testing.T) {
	yamlDoc := `
rate_hz: 48000
n_chan: 2
block_size: 128
min_overlap: 0
max_overlap: 0
ultrastable: true
power_decay_db: 3
`
	cfg, err := LoadConfig(strings.NewReader(yamlDoc))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.NChan != 2 || cfg.BlockSize != 128 || !cfg.Ultrastable {
		t.Fatalf("LoadConfig parsed %+v unexpectedly", cfg)
	}
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	yamlDoc := `
rate_hz: 0
n_chan: 1
block_size: 64
`
	if _, err := LoadConfig(strings.NewReader(yamlDoc)); err == nil {
		t.Fatal("LoadConfig accepted rate_hz: 0")
	}
}
