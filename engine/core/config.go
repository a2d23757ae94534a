package core

import (
	"bytes"
	"fmt"
	"os"
	"runtime"

	"github.com/pelletier/go-toml/v2"
)

// Config mirrors assets/config.toml. Missing keys keep the values of DefaultConfig.
type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
	Assets      AssetsConfig      `toml:"assets"`
	Jobs        JobsConfig        `toml:"jobs"`
}

type ApplicationConfig struct {
	Name     string `toml:"name"`
	Width    uint32 `toml:"width"`
	Height   uint32 `toml:"height"`
	LogLevel string `toml:"log_level"`
	Headless bool   `toml:"headless"`
	// Number of frames to render before exiting, 0 runs until the window closes.
	MaxFrames uint64 `toml:"max_frames"`
}

type RendererConfig struct {
	FramesInFlight     uint32 `toml:"frames_in_flight"`
	CullingThreshold   int    `toml:"culling_threshold"`
	ShadowMapSize      uint32 `toml:"shadow_map_size"`
	MaxCulledInstances uint32 `toml:"max_culled_instances"`
	MaxLineInstances   uint32 `toml:"max_line_instances"`
	// 0 picks the highest sample count the device supports.
	MSAASamples      uint32 `toml:"msaa_samples"`
	EnableValidation bool   `toml:"enable_validation"`
	VSync            bool   `toml:"vsync"`
}

type AssetsConfig struct {
	Root       string `toml:"root"`
	Blueprints string `toml:"blueprints"`
	Shaders    string `toml:"shaders"`
	Materials  string `toml:"materials"`
	Textures   string `toml:"textures"`
	Watch      bool   `toml:"watch"`
	// Bytes of each shader file folded into a blueprint hash.
	HashHeadBytes int `toml:"hash_head_bytes"`
	DebounceMS    int `toml:"debounce_ms"`
}

type JobsConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

func DefaultConfig() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:     "Lumen",
			Width:    1280,
			Height:   720,
			LogLevel: "info",
		},
		Renderer: RendererConfig{
			FramesInFlight:     3,
			CullingThreshold:   500,
			ShadowMapSize:      2048,
			MaxCulledInstances: 1_000_000,
			MaxLineInstances:   100_000,
			EnableValidation:   true,
			VSync:              true,
		},
		Assets: AssetsConfig{
			Root:          "assets",
			Blueprints:    "blueprints",
			Shaders:       "shaders",
			Materials:     "materials",
			Textures:      "textures",
			Watch:         true,
			HashHeadBytes: 256,
			DebounceMS:    100,
		},
		Jobs: JobsConfig{
			Workers:   runtime.GOMAXPROCS(0),
			QueueSize: 1024,
		},
	}
}

// LoadConfig overlays the TOML file at path on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := cfg.Decode(data); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Decode(data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(c)
}

func (c *Config) Validate() error {
	if c.Renderer.FramesInFlight != 3 {
		return fmt.Errorf("%w: frames_in_flight must be 3, got %d", ErrInvalidConfig, c.Renderer.FramesInFlight)
	}
	if c.Renderer.CullingThreshold < 1 {
		return fmt.Errorf("%w: culling_threshold must be at least 1", ErrInvalidConfig)
	}
	if c.Renderer.ShadowMapSize == 0 {
		return fmt.Errorf("%w: shadow_map_size must be non-zero", ErrInvalidConfig)
	}
	if c.Renderer.MaxCulledInstances == 0 || c.Renderer.MaxLineInstances == 0 {
		return fmt.Errorf("%w: instance capacities must be non-zero", ErrInvalidConfig)
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrNoWorkers)
	}
	if c.Jobs.QueueSize < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrNegativeChannelSize)
	}
	if c.Assets.DebounceMS < 0 {
		return fmt.Errorf("%w: debounce_ms cannot be negative", ErrInvalidConfig)
	}
	if c.Assets.HashHeadBytes < 0 {
		return fmt.Errorf("%w: hash_head_bytes cannot be negative", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
