package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode   string `mapstructure:"mode"`
	Dotenv string `mapstructure:"dotenv"`
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
	Repositories struct {
		Postgres struct {
			Host     string `mapstructure:"host"`
			Password string `mapstructure:"password"`
			Port     string `mapstructure:"port"`
			Username string `mapstructure:"username"`
			DB       string `mapstructure:"db"`
			SSLMode  string `mapstructure:"sslmode"`
		} `mapstructure:"postgres"`
	} `mapstructure:"repositories"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// PipelineConfig carries the tunables of the tour generation pipeline.
// GridDegrees and DurationBucketMinutes control fingerprint coarseness:
// requests landing in the same grid cell and duration bucket share a tour.
type PipelineConfig struct {
	GridDegrees           float64       `mapstructure:"gridDegrees"`
	DurationBucketMinutes int           `mapstructure:"durationBucketMinutes"`
	MinutesPerPOI         int           `mapstructure:"minutesPerPOI"`
	MaxPOIs               int           `mapstructure:"maxPOIs"`
	MaxAttempts           int           `mapstructure:"maxAttempts"`
	BackoffBase           time.Duration `mapstructure:"backoffBase"`
	BackoffMax            time.Duration `mapstructure:"backoffMax"`
	CallTimeout           time.Duration `mapstructure:"callTimeout"`
	ScriptConcurrency     int           `mapstructure:"scriptConcurrency"`
	AudioConcurrency      int           `mapstructure:"audioConcurrency"`
	CacheTTL              time.Duration `mapstructure:"cacheTTL"`
	DurationTolerancePct  int           `mapstructure:"durationTolerancePct"`
	PreviewSegments       int           `mapstructure:"previewSegments"`
	AssetDir              string        `mapstructure:"assetDir"`
}

type ProvidersConfig struct {
	Places struct {
		BaseURL string `mapstructure:"baseURL"`
	} `mapstructure:"places"`
	TTS struct {
		BaseURL string            `mapstructure:"baseURL"`
		Voices  map[string]string `mapstructure:"voices"`
	} `mapstructure:"tts"`
	Gemini struct {
		Model string `mapstructure:"model"`
	} `mapstructure:"gemini"`
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Seeds    []SeedConfig  `mapstructure:"seeds"`
}

// SeedConfig is one popular location/duration/category combination the
// pre-generation scheduler keeps warm.
type SeedConfig struct {
	Lat             float64  `mapstructure:"lat"`
	Lon             float64  `mapstructure:"lon"`
	RadiusMeters    int      `mapstructure:"radiusMeters"`
	DurationMinutes int      `mapstructure:"durationMinutes"`
	Categories      []string `mapstructure:"categories"`
	Language        string   `mapstructure:"language"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %s", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}
	return config, nil
}
