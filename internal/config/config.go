// Package config provides configuration management for VoiceDeck
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Voice        VoiceConfig        `mapstructure:"voice"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Monitors     MonitorsConfig     `mapstructure:"monitors"`
	Interruption InterruptionConfig `mapstructure:"interruption"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig configures the dashboard HTTP server
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// VoiceConfig holds the default voice settings applied at startup
type VoiceConfig struct {
	VoiceID      string  `mapstructure:"voice_id"`
	Rate         float64 `mapstructure:"rate"`   // 0.5-2.0
	Pitch        float64 `mapstructure:"pitch"`  // 0.5-2.0
	Volume       float64 `mapstructure:"volume"` // 0.1-2.0
	Emotion      string  `mapstructure:"emotion"`
	Style        string  `mapstructure:"style"`
	AdaptToNoise bool    `mapstructure:"adapt_to_noise"`
}

// EngineConfig configures speech engine selection
type EngineConfig struct {
	Provider   string        `mapstructure:"provider"` // auto, say, espeak, http, sim
	ServerURL  string        `mapstructure:"server_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	ProbePorts []int         `mapstructure:"probe_ports"`
}

// MonitorsConfig configures the detection monitors
type MonitorsConfig struct {
	FrameRate     int     `mapstructure:"frame_rate"` // sampling loops per second
	Permissions   string  `mapstructure:"permissions"` // grant, deny, prompt
	GestureChance float64 `mapstructure:"gesture_chance"`
	EmotionOnBoot bool    `mapstructure:"emotion_on_boot"`
	GestureOnBoot bool    `mapstructure:"gesture_on_boot"`
	NoiseOnBoot   bool    `mapstructure:"noise_on_boot"`
}

// InterruptionConfig configures barge-in detection during playback
type InterruptionConfig struct {
	ListenDelay        time.Duration `mapstructure:"listen_delay"`
	ClearDelay         time.Duration `mapstructure:"clear_delay"`
	AmplitudeThreshold float64       `mapstructure:"amplitude_threshold"` // 0-100 normalized
	UseAmplitude       bool          `mapstructure:"use_amplitude"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8930,
		},
		Voice: VoiceConfig{
			VoiceID:      "",
			Rate:         1.0,
			Pitch:        1.0,
			Volume:       1.0,
			Emotion:      "neutral",
			Style:        "casual",
			AdaptToNoise: false,
		},
		Engine: EngineConfig{
			Provider:   "auto",
			ServerURL:  "",
			Timeout:    10 * time.Second,
			ProbePorts: []int{8880, 8881, 8882, 8883, 8884},
		},
		Monitors: MonitorsConfig{
			FrameRate:     30,
			Permissions:   "grant",
			GestureChance: 0.05,
			EmotionOnBoot: false,
			GestureOnBoot: false,
			NoiseOnBoot:   false,
		},
		Interruption: InterruptionConfig{
			ListenDelay:        3 * time.Second,
			ClearDelay:         2 * time.Second,
			AmplitudeThreshold: 60,
			UseAmplitude:       false,
		},
		Logging: LoggingConfig{
			Level: "debug",
			Dir:   "",
		},
	}
}

// LoadEnvFiles loads .env files from the working directory and the config
// directory. Missing files are fine.
func LoadEnvFiles() {
	_ = godotenv.Load()
	if dir, err := GetConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(dir, ".env"))
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".voicedeck")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("VOICEDECK")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".voicedeck")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("server", cfg.Server)
	viper.Set("voice", cfg.Voice)
	viper.Set("engine", cfg.Engine)
	viper.Set("monitors", cfg.Monitors)
	viper.Set("interruption", cfg.Interruption)
	viper.Set("logging", cfg.Logging)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".voicedeck"), nil
}
