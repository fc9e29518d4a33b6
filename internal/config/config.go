package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultAIURL          = "https://hpersona.vercel.app/api/chat"
	DefaultAIMode         = "gpt"
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 3000
	DefaultBufSize        = 100
	DefaultControlSecret  = "ikamba pause"
	DefaultPauseMinutes   = 60
	DefaultIdleEvictHours = 24
)

type Config struct {
	AI       AIConfig       `json:"ai"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Web      WebConfig      `json:"web"`
	Control  ControlConfig  `json:"control"`
	Session  SessionConfig  `json:"session"`
}

type AIConfig struct {
	URL  string `json:"url"`
	Mode string `json:"mode,omitempty"`
}

type WhatsAppConfig struct {
	StorePath string   `json:"storePath,omitempty"`
	MediaDir  string   `json:"mediaDir,omitempty"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

type WebConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ControlConfig struct {
	// Secret is the shared pause phrase, compared case-insensitively.
	// Self-messages from the linked account are always authorized.
	Secret       string `json:"secret"`
	PauseMinutes int    `json:"pauseMinutes"`
}

type SessionConfig struct {
	IdleEvictHours int `json:"idleEvictHours"`
}

func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			URL:  DefaultAIURL,
			Mode: DefaultAIMode,
		},
		WhatsApp: WhatsAppConfig{
			StorePath: filepath.Join(ConfigDir(), "whatsapp-store.db"),
			MediaDir:  filepath.Join(ConfigDir(), "media"),
		},
		Web: WebConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Control: ControlConfig{
			Secret:       DefaultControlSecret,
			PauseMinutes: DefaultPauseMinutes,
		},
		Session: SessionConfig{
			IdleEvictHours: DefaultIdleEvictHours,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".ikamba")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if url := os.Getenv("IKAMBA_API_URL"); url != "" {
		cfg.AI.URL = url
	}
	if port := os.Getenv("PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Web.Port = parsed
		}
	}
	if secret := os.Getenv("IKAMBA_CONTROL_SECRET"); secret != "" {
		cfg.Control.Secret = secret
	}
	if path := os.Getenv("IKAMBA_STORE_PATH"); path != "" {
		cfg.WhatsApp.StorePath = path
	}
	if dir := os.Getenv("IKAMBA_MEDIA_DIR"); dir != "" {
		cfg.WhatsApp.MediaDir = dir
	}

	if cfg.AI.URL == "" {
		cfg.AI.URL = DefaultAIURL
	}
	if cfg.AI.Mode == "" {
		cfg.AI.Mode = DefaultAIMode
	}
	if cfg.Control.PauseMinutes <= 0 {
		cfg.Control.PauseMinutes = DefaultPauseMinutes
	}
	if cfg.Session.IdleEvictHours <= 0 {
		cfg.Session.IdleEvictHours = DefaultIdleEvictHours
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
