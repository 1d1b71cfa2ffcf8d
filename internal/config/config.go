package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultChatModel        = "gemma3:4b"
	DefaultEmbeddingModel   = "nomic-embed-text"
	DefaultOllamaBaseURL    = "http://localhost:11434"
	DefaultHost             = "127.0.0.1"
	DefaultPort             = 18310
	DefaultBufSize          = 100
	DefaultDebounceMs       = 1000
	DefaultHistoryLimit     = 5
	DefaultContextLimit     = 5
	DefaultChatTimeoutSec   = 120
	DefaultReindexCron      = "0 30 3 * * *"
	DefaultVacuumCron       = "0 0 4 * * 1"
	DefaultMaxTokensPerTurn = 512
)

type Config struct {
	Storage     StorageConfig     `json:"storage"`
	Provider    ProviderConfig    `json:"provider"`
	Autosave    AutosaveConfig    `json:"autosave"`
	Chat        ChatConfig        `json:"chat"`
	Safety      SafetyConfig      `json:"safety"`
	Gateway     GatewayConfig     `json:"gateway"`
	Maintenance MaintenanceConfig `json:"maintenance"`
}

type StorageConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

type ProviderConfig struct {
	BaseURL        string `json:"baseUrl,omitempty"`
	ChatModel      string `json:"chatModel,omitempty"`
	EmbeddingModel string `json:"embeddingModel,omitempty"`
	TimeoutSec     int    `json:"timeoutSec,omitempty"`
	MaxTokens      int    `json:"maxTokens,omitempty"`
}

type AutosaveConfig struct {
	DebounceMs int `json:"debounceMs"`
}

type ChatConfig struct {
	HistoryLimit int `json:"historyLimit"` // persisted turns sent as context
	ContextLimit int `json:"contextLimit"` // related entries woven into the prompt
}

type SafetyConfig struct {
	Enabled bool `json:"enabled"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type MaintenanceConfig struct {
	ReindexCron string `json:"reindexCron,omitempty"`
	VacuumCron  string `json:"vacuumCron,omitempty"`
	Embedding   bool   `json:"embedding"`
}

func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath: filepath.Join(ConfigDir(), "data", "inkwell.db"),
		},
		Provider: ProviderConfig{
			BaseURL:        DefaultOllamaBaseURL,
			ChatModel:      DefaultChatModel,
			EmbeddingModel: DefaultEmbeddingModel,
			TimeoutSec:     DefaultChatTimeoutSec,
			MaxTokens:      DefaultMaxTokensPerTurn,
		},
		Autosave: AutosaveConfig{DebounceMs: DefaultDebounceMs},
		Chat: ChatConfig{
			HistoryLimit: DefaultHistoryLimit,
			ContextLimit: DefaultContextLimit,
		},
		Safety: SafetyConfig{Enabled: true},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Maintenance: MaintenanceConfig{
			ReindexCron: DefaultReindexCron,
			VacuumCron:  DefaultVacuumCron,
			Embedding:   true,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".inkwell")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func Load() (*Config, error) {
	cfg := Default()

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
	if url := os.Getenv("INKWELL_OLLAMA_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("INKWELL_CHAT_MODEL"); model != "" {
		cfg.Provider.ChatModel = model
	}
	if model := os.Getenv("INKWELL_EMBEDDING_MODEL"); model != "" {
		cfg.Provider.EmbeddingModel = model
	}
	if dbPath := os.Getenv("INKWELL_DB_PATH"); dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	if ms := os.Getenv("INKWELL_DEBOUNCE_MS"); ms != "" {
		if parsed, err := strconv.Atoi(ms); err == nil && parsed > 0 {
			cfg.Autosave.DebounceMs = parsed
		}
	}
	if port := os.Getenv("INKWELL_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && parsed > 0 {
			cfg.Gateway.Port = parsed
		}
	}
	if enabled := os.Getenv("INKWELL_SAFETY_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.Safety.Enabled = parsed
		}
	}

	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = Default().Storage.DBPath
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Provider.ChatModel == "" {
		cfg.Provider.ChatModel = DefaultChatModel
	}
	if cfg.Provider.EmbeddingModel == "" {
		cfg.Provider.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.Provider.TimeoutSec <= 0 {
		cfg.Provider.TimeoutSec = DefaultChatTimeoutSec
	}
	if cfg.Provider.MaxTokens <= 0 {
		cfg.Provider.MaxTokens = DefaultMaxTokensPerTurn
	}
	if cfg.Autosave.DebounceMs <= 0 {
		cfg.Autosave.DebounceMs = DefaultDebounceMs
	}
	if cfg.Chat.HistoryLimit <= 0 {
		cfg.Chat.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Chat.ContextLimit <= 0 {
		cfg.Chat.ContextLimit = DefaultContextLimit
	}
	if cfg.Maintenance.ReindexCron == "" {
		cfg.Maintenance.ReindexCron = DefaultReindexCron
	}
	if cfg.Maintenance.VacuumCron == "" {
		cfg.Maintenance.VacuumCron = DefaultVacuumCron
	}

	return cfg, nil
}

func Save(cfg *Config) error {
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
