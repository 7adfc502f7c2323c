package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all call-insights environment variables.
const EnvPrefix = "CALL_INSIGHTS_"

const (
	HeaderScopeSession = "session"
	HeaderScopeProcess = "process"

	InputFormatAuto = "auto"
	InputFormatPCM  = "pcm_s16le"
)

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr            string    `yaml:"listen_addr"`
	LogLevel              string    `yaml:"log_level"`
	DBPath                string    `yaml:"db_path"`
	GDriveFolderID        string    `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string    `yaml:"google_credentials_file"`
	Audio                 Audio     `yaml:"audio"`
	Flush                 Flush     `yaml:"flush"`
	STT                   STT       `yaml:"stt"`
	Sentiment             Sentiment `yaml:"sentiment"`

	// Secrets come from env vars only and are never serialized to YAML.
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
	DeepgramAPIKey  string `yaml:"-"`
}

// Audio configures fragment normalization.
type Audio struct {
	SampleRate       int    `yaml:"sample_rate"`
	BitDepth         int    `yaml:"bit_depth"`
	FFmpegPath       string `yaml:"ffmpeg_path"`
	Filter           string `yaml:"filter"`
	InputFormat      string `yaml:"input_format"`
	MinFragmentBytes int    `yaml:"min_fragment_bytes"`
	MinDecodedBytes  int    `yaml:"min_decoded_bytes"`
	HeaderBytes      int    `yaml:"header_bytes"`
	HeaderCacheScope string `yaml:"header_cache_scope"`
}

// Flush configures when a session turns its buffer into an utterance.
type Flush struct {
	SilenceThreshold float64 `yaml:"silence_threshold"`
	MinPause         string  `yaml:"min_pause"`
	MinBuffer        string  `yaml:"min_buffer"`
	MaxBuffer        string  `yaml:"max_buffer"`
	MinFinalBytes    int     `yaml:"min_final_bytes"`
	CloseTimeout     string  `yaml:"close_timeout"`
}

type STT struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Language string `yaml:"language"`
	Workers  int    `yaml:"workers"`
}

type Sentiment struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

func defaults() Config {
	return Config{
		ListenAddr:            ":8000",
		LogLevel:              "info",
		DBPath:                "data/call-insights.db",
		GoogleCredentialsFile: "./service-account.json",
		Audio: Audio{
			SampleRate:       16000,
			BitDepth:         16,
			FFmpegPath:       "ffmpeg",
			Filter:           "volume=2.0,dynaudnorm",
			InputFormat:      InputFormatAuto,
			MinFragmentBytes: 1200,
			MinDecodedBytes:  1000,
			HeaderBytes:      2048,
			HeaderCacheScope: HeaderScopeSession,
		},
		Flush: Flush{
			SilenceThreshold: 100,
			MinPause:         "2s",
			MinBuffer:        "5s",
			MaxBuffer:        "12s",
			MinFinalBytes:    48000,
			CloseTimeout:     "5s",
		},
		STT: STT{
			Provider: "openai",
			Workers:  2,
		},
		Sentiment: Sentiment{
			Model: "openai/gpt-4o-mini",
		},
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// MinPauseDuration returns Flush.MinPause, falling back to 2s if invalid.
func (c *Config) MinPauseDuration() time.Duration {
	return parseDuration(c.Flush.MinPause, 2*time.Second)
}

// MinBufferDuration returns Flush.MinBuffer, falling back to 5s if invalid.
func (c *Config) MinBufferDuration() time.Duration {
	return parseDuration(c.Flush.MinBuffer, 5*time.Second)
}

// MaxBufferDuration returns Flush.MaxBuffer, falling back to 12s if invalid.
func (c *Config) MaxBufferDuration() time.Duration {
	return parseDuration(c.Flush.MaxBuffer, 12*time.Second)
}

// CloseTimeoutDuration returns Flush.CloseTimeout, falling back to 5s if invalid.
func (c *Config) CloseTimeoutDuration() time.Duration {
	return parseDuration(c.Flush.CloseTimeout, 5*time.Second)
}

// APIKeyFor returns the secret matching an LLM or STT provider name.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	case "deepgram":
		return c.DeepgramAPIKey
	default:
		return ""
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	envString("LISTEN_ADDR", &cfg.ListenAddr)
	envString("LOG_LEVEL", &cfg.LogLevel)
	envString("DB_PATH", &cfg.DBPath)
	envString("GDRIVE_FOLDER_ID", &cfg.GDriveFolderID)
	envString("GOOGLE_CREDENTIALS_FILE", &cfg.GoogleCredentialsFile)

	envInt("SAMPLE_RATE", &cfg.Audio.SampleRate)
	envString("FFMPEG_PATH", &cfg.Audio.FFmpegPath)
	envString("AUDIO_FILTER", &cfg.Audio.Filter)
	envString("INPUT_FORMAT", &cfg.Audio.InputFormat)
	envInt("MIN_FRAGMENT_BYTES", &cfg.Audio.MinFragmentBytes)
	envInt("MIN_DECODED_BYTES", &cfg.Audio.MinDecodedBytes)
	envInt("HEADER_BYTES", &cfg.Audio.HeaderBytes)
	envString("HEADER_CACHE_SCOPE", &cfg.Audio.HeaderCacheScope)

	if v := os.Getenv(EnvPrefix + "SILENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 {
			cfg.Flush.SilenceThreshold = f
		}
	}
	envString("MIN_PAUSE", &cfg.Flush.MinPause)
	envString("MIN_BUFFER", &cfg.Flush.MinBuffer)
	envString("MAX_BUFFER", &cfg.Flush.MaxBuffer)
	envInt("MIN_FINAL_BYTES", &cfg.Flush.MinFinalBytes)
	envString("CLOSE_TIMEOUT", &cfg.Flush.CloseTimeout)

	envString("STT_PROVIDER", &cfg.STT.Provider)
	envString("STT_MODEL", &cfg.STT.Model)
	envString("STT_BASE_URL", &cfg.STT.BaseURL)
	envString("STT_LANGUAGE", &cfg.STT.Language)
	envInt("STT_WORKERS", &cfg.STT.Workers)

	// Set but empty disables the LLM and keeps the keyword heuristic.
	if v, ok := os.LookupEnv(EnvPrefix + "SENTIMENT_MODEL"); ok {
		cfg.Sentiment.Model = v
	}
	envString("SENTIMENT_BASE_URL", &cfg.Sentiment.BaseURL)
}

func envString(key string, dst *string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

// envInt ignores values that are not positive integers.
func envInt(key string, dst *int) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
		*dst = n
	}
}

func loadSecrets(cfg *Config) {
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	switch cfg.STT.Provider {
	case "openai", "deepgram":
		if cfg.APIKeyFor(cfg.STT.Provider) == "" && cfg.STT.BaseURL == "" {
			warnings = append(warnings, fmt.Sprintf("No API key for STT provider %q; transcripts will be empty. Set %s%s_API_KEY.", cfg.STT.Provider, EnvPrefix, strings.ToUpper(cfg.STT.Provider)))
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown stt provider %q; expected openai or deepgram.", cfg.STT.Provider))
	}

	if cfg.Sentiment.Model == "" {
		warnings = append(warnings, "Sentiment model not configured; using keyword heuristic.")
	} else if provider, _, ok := strings.Cut(cfg.Sentiment.Model, "/"); !ok {
		warnings = append(warnings, fmt.Sprintf("Invalid sentiment model %q; expected provider/model; using keyword heuristic.", cfg.Sentiment.Model))
	} else if cfg.APIKeyFor(provider) == "" && cfg.Sentiment.BaseURL == "" {
		warnings = append(warnings, fmt.Sprintf("No API key for sentiment provider %q; using keyword heuristic.", provider))
	}

	for name, raw := range map[string]string{
		"min_pause":     cfg.Flush.MinPause,
		"min_buffer":    cfg.Flush.MinBuffer,
		"max_buffer":    cfg.Flush.MaxBuffer,
		"close_timeout": cfg.Flush.CloseTimeout,
	} {
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			warnings = append(warnings, fmt.Sprintf("Invalid flush.%s %q; using default.", name, raw))
		}
	}
	if cfg.MinBufferDuration() > cfg.MaxBufferDuration() {
		warnings = append(warnings, "flush.min_buffer exceeds flush.max_buffer; pause-triggered flushes will never happen.")
	}

	switch cfg.Audio.HeaderCacheScope {
	case HeaderScopeSession, HeaderScopeProcess:
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown audio.header_cache_scope %q; using %q.", cfg.Audio.HeaderCacheScope, HeaderScopeSession))
		cfg.Audio.HeaderCacheScope = HeaderScopeSession
	}
	switch cfg.Audio.InputFormat {
	case InputFormatAuto, InputFormatPCM:
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown audio.input_format %q; using %q.", cfg.Audio.InputFormat, InputFormatAuto))
		cfg.Audio.InputFormat = InputFormatAuto
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.BitDepth != 16 {
		warnings = append(warnings, fmt.Sprintf("audio.bit_depth %d unsupported; using 16.", cfg.Audio.BitDepth))
		cfg.Audio.BitDepth = 16
	}
	if cfg.STT.Workers <= 0 {
		cfg.STT.Workers = 1
	}

	return warnings
}
