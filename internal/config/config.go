package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type AudioConfig struct {
	PreferredDeviceUID string  `yaml:"preferred_device_uid"`
	SampleRate         int     `yaml:"sample_rate"`
	EnergyWindow       int     `yaml:"energy_window"`
	VADThreshold       float64 `yaml:"vad_threshold"`
}

type RecognizerConfig struct {
	Mode                  string `yaml:"mode"` // mock, exec
	Command               string `yaml:"command"`
	ModelPath             string `yaml:"model_path"`
	Language              string `yaml:"language"`
	PartialEveryMS        int    `yaml:"partial_every_ms"`
	ConfirmationThreshold int    `yaml:"confirmation_threshold"`
}

type DeliveryConfig struct {
	MinUpdateIntervalMS int `yaml:"min_update_interval_ms"`
	KeystrokeDelayMS    int `yaml:"keystroke_delay_ms"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
}

type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Audio       AudioConfig      `yaml:"audio"`
	Recognizer  RecognizerConfig `yaml:"recognizer"`
	Delivery    DeliveryConfig   `yaml:"delivery"`
	Store       StoreConfig      `yaml:"store"`
	Notify      NotifyConfig     `yaml:"notify"`
}

func Default() Config {
	return Config{
		RuntimeName: "dictated",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8089,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Audio: AudioConfig{
			PreferredDeviceUID: "",
			SampleRate:         16000,
			EnergyWindow:       20,
			VADThreshold:       0.3,
		},
		Recognizer: RecognizerConfig{
			Mode:                  "mock",
			PartialEveryMS:        800,
			ConfirmationThreshold: 2,
		},
		Delivery: DeliveryConfig{
			MinUpdateIntervalMS: 500,
			KeystrokeDelayMS:    8,
		},
		Store: StoreConfig{
			Path:          "./data/dictate-sessions.db",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Notify: NotifyConfig{
			Enabled: true,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "DICTATE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "DICTATE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "DICTATE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "DICTATE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "DICTATE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "DICTATE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "DICTATE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "DICTATE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "DICTATE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "DICTATE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "DICTATE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "DICTATE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "DICTATE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "DICTATE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "DICTATE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "DICTATE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Audio.PreferredDeviceUID, "DICTATE_AUDIO_PREFERRED_DEVICE_UID")
	overrideInt(&cfg.Audio.SampleRate, "DICTATE_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.EnergyWindow, "DICTATE_AUDIO_ENERGY_WINDOW")
	overrideFloat(&cfg.Audio.VADThreshold, "DICTATE_AUDIO_VAD_THRESHOLD")
	overrideString(&cfg.Recognizer.Mode, "DICTATE_RECOGNIZER_MODE")
	overrideString(&cfg.Recognizer.Command, "DICTATE_RECOGNIZER_COMMAND")
	overrideString(&cfg.Recognizer.ModelPath, "DICTATE_RECOGNIZER_MODEL_PATH")
	overrideString(&cfg.Recognizer.Language, "DICTATE_RECOGNIZER_LANGUAGE")
	overrideInt(&cfg.Recognizer.PartialEveryMS, "DICTATE_RECOGNIZER_PARTIAL_EVERY_MS")
	overrideInt(&cfg.Recognizer.ConfirmationThreshold, "DICTATE_RECOGNIZER_CONFIRMATION_THRESHOLD")
	overrideInt(&cfg.Delivery.MinUpdateIntervalMS, "DICTATE_DELIVERY_MIN_UPDATE_INTERVAL_MS")
	overrideInt(&cfg.Delivery.KeystrokeDelayMS, "DICTATE_DELIVERY_KEYSTROKE_DELAY_MS")
	overrideString(&cfg.Store.Path, "DICTATE_STORE_PATH")
	overrideInt(&cfg.Store.RetentionDays, "DICTATE_STORE_RETENTION_DAYS")
	overrideInt(&cfg.Store.MaxSessions, "DICTATE_STORE_MAX_SESSIONS")
	overrideBool(&cfg.Notify.Enabled, "DICTATE_NOTIFY_ENABLED")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.EnergyWindow <= 0 {
		return errors.New("audio.energy_window must be >= 1")
	}
	if cfg.Audio.VADThreshold < 0 || cfg.Audio.VADThreshold > 1 {
		return errors.New("audio.vad_threshold must be within [0, 1]")
	}
	switch cfg.Recognizer.Mode {
	case "mock", "exec":
	default:
		return errors.New("recognizer.mode must be one of mock|exec")
	}
	if cfg.Recognizer.Mode == "exec" && cfg.Recognizer.Command == "" {
		return errors.New("recognizer.command must be set when mode=exec")
	}
	if cfg.Recognizer.PartialEveryMS <= 0 {
		return errors.New("recognizer.partial_every_ms must be positive")
	}
	if cfg.Recognizer.ConfirmationThreshold < 1 {
		return errors.New("recognizer.confirmation_threshold must be >= 1")
	}
	if cfg.Delivery.MinUpdateIntervalMS < 0 {
		return errors.New("delivery.min_update_interval_ms must be >= 0")
	}
	if cfg.Delivery.KeystrokeDelayMS < 0 {
		return errors.New("delivery.keystroke_delay_ms must be >= 0")
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if cfg.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be >= 0")
	}
	return nil
}
