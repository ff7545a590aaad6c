package colorcue

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/colorcue/colorcue/pkg/configutil"
	"github.com/colorcue/colorcue/pkg/pipeline"
)

type Config struct {
	Pipeline      pipeline.Config     `mapstructure:"pipeline"`
	Vocabulary    VocabularyConfig    `mapstructure:"vocabulary"`
	Extract       ExtractConfig       `mapstructure:"extract"`
	Transports    TransportsConfig    `mapstructure:"transports"`
	RPC           RPCConfig           `mapstructure:"rpc"`
	Agent         AgentConfig         `mapstructure:"agent"`
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type VocabularyConfig struct {
	// Labels is the inline label set. File, when set, points to a
	// labels file (one per line) that is watched for changes.
	Labels []string `mapstructure:"labels"`
	File   string   `mapstructure:"file"`
}

type ExtractConfig struct {
	Role                string `mapstructure:"role"`
	Alphabet            string `mapstructure:"alphabet"`
	MaxClosedUtterances int    `mapstructure:"max_closed_utterances"`
}

type TransportsConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type RPCConfig struct {
	Concurrency        int  `mapstructure:"concurrency"`
	TimeoutMS          int  `mapstructure:"timeout_ms"`
	Retries            int  `mapstructure:"retries"`
	RetryBackoffMS     int  `mapstructure:"retry_backoff_ms"`
	SerializeBySession bool `mapstructure:"serialize_by_session"`
}

type AgentConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	APIKey           string `mapstructure:"api_key"`
	BaseURL          string `mapstructure:"base_url"`
	Model            string `mapstructure:"model"`
	TimeoutMS        int    `mapstructure:"timeout_ms"`
	Retries          int    `mapstructure:"retries"`
	RetryBackoffMS   int    `mapstructure:"retry_backoff_ms"`
	BreakerThreshold int    `mapstructure:"breaker_threshold"`
	BreakerCooldownS int    `mapstructure:"breaker_cooldown_s"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type ObservabilityConfig struct {
	MetricsFile string `mapstructure:"metrics_file"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("pipeline.async", false)
	v.SetDefault("pipeline.stagebuffer", 128)
	v.SetDefault("pipeline.highcapacity", 256)
	v.SetDefault("pipeline.lowcapacity", 512)
	v.SetDefault("pipeline.fairnessratio", 3)
	v.SetDefault("pipeline.backpressure", "drop")
	v.SetDefault("extract.role", "remote-agent")
	v.SetDefault("extract.alphabet", "")
	v.SetDefault("extract.max_closed_utterances", 1024)
	v.SetDefault("rpc.concurrency", 4)
	v.SetDefault("rpc.timeout_ms", 6000)
	v.SetDefault("rpc.retries", 1)
	v.SetDefault("rpc.retry_backoff_ms", 200)
	v.SetDefault("rpc.serialize_by_session", true)
	v.SetDefault("agent.enabled", false)
	v.SetDefault("agent.timeout_ms", 5000)
	v.SetDefault("agent.retries", 1)
	v.SetDefault("agent.retry_backoff_ms", 200)
	v.SetDefault("agent.breaker_threshold", 5)
	v.SetDefault("agent.breaker_cooldown_s", 30)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("observability.metrics_file", "")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		Pipeline struct {
			Async         bool   `mapstructure:"async"`
			StageBuffer   int    `mapstructure:"stagebuffer"`
			HighCapacity  int    `mapstructure:"highcapacity"`
			LowCapacity   int    `mapstructure:"lowcapacity"`
			FairnessRatio int    `mapstructure:"fairnessratio"`
			Backpressure  string `mapstructure:"backpressure"`
		} `mapstructure:"pipeline"`
		Vocabulary    VocabularyConfig    `mapstructure:"vocabulary"`
		Extract       ExtractConfig       `mapstructure:"extract"`
		Transports    TransportsConfig    `mapstructure:"transports"`
		RPC           RPCConfig           `mapstructure:"rpc"`
		Agent         AgentConfig         `mapstructure:"agent"`
		Environment   string              `mapstructure:"environment"`
		LogLevel      string              `mapstructure:"log_level"`
		LogFormat     string              `mapstructure:"log_format"`
		Privacy       PrivacyConfig       `mapstructure:"privacy"`
		Observability ObservabilityConfig `mapstructure:"observability"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg := Config{
		Pipeline: pipeline.Config{
			Async:         raw.Pipeline.Async,
			StageBuffer:   raw.Pipeline.StageBuffer,
			HighCapacity:  raw.Pipeline.HighCapacity,
			LowCapacity:   raw.Pipeline.LowCapacity,
			FairnessRatio: raw.Pipeline.FairnessRatio,
			Backpressure:  parseBackpressure(raw.Pipeline.Backpressure),
		},
		Vocabulary:    raw.Vocabulary,
		Extract:       raw.Extract,
		Transports:    raw.Transports,
		RPC:           raw.RPC,
		Agent:         raw.Agent,
		Environment:   raw.Environment,
		LogLevel:      raw.LogLevel,
		LogFormat:     raw.LogFormat,
		Privacy:       raw.Privacy,
		Observability: raw.Observability,
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := configutil.RequireString(c.Transports.Provider, "transports.provider"); err != nil {
		return err
	}
	if len(c.Vocabulary.Labels) == 0 && strings.TrimSpace(c.Vocabulary.File) == "" {
		return fmt.Errorf("vocabulary.labels or vocabulary.file is required")
	}
	if c.Agent.Enabled && strings.TrimSpace(c.Agent.APIKey) == "" {
		return fmt.Errorf("agent.api_key is required when agent.enabled")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Transports.Settings = expandSettings(cfg.Transports.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				expanded := os.ExpandEnv(val.String())
				v.SetMapIndex(key, reflect.ValueOf(expanded))
			}
		}
	}
}

func parseBackpressure(v string) pipeline.BackpressureMode {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "wait":
		return pipeline.BackpressureWait
	case "drop", "":
		return pipeline.BackpressureDrop
	default:
		if n, err := strconv.Atoi(v); err == nil {
			return pipeline.BackpressureMode(n)
		}
	}
	return pipeline.BackpressureDrop
}
