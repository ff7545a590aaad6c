package colorcue

import (
	"fmt"
	"strings"
	"time"

	"github.com/colorcue/colorcue/pkg/configutil"
	"github.com/colorcue/colorcue/pkg/frames"
	"github.com/colorcue/colorcue/pkg/transports"
	"github.com/colorcue/colorcue/pkg/transports/deepgram"
	"github.com/colorcue/colorcue/pkg/transports/mock"
	"github.com/colorcue/colorcue/pkg/transports/wsjson"
)

// BuildTransport constructs the configured transport. Settings are validated
// against a per-provider schema before decoding so typos fail loudly at boot.
func BuildTransport(cfg TransportsConfig) (transports.Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "mock":
		return mock.New(), nil
	case "wsjson":
		return buildWSJSON(cfg.Settings)
	case "deepgram":
		return buildDeepgram(cfg.Settings)
	default:
		return nil, fmt.Errorf("unknown transport provider %q", cfg.Provider)
	}
}

func buildWSJSON(settings map[string]any) (transports.Transport, error) {
	schema := configutil.Schema{
		Required: []string{"url"},
		Optional: []string{"session_id", "dial_timeout_ms", "reconnect_max", "reconnect_delay_ms"},
	}
	if err := configutil.ValidateSettings(settings, schema); err != nil {
		return nil, fmt.Errorf("wsjson settings: %w", err)
	}
	var s struct {
		URL              string `mapstructure:"url"`
		SessionID        string `mapstructure:"session_id"`
		DialTimeoutMS    int    `mapstructure:"dial_timeout_ms"`
		ReconnectMax     int    `mapstructure:"reconnect_max"`
		ReconnectDelayMS int    `mapstructure:"reconnect_delay_ms"`
	}
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, fmt.Errorf("wsjson settings: %w", err)
	}
	return wsjson.New(wsjson.Config{
		URL:            s.URL,
		SessionID:      s.SessionID,
		DialTimeout:    time.Duration(s.DialTimeoutMS) * time.Millisecond,
		ReconnectMax:   s.ReconnectMax,
		ReconnectDelay: time.Duration(s.ReconnectDelayMS) * time.Millisecond,
	}), nil
}

func buildDeepgram(settings map[string]any) (transports.Transport, error) {
	schema := configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "language", "sample_rate", "encoding", "interim", "utterance_end_ms", "session_id", "role"},
	}
	if err := configutil.ValidateSettings(settings, schema); err != nil {
		return nil, fmt.Errorf("deepgram settings: %w", err)
	}
	var s struct {
		APIKey         string `mapstructure:"api_key"`
		Model          string `mapstructure:"model"`
		Language       string `mapstructure:"language"`
		SampleRate     int    `mapstructure:"sample_rate"`
		Encoding       string `mapstructure:"encoding"`
		Interim        *bool  `mapstructure:"interim"`
		UtteranceEndMS *int   `mapstructure:"utterance_end_ms"`
		SessionID      string `mapstructure:"session_id"`
		Role           string `mapstructure:"role"`
	}
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, fmt.Errorf("deepgram settings: %w", err)
	}
	return deepgram.New(deepgram.Config{
		APIKey:         s.APIKey,
		Model:          s.Model,
		Language:       s.Language,
		SampleRate:     s.SampleRate,
		Encoding:       s.Encoding,
		Interim:        configutil.BoolValue(s.Interim, true),
		UtteranceEndMS: configutil.IntValue(s.UtteranceEndMS, 1000),
		SessionID:      s.SessionID,
		Role:           frames.Role(s.Role),
	}), nil
}
