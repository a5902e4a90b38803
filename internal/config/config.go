package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Gesture struct {
		LongPressMs int
	}
	STT struct {
		URL       string
		APIKey    string
		TimeoutMs int
	}
	Voice struct {
		TokenSecret   string
		TokenExpMin   int
		TokenSkewSecs int
	}
	Receipt struct {
		NumberPrefix string
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("gesture.long_press_ms", 500)

	v.SetDefault("stt.timeout_ms", 8000)

	v.SetDefault("voice.token_exp_min", 30)
	v.SetDefault("voice.token_skew_secs", 30)

	v.SetDefault("receipt.number_prefix", "RC")

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("gesture.long_press_ms", "GESTURE_LONG_PRESS_MS")

	v.BindEnv("stt.url", "STT_URL")
	v.BindEnv("stt.api_key", "STT_API_KEY")
	v.BindEnv("stt.timeout_ms", "STT_TIMEOUT_MS")

	v.BindEnv("voice.token_secret", "VOICE_TOKEN_SECRET")
	v.BindEnv("voice.token_exp_min", "VOICE_TOKEN_EXP_MIN")
	v.BindEnv("voice.token_skew_secs", "VOICE_TOKEN_SKEW_SECS")

	v.BindEnv("receipt.number_prefix", "RECEIPT_NUMBER_PREFIX")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Gesture.LongPressMs = v.GetInt("gesture.long_press_ms")

	c.STT.URL = v.GetString("stt.url")
	c.STT.APIKey = v.GetString("stt.api_key")
	c.STT.TimeoutMs = v.GetInt("stt.timeout_ms")

	c.Voice.TokenSecret = v.GetString("voice.token_secret")
	c.Voice.TokenExpMin = v.GetInt("voice.token_exp_min")
	c.Voice.TokenSkewSecs = v.GetInt("voice.token_skew_secs")

	c.Receipt.NumberPrefix = v.GetString("receipt.number_prefix")

	log.Printf("config loaded: port=%s long_press_ms=%d stt_url=%s", c.Server.Port, c.Gesture.LongPressMs, c.STT.URL)
	return c
}

func toString(v any) string { return fmt.Sprint(v) }
