package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config carries everything tunable about the client. Values come from the
// environment (CLDZTALK_* variables, optionally via a .env file) with defaults
// that match the hosted service.
type Config struct {
	APIBaseURL string
	SocketURL  string
	Profile    string

	HistoryPageSize int

	// ReadSettleDelay is how long a newly focused chat sits before its unread
	// messages are marked read. Zero means mark immediately.
	ReadSettleDelay time.Duration
	// TypingTimeout is how long a peer stays in the typing set without a
	// repeat typing event.
	TypingTimeout time.Duration
	// TypingDebounce is the outbound stop-typing inactivity window.
	TypingDebounce time.Duration

	Debug   bool
	LogFile string
}

func Load() *Config {
	// Missing .env is fine, plain environment still applies.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CLDZTALK")
	v.AutomaticEnv()

	v.SetDefault("API_URL", "http://localhost:5000/api")
	v.SetDefault("SOCKET_URL", "ws://localhost:5000/socket")
	v.SetDefault("PROFILE", "default")
	v.SetDefault("PAGE_SIZE", 50)
	v.SetDefault("READ_SETTLE_MS", 500)
	v.SetDefault("TYPING_TIMEOUT_MS", 3000)
	v.SetDefault("TYPING_DEBOUNCE_MS", 1000)
	v.SetDefault("DEBUG", false)
	v.SetDefault("LOG_FILE", "debug.log")

	return &Config{
		APIBaseURL:      v.GetString("API_URL"),
		SocketURL:       v.GetString("SOCKET_URL"),
		Profile:         v.GetString("PROFILE"),
		HistoryPageSize: v.GetInt("PAGE_SIZE"),
		ReadSettleDelay: time.Duration(v.GetInt("READ_SETTLE_MS")) * time.Millisecond,
		TypingTimeout:   time.Duration(v.GetInt("TYPING_TIMEOUT_MS")) * time.Millisecond,
		TypingDebounce:  time.Duration(v.GetInt("TYPING_DEBOUNCE_MS")) * time.Millisecond,
		Debug:           v.GetBool("DEBUG"),
		LogFile:         v.GetString("LOG_FILE"),
	}
}
