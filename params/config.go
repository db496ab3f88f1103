package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Server struct {
	ListenAddr  string
	CorsOrigins []string
}

type Ledger struct {
	DBPath string
}

type Rates struct {
	// APIURL/APIKey select the live apilayer source; an empty key falls
	// back to the mock generator.
	APIURL       string
	APIKey       string
	Base         string
	PollInterval time.Duration
}

type Config struct {
	Server   Server
	Ledger   Ledger
	Rates    Rates
	LogLevel string
}

func Default() Config {
	return Config{
		Server: Server{
			ListenAddr:  ":8080",
			CorsOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Ledger: Ledger{
			DBPath: "data/ledger.db",
		},
		Rates: Rates{
			Base:         "USD",
			PollInterval: 60 * time.Second,
		},
		LogLevel: "info",
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CorsOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Ledger.DBPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RATES_API_URL"); v != "" {
		cfg.Rates.APIURL = v
	}
	if v := os.Getenv("RATES_API_KEY"); v != "" {
		cfg.Rates.APIKey = v
	}
	if v := os.Getenv("RATES_BASE"); v != "" {
		cfg.Rates.Base = strings.ToUpper(v)
	}
	if v := os.Getenv("RATES_POLL_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Rates.PollInterval = time.Duration(ms) * time.Millisecond
		}
	}

	return cfg
}
