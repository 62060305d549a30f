package config

import (
	"github.com/spf13/viper"
	"sync"
	"time"
)

var once sync.Once

// Config is the process-wide configuration fixed at startup and handed to
// every component that needs it.
type Config struct {
	StoreDriver     string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	SQLitePath      string

	QuoteProvider  string
	QuoteAPIURL    string
	QuoteCrypto    bool
	APIProKey      string
	QuoteRateLimit float64
	FetchWorkers   int

	NotifyWorkers     int
	NotifyBearerToken string
	TelegramBotToken  string

	RequestTimeout time.Duration
	CheckInterval  time.Duration

	MetricsPort int
	Debug       bool
	Lang        string
	LocalesPath string
}

func InitConfig() {
	once.Do(func() {
		viper.AutomaticEnv()

		viper.BindEnv("store_driver", "STORE_DRIVER")
		viper.BindEnv("mongo_uri", "MONGO_URI")
		viper.BindEnv("mongo_database", "MONGO_DATABASE")
		viper.BindEnv("mongo_collection", "MONGO_COLLECTION")
		viper.BindEnv("sqlite_path", "SQLITE_PATH")
		viper.BindEnv("quote_provider", "QUOTE_PROVIDER")
		viper.BindEnv("quote_api_url", "QUOTE_API_URL")
		viper.BindEnv("quote_crypto", "QUOTE_CRYPTO")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")
		viper.BindEnv("quote_rate_limit", "QUOTE_RATE_LIMIT")
		viper.BindEnv("fetch_workers", "FETCH_WORKERS")
		viper.BindEnv("notify_workers", "NOTIFY_WORKERS")
		viper.BindEnv("notify_bearer_token", "NOTIFY_BEARER_TOKEN")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("request_timeout", "REQUEST_TIMEOUT")
		viper.BindEnv("check_interval", "CHECK_INTERVAL")
		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("lang", "LANG")
		viper.BindEnv("locales_path", "LOCALES_PATH")

		viper.SetDefault("store_driver", "mongo")
		viper.SetDefault("mongo_uri", "mongodb://localhost:27017")
		viper.SetDefault("mongo_database", "NT")
		viper.SetDefault("mongo_collection", "alerts")
		viper.SetDefault("sqlite_path", "/app/data/alerts.db")
		viper.SetDefault("quote_provider", "http")
		viper.SetDefault("quote_api_url", "http://localhost:8000/get_current_price")
		viper.SetDefault("quote_crypto", true)
		viper.SetDefault("quote_rate_limit", 10)
		viper.SetDefault("fetch_workers", 8)
		viper.SetDefault("notify_workers", 16)
		viper.SetDefault("notify_bearer_token", "NotifinanceTK")
		viper.SetDefault("request_timeout", "10s")
		viper.SetDefault("check_interval", "10s")
		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
		viper.SetDefault("locales_path", "locales")
	})
}

// Load reads the environment once and returns a snapshot of every setting.
func Load() Config {
	InitConfig()
	return Config{
		StoreDriver:       viper.GetString("store_driver"),
		MongoURI:          viper.GetString("mongo_uri"),
		MongoDatabase:     viper.GetString("mongo_database"),
		MongoCollection:   viper.GetString("mongo_collection"),
		SQLitePath:        viper.GetString("sqlite_path"),
		QuoteProvider:     viper.GetString("quote_provider"),
		QuoteAPIURL:       viper.GetString("quote_api_url"),
		QuoteCrypto:       viper.GetBool("quote_crypto"),
		APIProKey:         viper.GetString("api_pro_key"),
		QuoteRateLimit:    viper.GetFloat64("quote_rate_limit"),
		FetchWorkers:      viper.GetInt("fetch_workers"),
		NotifyWorkers:     viper.GetInt("notify_workers"),
		NotifyBearerToken: viper.GetString("notify_bearer_token"),
		TelegramBotToken:  viper.GetString("telegram_bot_token"),
		RequestTimeout:    viper.GetDuration("request_timeout"),
		CheckInterval:     viper.GetDuration("check_interval"),
		MetricsPort:       viper.GetInt("metrics_port"),
		Debug:             viper.GetBool("debug"),
		Lang:              viper.GetString("lang"),
		LocalesPath:       viper.GetString("locales_path"),
	}
}
