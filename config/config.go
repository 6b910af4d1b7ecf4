package config

import (
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"sync"
	"time"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		// .env is optional, real environment variables take precedence
		if err := godotenv.Load(".env"); err != nil {
			log.Debugf("no .env file loaded: %v", err)
		}

		viper.AutomaticEnv()

		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("log_level", "LOG_LEVEL")
		viper.BindEnv("lang", "BOT_LANG")
		viper.BindEnv("db_path", "DB_PATH")
		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("alpha_vantage_key", "ALPHA_VANTAGE_KEY")
		viper.BindEnv("finnhub_api_key", "FINNHUB_API_KEY")
		viper.BindEnv("eodhd_api_key", "EODHD_API_KEY")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")
		viper.BindEnv("crypto_provider", "CRYPTO_PROVIDER")
		viper.BindEnv("http_timeout", "HTTP_TIMEOUT")
		viper.BindEnv("stock_cache_ttl", "STOCK_CACHE_TTL")
		viper.BindEnv("crypto_cache_ttl", "CRYPTO_CACHE_TTL")
		viper.BindEnv("alert_interval", "ALERT_INTERVAL")
		viper.BindEnv("alert_retries", "ALERT_RETRIES")
		viper.BindEnv("alert_retry_delay", "ALERT_RETRY_DELAY")
		viper.BindEnv("calendar_interval", "CALENDAR_INTERVAL")

		viper.SetDefault("debug", false)
		viper.SetDefault("log_level", "info")
		viper.SetDefault("lang", "en")
		viper.SetDefault("db_path", "data/bot.db")
		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("crypto_provider", "binance")
		viper.SetDefault("http_timeout", 10*time.Second)
		viper.SetDefault("stock_cache_ttl", 600*time.Second)
		viper.SetDefault("crypto_cache_ttl", 120*time.Second)
		viper.SetDefault("alert_interval", 60*time.Second)
		viper.SetDefault("alert_retries", 3)
		viper.SetDefault("alert_retry_delay", 5*time.Second)
		viper.SetDefault("calendar_interval", 150*time.Minute)
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

// GetDuration accepts Go duration strings ("90s", "2m") from the environment.
func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}
