package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config корневая конфигурация дашборда.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Records RecordsConfig `mapstructure:"records"`
	Chart   ChartConfig   `mapstructure:"chart"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

// ServerConfig настройки HTTP-сервера.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// SettleTimeout сколько страница ждет загрузки графика.
	SettleTimeout time.Duration `mapstructure:"settle_timeout"`
}

// Addr host:port для net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RecordsConfig эндпоинт записей и настройки вызовов к нему.
type RecordsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"` // 0 = без таймаута запроса

	RetryAttempts uint    `mapstructure:"retry_attempts"` // 1 = без ретраев
	RateLimit     float64 `mapstructure:"rate_limit"`     // запросов в секунду
	RateBurst     int     `mapstructure:"rate_burst"`

	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBMaxFailures uint32        `mapstructure:"cb_max_failures"`
}

// ChartConfig оформление графика.
type ChartConfig struct {
	Title        string `mapstructure:"title"`
	DefaultLabel string `mapstructure:"default_label"`
	WindowDays   int    `mapstructure:"window_days"`
	Width        int    `mapstructure:"width"`
	Height       int    `mapstructure:"height"`
	MaxCharts    int    `mapstructure:"max_charts"`

	// Palette поле ряда -> hex-цвет.
	Palette map[string]string `mapstructure:"palette"`
}

// Window окно границ по умолчанию.
func (c ChartConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

// RedisConfig при заданном Addr навигация идет между репликами.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Env      string `mapstructure:"env"`
}

// Enabled задан ли адрес Redis.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// LoggerConfig настройки zap.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig собирает дефолты, файл конфига и окружение.
// Без path ищет config.yaml в . и ./configs.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// RECORDS_BASE_URL=... перекрывает records.base_url
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate отсекает настройки, с которыми дашборд не запустится.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Records.BaseURL) == "" {
		return errors.New("config: records.base_url is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	if c.Chart.WindowDays <= 0 {
		return fmt.Errorf("config: invalid chart.window_days %d", c.Chart.WindowDays)
	}
	if c.Chart.MaxCharts < 0 {
		return fmt.Errorf("config: invalid chart.max_charts %d", c.Chart.MaxCharts)
	}
	if c.Records.RetryAttempts == 0 {
		c.Records.RetryAttempts = 1
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.settle_timeout", 20*time.Second)

	v.SetDefault("records.base_url", "http://compass-wpt.herokuapp.com")
	v.SetDefault("records.path", "/charts")
	v.SetDefault("records.timeout", time.Duration(0))
	v.SetDefault("records.retry_attempts", 1)
	v.SetDefault("records.rate_limit", 5.0)
	v.SetDefault("records.rate_burst", 5)
	v.SetDefault("records.cb_max_requests", 3)
	v.SetDefault("records.cb_interval", 5*time.Second)
	v.SetDefault("records.cb_timeout", 30*time.Second)
	v.SetDefault("records.cb_max_failures", 5)

	v.SetDefault("chart.title", "Compass - WebPageTest Stats")
	v.SetDefault("chart.default_label", "")
	v.SetDefault("chart.window_days", 30)
	v.SetDefault("chart.width", 1200)
	v.SetDefault("chart.height", 520)
	v.SetDefault("chart.max_charts", 256)
	v.SetDefault("chart.palette", map[string]string{
		"ttfb":            "#4bc0c0",
		"render":          "#ff6384",
		"speedIndex":      "#ffcd56",
		"domElements":     "#ff9f40",
		"fullyLoadedTime": "#9966ff",
	})

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.env", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}
