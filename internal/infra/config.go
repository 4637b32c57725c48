package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации всего пайплайна.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Classify  ClassifyConfig  `mapstructure:"classify"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Hub       HubConfig       `mapstructure:"hub"`
	Insight   InsightConfig   `mapstructure:"insight"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера (SSE-стрим и /metrics).
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MetricsPort  int           `mapstructure:"metrics_port"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (межпроцессный relay событий).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MonitorConfig — настройки курсорных опросчиков (инциденты и журнал агентов).
type MonitorConfig struct {
	IncidentInterval time.Duration `mapstructure:"incident_interval"`
	ActivityInterval time.Duration `mapstructure:"activity_interval"`
	PageSize         int           `mapstructure:"page_size"`

	// BackfillOnStart: true — при старте вычитываем всю таблицу с нуля,
	// false — курсор инициализируется текущим максимумом sequence.
	BackfillOnStart bool `mapstructure:"backfill_on_start"`

	// StaleAfterTicks — сколько подряд неудачных тиков терпим,
	// прежде чем поднять признак staleness.
	StaleAfterTicks int `mapstructure:"stale_after_ticks"`

	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// ClassifyConfig — пороги срочности. Не константы: тюнятся под инсталляцию.
type ClassifyConfig struct {
	EmergencyThreshold float64 `mapstructure:"emergency_threshold"`
	AlertThreshold     float64 `mapstructure:"alert_threshold"`
}

// StatsConfig — настройки периодического агрегатора.
type StatsConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	WindowMinutes int           `mapstructure:"window_minutes"`
	QueryTimeout  time.Duration `mapstructure:"query_timeout"`
}

// HubConfig — настройки широковещательной рассылки.
type HubConfig struct {
	ReplaySize   int           `mapstructure:"replay_size"`   // K последних инцидентов для новых подписчиков
	QueueDepth   int           `mapstructure:"queue_depth"`   // Глубина исходящей очереди на подписчика
	SendTimeout  time.Duration `mapstructure:"send_timeout"`  // Таймаут записи в соединение
	RelayEnabled bool          `mapstructure:"relay_enabled"` // Зеркалирование событий через Redis
	RelayChannel string        `mapstructure:"relay_channel"`
}

// InsightConfig — настройки обертки над внешним суммаризатором.
type InsightConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoint    string        `mapstructure:"endpoint"` // Пусто — сразу rule-based fallback
	Interval    time.Duration `mapstructure:"interval"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"` // Запросов в секунду к суммаризатору

	QueryTimeout time.Duration `mapstructure:"query_timeout"` // Дедлайн выборки окна из хранилища
}

// SimulatorConfig — настройки генератора нагрузки (batch-симулятора).
type SimulatorConfig struct {
	DatasetPath string        `mapstructure:"dataset_path"`
	BatchSize   int           `mapstructure:"batch_size"`
	Interval    time.Duration `mapstructure:"interval"`
	Jitter      bool          `mapstructure:"jitter"` // Случайный разброс размера пачки и интервала

	// Policy: "round_robin" — по порядку, "shuffle" — перемешать при загрузке.
	Policy string `mapstructure:"policy"`

	// OnExhausted: "stop" — закончить работу, "loop" — начать датасет заново
	// с переписыванием таймстемпов на текущее время.
	OnExhausted string `mapstructure:"on_exhausted"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: MONITOR_PAGE_SIZE=500 перекроет monitor.page_size
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate отлавливает заведомо нерабочие комбинации до старта пайплайна.
func (c *Config) Validate() error {
	if c.Classify.AlertThreshold > c.Classify.EmergencyThreshold {
		return fmt.Errorf("classify: alert_threshold (%.1f) must not exceed emergency_threshold (%.1f)",
			c.Classify.AlertThreshold, c.Classify.EmergencyThreshold)
	}
	if c.Monitor.PageSize <= 0 {
		return fmt.Errorf("monitor: page_size must be positive, got %d", c.Monitor.PageSize)
	}
	if c.Stats.WindowMinutes <= 0 {
		return fmt.Errorf("stats: window_minutes must be positive, got %d", c.Stats.WindowMinutes)
	}
	switch c.Simulator.OnExhausted {
	case "stop", "loop":
	default:
		return fmt.Errorf("simulator: unknown on_exhausted policy %q", c.Simulator.OnExhausted)
	}
	switch c.Simulator.Policy {
	case "round_robin", "shuffle":
	default:
		return fmt.Errorf("simulator: unknown policy %q", c.Simulator.Policy)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 0) // SSE-стрим живет дольше любого таймаута записи
	v.SetDefault("server.metrics_port", 9090)

	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("monitor.incident_interval", 2*time.Second)
	v.SetDefault("monitor.activity_interval", 3*time.Second)
	v.SetDefault("monitor.page_size", 200)
	v.SetDefault("monitor.backfill_on_start", false)
	v.SetDefault("monitor.stale_after_ticks", 5)
	v.SetDefault("monitor.query_timeout", 5*time.Second)

	v.SetDefault("classify.emergency_threshold", 8.0)
	v.SetDefault("classify.alert_threshold", 6.0)

	v.SetDefault("stats.interval", 30*time.Second)
	v.SetDefault("stats.window_minutes", 60)
	v.SetDefault("stats.query_timeout", 5*time.Second)

	v.SetDefault("hub.replay_size", 50)
	v.SetDefault("hub.queue_depth", 64)
	v.SetDefault("hub.send_timeout", 5*time.Second)
	v.SetDefault("hub.relay_enabled", false)
	v.SetDefault("hub.relay_channel", RedisChanStreamEvents)

	v.SetDefault("insight.enabled", true)
	v.SetDefault("insight.endpoint", "")
	v.SetDefault("insight.interval", 5*time.Minute)
	v.SetDefault("insight.call_timeout", 10*time.Second)
	v.SetDefault("insight.rate_limit", 1.0)
	v.SetDefault("insight.query_timeout", 5*time.Second)

	v.SetDefault("simulator.dataset_path", "historical_incidents.json")
	v.SetDefault("simulator.batch_size", 7)
	v.SetDefault("simulator.interval", 20*time.Second)
	v.SetDefault("simulator.jitter", false)
	v.SetDefault("simulator.policy", "shuffle")
	v.SetDefault("simulator.on_exhausted", "stop")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}
