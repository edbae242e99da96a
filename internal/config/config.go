// Пакет config — загрузка и валидация конфигурации клиента Multiload-ng
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации клиента.
type Config struct {
	// --- Сервер Multiload-ng ---

	// Базовый URL командного endpoint (http://host:port)
	ServerURL string
	// Имя пользователя basic-аутентификации (пусто — без аутентификации)
	Username string
	// Пароль basic-аутентификации
	Password string //nolint:gosec // G117: поле конфигурации, значение из env
	// Путь к CA-сертификату для https-сервера
	CACertPath string
	// Таймаут одного запроса к серверу
	CommandTimeout time.Duration
	// Диагностическое логирование каждой команды
	LogCommands bool

	// --- Сессия ---

	// Период опроса статуса (0 — опрос выключен)
	PollInterval time.Duration
	// Размер кэша подписей (0 — кэш выключен)
	CaptionCacheSize int
	// Время жизни подписи в кэше
	CaptionCacheTTL time.Duration

	// --- HTTP API ---

	// Порт HTTP API (0 — API выключен)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- Topologymetrics ---

	// Мониторинг сервера через topologymetrics
	DephealthEnabled bool
	// Имя группы в метриках dephealth
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// Имя вершины графа текущего приложения
	ServiceID string
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер Multiload-ng ---

	// MLC_SERVER_URL — URL сервера (по умолчанию http://localhost:19788)
	cfg.ServerURL = strings.TrimRight(getEnvDefault("MLC_SERVER_URL", "http://localhost:19788"), "/")
	if err := validateServerURL(cfg.ServerURL); err != nil {
		return nil, fmt.Errorf("MLC_SERVER_URL: %w", err)
	}

	cfg.Username = os.Getenv("MLC_USERNAME")
	cfg.Password = os.Getenv("MLC_PASSWORD")
	cfg.CACertPath = os.Getenv("MLC_CA_CERT_PATH")

	// MLC_COMMAND_TIMEOUT — таймаут запроса (по умолчанию 10s)
	cfg.CommandTimeout, err = getEnvDuration("MLC_COMMAND_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MLC_COMMAND_TIMEOUT: %w", err)
	}
	if cfg.CommandTimeout <= 0 {
		return nil, fmt.Errorf("MLC_COMMAND_TIMEOUT: значение должно быть > 0")
	}

	// MLC_LOG_COMMANDS — логирование каждой команды (по умолчанию false)
	cfg.LogCommands, err = getEnvBool("MLC_LOG_COMMANDS", false)
	if err != nil {
		return nil, fmt.Errorf("MLC_LOG_COMMANDS: %w", err)
	}

	// --- Сессия ---

	// MLC_POLL_INTERVAL — период опроса (по умолчанию 1s, 0 — выключен)
	cfg.PollInterval, err = getEnvDuration("MLC_POLL_INTERVAL", time.Second)
	if err != nil {
		return nil, fmt.Errorf("MLC_POLL_INTERVAL: %w", err)
	}
	if cfg.PollInterval < 0 {
		return nil, fmt.Errorf("MLC_POLL_INTERVAL: значение должно быть >= 0")
	}

	// MLC_CAPTION_CACHE_SIZE — размер кэша подписей (по умолчанию 64)
	cfg.CaptionCacheSize, err = getEnvInt("MLC_CAPTION_CACHE_SIZE", 64)
	if err != nil {
		return nil, fmt.Errorf("MLC_CAPTION_CACHE_SIZE: %w", err)
	}
	if cfg.CaptionCacheSize < 0 {
		return nil, fmt.Errorf("MLC_CAPTION_CACHE_SIZE: значение должно быть >= 0")
	}

	// MLC_CAPTION_CACHE_TTL — время жизни подписи (по умолчанию 1s)
	cfg.CaptionCacheTTL, err = getEnvDuration("MLC_CAPTION_CACHE_TTL", time.Second)
	if err != nil {
		return nil, fmt.Errorf("MLC_CAPTION_CACHE_TTL: %w", err)
	}
	if cfg.CaptionCacheTTL <= 0 {
		return nil, fmt.Errorf("MLC_CAPTION_CACHE_TTL: значение должно быть > 0")
	}

	// --- HTTP API ---

	// MLC_PORT — порт HTTP API (по умолчанию 8040, 0 — выключен)
	cfg.Port, err = getEnvInt("MLC_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("MLC_PORT: %w", err)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("MLC_PORT: порт %d вне диапазона 0-65535", cfg.Port)
	}

	// MLC_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("MLC_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("MLC_LOG_LEVEL: %w", err)
	}

	// MLC_LOG_FORMAT — формат логов (по умолчанию text)
	cfg.LogFormat = getEnvDefault("MLC_LOG_FORMAT", "text")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MLC_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("MLC_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MLC_HTTP_READ_TIMEOUT: %w", err)
	}

	cfg.HTTPWriteTimeout, err = getEnvDuration("MLC_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MLC_HTTP_WRITE_TIMEOUT: %w", err)
	}

	cfg.HTTPIdleTimeout, err = getEnvDuration("MLC_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MLC_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("MLC_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MLC_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Topologymetrics ---

	cfg.DephealthEnabled, err = getEnvBool("MLC_DEPHEALTH_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("MLC_DEPHEALTH_ENABLED: %w", err)
	}

	cfg.DephealthGroup = getEnvDefault("MLC_DEPHEALTH_GROUP", "multiload")

	cfg.DephealthCheckInterval, err = getEnvDuration("MLC_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MLC_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	if cfg.DephealthCheckInterval <= 0 {
		return nil, fmt.Errorf("MLC_DEPHEALTH_CHECK_INTERVAL: значение должно быть > 0")
	}

	cfg.ServiceID = getEnvDefault("MLC_SERVICE_ID", "multiload-client")

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// validateServerURL проверяет, что URL сервера — абсолютный http(s) URL.
func validateServerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("некорректный URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("недопустимая схема %q, допустимые: http, https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("в URL %q не указан хост", raw)
	}
	return nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
