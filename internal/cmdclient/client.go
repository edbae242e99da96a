// Пакет cmdclient — HTTP-клиент командного endpoint сервера Multiload-ng.
// Синхронный запрос/ответ: GET {server}/command/<name>?<параметры>, JSON в ответе.
// Клиент не повторяет запросы: политика повторов — ответственность вызывающего кода.
package cmdclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ошибки транспортного уровня. Любая из них означает "результата нет".
var (
	// ErrTransport — сетевая ошибка (соединение, таймаут, отмена).
	ErrTransport = errors.New("ошибка транспорта")
	// ErrStatus — сервер ответил статусом вне диапазона 2xx.
	ErrStatus = errors.New("неуспешный HTTP-статус")
	// ErrDecode — тело ответа не является ожидаемым JSON.
	ErrDecode = errors.New("некорректный JSON в ответе")
)

// maxResponseBytes — ограничение размера тела ответа.
const maxResponseBytes = 16 << 20

// Prometheus-метрики командного канала.
var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mlc_commands_total",
		Help: "Общее количество команд к серверу Multiload-ng (по команде и результату).",
	}, []string{"command", "outcome"})

	commandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mlc_command_duration_seconds",
		Help:    "Длительность выполнения команд к серверу Multiload-ng.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"command"})

	imageFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mlc_image_fetches_total",
		Help: "Количество загрузок изображения полосы (по результату).",
	}, []string{"outcome"})
)

// Client — HTTP-клиент командного endpoint.
type Client struct {
	httpClient  *http.Client
	serverURL   string
	username    string
	password    string //nolint:gosec // G101: поле структуры, не содержит секрет напрямую
	logCommands bool
	logger      *slog.Logger
}

// New создаёт клиент командного endpoint.
// serverURL — базовый URL сервера (например, http://localhost:19788).
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// timeout — таймаут HTTP-запросов (MLC_COMMAND_TIMEOUT).
// logCommands — диагностическое логирование каждой команды (MLC_LOG_COMMANDS).
func New(
	serverURL string,
	caCertPath string,
	timeout time.Duration,
	logCommands bool,
	logger *slog.Logger,
) (*Client, error) {
	if _, err := url.Parse(serverURL); err != nil {
		return nil, fmt.Errorf("некорректный URL сервера %q: %w", serverURL, err)
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 2,
	}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата сервера: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат сервера добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		serverURL:   strings.TrimRight(serverURL, "/"),
		logCommands: logCommands,
		logger:      logger.With(slog.String("component", "command_client")),
	}, nil
}

// SetBasicAuth включает HTTP basic-аутентификацию (сервер запущен с --basic-auth).
func (c *Client) SetBasicAuth(username, password string) {
	c.username = username
	c.password = password
}

// ServerURL возвращает базовый URL сервера.
func (c *Client) ServerURL() string {
	return c.serverURL
}

// Execute выполняет команду и возвращает сырое JSON-значение ответа.
// Отсутствующие параметры (nil) не передаются.
// Ошибка всегда оборачивает ErrTransport, ErrStatus или ErrDecode.
func (c *Client) Execute(ctx context.Context, name string, params Params) (json.RawMessage, error) {
	start := time.Now()
	query := params.Encode()

	reqURL := c.serverURL + "/command/" + url.PathEscape(name)
	if query != "" {
		reqURL += "?" + query
	}

	body, err := c.get(ctx, reqURL, "application/json")
	if err == nil {
		trimmed := bytes.TrimSpace(body)
		switch {
		case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
			err = fmt.Errorf("%w: пустой результат команды %s", ErrDecode, name)
		case !json.Valid(trimmed):
			err = fmt.Errorf("%w: команда %s", ErrDecode, name)
		default:
			body = trimmed
		}
	}

	duration := time.Since(start)
	outcome := outcomeOf(err)
	commandsTotal.WithLabelValues(name, outcome).Inc()
	commandDuration.WithLabelValues(name).Observe(duration.Seconds())

	if c.logCommands {
		attrs := []slog.Attr{
			slog.String("request_id", uuid.NewString()),
			slog.String("command", name),
			slog.String("query", query),
			slog.String("outcome", outcome),
			slog.Duration("duration", duration),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		} else {
			attrs = append(attrs, slog.String("result", truncate(string(body), 512)))
		}
		c.logger.LogAttrs(ctx, slog.LevelInfo, "Команда выполнена", attrs...)
	}

	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// FetchImage загружает текущее изображение полосы (multiload.png).
// Параметр time защищает от промежуточных кэшей.
func (c *Client) FetchImage(ctx context.Context) ([]byte, error) {
	reqURL := c.serverURL + "/multiload.png?time=" + strconv.FormatInt(time.Now().UnixMilli(), 10)

	img, err := c.get(ctx, reqURL, "image/png")
	imageFetchesTotal.WithLabelValues(outcomeOf(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("загрузка изображения: %w", err)
	}
	return img, nil
}

// CloseIdleConnections освобождает простаивающие соединения.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// get выполняет GET-запрос и возвращает тело ответа.
func (c *Client) get(ctx context.Context, reqURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: создание запроса: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Cache-Control", "no-cache")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("%w: запрос к %s: %w", ErrTransport, c.serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %d: %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: чтение ответа: %w", ErrTransport, err)
	}
	return body, nil
}

// outcomeOf возвращает метку результата для метрик.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStatus):
		return "http_error"
	case errors.Is(err, ErrDecode):
		return "decode_error"
	default:
		return "transport_error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}
