// main.go — точка входа клиента Multiload-ng.
// run — сессия с опросом сервера, HTTP API и мониторингом зависимостей;
// остальные команды выполняют одну операцию и завершаются.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/udda/multiload-ng/internal/api/handlers"
	"github.com/udda/multiload-ng/internal/api/middleware"
	"github.com/udda/multiload-ng/internal/cmdclient"
	"github.com/udda/multiload-ng/internal/config"
	"github.com/udda/multiload-ng/internal/server"
	"github.com/udda/multiload-ng/internal/service"
)

const usage = `Multiload-ng client.

The server is configured with MLC_* environment variables
(MLC_SERVER_URL, MLC_USERNAME, MLC_PASSWORD, ...).

Usage:
    multiload-client run
    multiload-client list
    multiload-client create graph <graph-type> [--size=<n>] [--border=<n>] [--interval=<ms>] [--position=<n>]
    multiload-client create separator [--size=<n>] [--position=<n>]
    multiload-client delete <index>
    multiload-client move <from> <to>
    multiload-client (pause | resume) <index>
    multiload-client set (size | border | ceiling | interval) <index> <value>
    multiload-client config <index> [<key> [<value>]]
    multiload-client (save | reload | has-file)
    multiload-client -h | --help
    multiload-client --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --size=<n>         Element size in pixels [default: 40].
    --border=<n>       Graph border in pixels [default: 2].
    --interval=<ms>    Graph update interval in milliseconds [default: 800].
    --position=<n>     Insert position, -1 appends [default: -1].`

// Коды завершения.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], config.Version)
	if err != nil {
		log.Fatalf("Ошибка разбора аргументов: %v", err)
	}

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)

	// 3. Командный клиент сервера Multiload-ng
	client, err := cmdclient.New(cfg.ServerURL, cfg.CACertPath, cfg.CommandTimeout, cfg.LogCommands, logger)
	if err != nil {
		log.Fatalf("Ошибка создания клиента: %v", err)
	}
	if cfg.Username != "" {
		client.SetBasicAuth(cfg.Username, cfg.Password)
	}

	if run, _ := opts.Bool("run"); run {
		os.Exit(runSession(cfg, client, logger))
	}
	os.Exit(runOnce(opts, client, logger))
}

// runSession запускает долгоживущую сессию: опрос сервера, HTTP API
// и мониторинг зависимостей. Завершается по SIGINT/SIGTERM.
func runSession(cfg *config.Config, client *cmdclient.Client, logger *slog.Logger) int {
	logger.Info("Клиент Multiload-ng запускается",
		slog.String("version", config.Version),
		slog.String("server_url", cfg.ServerURL),
		slog.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Сессия: начальная загрузка и опрос
	view := service.NewImageView(client, logger)
	sess := service.NewSession(client, view, service.SessionOptions{
		PollInterval:     cfg.PollInterval,
		CaptionCacheSize: cfg.CaptionCacheSize,
		CaptionCacheTTL:  cfg.CaptionCacheTTL,
	}, logger)
	// ошибка начальной загрузки уже залогирована, опрос восстановит состояние
	_ = sess.Start(ctx)
	defer sess.Close()

	// 2. Topologymetrics (dephealth)
	var deps handlers.DependencyHealth
	if cfg.DephealthEnabled {
		dephealthSvc, err := service.NewDephealthService(
			cfg.ServiceID,
			cfg.DephealthGroup,
			cfg.ServerURL,
			cfg.Username,
			cfg.Password,
			cfg.DephealthCheckInterval,
			logger,
		)
		if err != nil {
			logger.Warn("Не удалось создать dephealth сервис, мониторинг отключён",
				slog.String("error", err.Error()),
			)
		} else if err := dephealthSvc.Start(ctx); err != nil {
			logger.Warn("Не удалось запустить dephealth",
				slog.String("error", err.Error()),
			)
		} else {
			defer dephealthSvc.Stop()
			deps = dephealthSvc
		}
	}

	// 3. HTTP API (MLC_PORT=0 — без API, ждём сигнала)
	if cfg.Port == 0 {
		<-ctx.Done()
		logger.Info("Клиент Multiload-ng остановлен")
		return exitOK
	}

	healthHandler := handlers.NewHealthHandler(sess, deps)
	apiHandler := handlers.NewAPIHandler(healthHandler, sess, view, logger)
	srv := server.New(cfg, logger, apiHandler,
		chimw.RequestID,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	// 4. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		return exitFailure
	}

	logger.Info("Клиент Multiload-ng остановлен")
	return exitOK
}

// fail печатает ошибку команды и возвращает код завершения.
func fail(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return exitFailure
}
