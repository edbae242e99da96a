// Пакет server — HTTP-сервер API клиента Multiload-ng с graceful shutdown.
// Без TLS — API слушает локально, наружу не публикуется.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/udda/multiload-ng/internal/api/errors"
	"github.com/udda/multiload-ng/internal/config"
)

// Handler — обработчики маршрутов HTTP API.
type Handler interface {
	// (GET /health/live)
	HealthLive(w http.ResponseWriter, r *http.Request)
	// (GET /health/ready)
	HealthReady(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	GetMetrics(w http.ResponseWriter, r *http.Request)
	// (GET /api/v1/elements)
	ListElements(w http.ResponseWriter, r *http.Request)
	// (GET /api/v1/elements/{index})
	GetElement(w http.ResponseWriter, r *http.Request, index int)
	// (GET /api/v1/elements/{index}/caption)
	GetElementCaption(w http.ResponseWriter, r *http.Request, index int)
	// (GET /api/v1/graph-types)
	ListGraphTypes(w http.ResponseWriter, r *http.Request)
	// (GET /image.png)
	GetImage(w http.ResponseWriter, r *http.Request)
}

// Server — HTTP-сервер API клиента.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// middlewares — дополнительные middleware (request id, metrics, logging),
// добавляются в порядке переданного среза.
func New(cfg *config.Config, logger *slog.Logger, handler Handler, middlewares ...func(http.Handler) http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(handler, middlewares...),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер со всеми маршрутами API.
func NewRouter(handler Handler, middlewares ...func(http.Handler) http.Handler) chi.Router {
	router := chi.NewRouter()

	for _, mw := range middlewares {
		router.Use(mw)
	}

	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Get("/metrics", handler.GetMetrics)
	router.Get("/image.png", handler.GetImage)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/elements", handler.ListElements)
		r.Get("/elements/{index}", withIndex(handler.GetElement))
		r.Get("/elements/{index}/caption", withIndex(handler.GetElementCaption))
		r.Get("/graph-types", handler.ListGraphTypes)
	})

	return router
}

// withIndex разбирает path-параметр {index} и передаёт его обработчику.
// Некорректный индекс — 400.
func withIndex(fn func(w http.ResponseWriter, r *http.Request, index int)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var index int
		err := runtime.BindStyledParameterWithOptions("simple", "index", chi.URLParam(r, "index"), &index,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
		if err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр index: %s", err))
			return
		}
		if index < 0 {
			apierrors.ValidationError(w, "Параметр index должен быть >= 0")
			return
		}
		fn(w, r, index)
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. После этого выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
