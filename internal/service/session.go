// session.go — Session: жизненный цикл клиента.
// Создание → Start (полная загрузка, затем таймер опроса) → Close
// (остановка таймера, ожидание текущего такта, закрытие соединений).
// Команды, такт опроса и откат перестановки проходят через один шлюз.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SessionOptions — параметры сессии.
type SessionOptions struct {
	// PollInterval — период опроса (0 — опрос выключен)
	PollInterval time.Duration
	// CaptionCacheSize — размер кэша подписей (0 — кэш выключен)
	CaptionCacheSize int
	// CaptionCacheTTL — время жизни подписи в кэше
	CaptionCacheTTL time.Duration
}

// idleCloser — транспорт, умеющий закрывать простаивающие соединения.
type idleCloser interface {
	CloseIdleConnections()
}

// Session — сессия клиента одного сервера Multiload-ng.
type Session struct {
	id     string
	opts   SessionOptions
	exec   CommandExecutor
	logger *slog.Logger

	gate     *commandGate
	store    *Store
	commands *Commands
	reorder  *ReorderController
	poll     *PollLoop
	tooltip  *Tooltip
	captions *CaptionCache
}

// NewSession собирает компоненты сессии.
// view получает переключения доступности и обновления изображения.
func NewSession(exec CommandExecutor, view View, opts SessionOptions, logger *slog.Logger) *Session {
	id := uuid.NewString()
	logger = logger.With(slog.String("session_id", id))

	gate := &commandGate{}
	store := NewStore(exec, logger)
	commands := newCommands(exec, store, gate, logger)

	var captions *CaptionCache
	if opts.CaptionCacheSize > 0 {
		captions = NewCaptionCache(opts.CaptionCacheSize, opts.CaptionCacheTTL)
		// индексы подписей теряют смысл после замены списка
		store.OnReplace(captions.Purge)
		commands.graphChanged = captions.Delete
		commands.indexesChanged = captions.Purge
	}

	tooltip := NewTooltip(commands, store, captions, logger)
	poll := newPollLoop(exec, store, gate, view, logger)
	poll.afterTick = tooltip.Refresh

	return &Session{
		id:       id,
		opts:     opts,
		exec:     exec,
		logger:   logger.With(slog.String("component", "session")),
		gate:     gate,
		store:    store,
		commands: commands,
		reorder:  NewReorderController(commands, store, logger),
		poll:     poll,
		tooltip:  tooltip,
		captions: captions,
	}
}

// Start выполняет полную загрузку и запускает опрос.
// Ошибка загрузки не прерывает запуск: опрос восстановит состояние,
// когда сервер станет доступен.
func (s *Session) Start(ctx context.Context) error {
	err := s.Reload(ctx)
	if err != nil {
		s.logger.Warn("Начальная загрузка неполная", slog.String("error", err.Error()))
	}

	interval := s.poll.Start(ctx, s.opts.PollInterval)
	s.logger.Info("Сессия запущена",
		slog.Int("elements", s.store.Len()),
		slog.Duration("poll_interval", interval),
	)
	return err
}

// Reload выполняет полную загрузку состояния сервера под шлюзом.
func (s *Session) Reload(ctx context.Context) error {
	return s.gate.run(func() error {
		return s.store.Reload(ctx)
	})
}

// Close останавливает опрос, дожидается текущего такта и закрывает
// простаивающие соединения.
func (s *Session) Close() {
	s.poll.Stop()
	if c, ok := s.exec.(idleCloser); ok {
		c.CloseIdleConnections()
	}
	s.logger.Info("Сессия закрыта")
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() string { return s.id }

// Store возвращает хранилище элементов.
func (s *Session) Store() *Store { return s.store }

// Commands возвращает команды сервера.
func (s *Session) Commands() *Commands { return s.commands }

// Reorder возвращает контроллер перестановки.
func (s *Session) Reorder() *ReorderController { return s.reorder }

// Poll возвращает цикл опроса.
func (s *Session) Poll() *PollLoop { return s.poll }

// Tooltip возвращает подпись под курсором.
func (s *Session) Tooltip() *Tooltip { return s.tooltip }

// CheckReady возвращает готовность сессии для readiness probe:
// "ok" — последний опрос статуса успешен и каталог типов загружен,
// иначе "fail" с причиной. При выключенном опросе вместо статуса
// проверяется, что список элементов загружен.
func (s *Session) CheckReady() (status, message string) {
	if s.poll.Interval() == 0 {
		if s.store.LoadedAt().IsZero() {
			return "fail", "список элементов не загружен"
		}
	} else if !s.poll.Available() {
		return "fail", "сервер Multiload-ng недоступен"
	}
	if !s.store.GraphTypesLoaded() {
		return "fail", "каталог типов графиков не загружен"
	}
	return "ok", ""
}
