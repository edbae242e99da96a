// poll.go — периодический опрос статуса сервера.
// На каждом такте выполняется status; по ответу обновляется изображение,
// перезагружается список элементов или всё состояние целиком.
// Сбой status переводит представление в режим "сервер недоступен".
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/udda/multiload-ng/internal/cmdclient"
	"github.com/udda/multiload-ng/internal/domain/model"
)

// MinPollInterval — нижняя граница периода опроса.
const MinPollInterval = 100 * time.Millisecond

// DefaultPollInterval — период опроса по умолчанию.
const DefaultPollInterval = time.Second

// tokenUnavailable — лейбл метрики для такта без ответа status.
const tokenUnavailable = "unavailable"

var pollTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mlc_poll_ticks_total",
	Help: "Количество тактов опроса статуса сервера (по полученному статусу).",
}, []string{"token"})

// View — представление полосы, которым управляет опрос.
type View interface {
	// ShowUnavailable показывает заглушку "сервер недоступен".
	ShowUnavailable()
	// ShowAvailable убирает заглушку.
	ShowAvailable()
	// RefreshImage перезагружает изображение полосы.
	RefreshImage(ctx context.Context)
}

// PollLoop — цикл опроса статуса сервера.
// Не более одного таймера одновременно; SetInterval перезапускает таймер.
type PollLoop struct {
	exec   CommandExecutor
	store  *Store
	gate   *commandGate
	view   View
	logger *slog.Logger

	// afterTick вызывается после успешного такта вне шлюза (обновление подписи)
	afterTick func(ctx context.Context)

	mu       sync.Mutex
	parent   context.Context
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	available atomic.Bool
	lastTick  atomic.Int64
}

// NewPollLoop создаёт цикл опроса с собственным шлюзом.
func NewPollLoop(exec CommandExecutor, store *Store, view View, logger *slog.Logger) *PollLoop {
	return newPollLoop(exec, store, &commandGate{}, view, logger)
}

func newPollLoop(exec CommandExecutor, store *Store, gate *commandGate, view View, logger *slog.Logger) *PollLoop {
	return &PollLoop{
		exec:   exec,
		store:  store,
		gate:   gate,
		view:   view,
		logger: logger.With(slog.String("component", "poll")),
		parent: context.Background(),
	}
}

// Start запускает опрос с периодом interval. Отмена ctx останавливает опрос.
// Первый такт выполняется через interval после запуска.
func (p *PollLoop) Start(ctx context.Context, interval time.Duration) time.Duration {
	p.mu.Lock()
	p.parent = ctx
	p.mu.Unlock()
	return p.SetInterval(interval)
}

// SetInterval задаёт период опроса и перезапускает таймер.
// 0 (и отрицательное значение) останавливает опрос; значения меньше
// MinPollInterval поднимаются до него. Возвращает действующий период.
func (p *PollLoop) SetInterval(d time.Duration) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	if d <= 0 {
		p.interval = 0
		p.logger.Info("Опрос сервера остановлен")
		return 0
	}
	if d < MinPollInterval {
		d = MinPollInterval
	}

	ctx, cancel := context.WithCancel(p.parent)
	done := make(chan struct{})
	p.interval = d
	p.cancel = cancel
	p.done = done

	go p.run(ctx, d, done)

	p.logger.Info("Опрос сервера запущен", slog.Duration("interval", d))
	return d
}

// Stop останавливает опрос и дожидается завершения текущего такта.
func (p *PollLoop) Stop() {
	p.SetInterval(0)
}

// Interval возвращает действующий период опроса (0 — опрос остановлен).
func (p *PollLoop) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Available сообщает, получил ли последний такт ответ status.
func (p *PollLoop) Available() bool {
	return p.available.Load()
}

// LastTick возвращает время последнего такта (нулевое, если тактов не было).
func (p *PollLoop) LastTick() time.Time {
	ns := p.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// stopLocked останавливает горутину опроса. Вызывается под p.mu.
func (p *PollLoop) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
}

// run — горутина таймера. Запрос, начатый тактом, не прерывается остановкой.
func (p *PollLoop) run(ctx context.Context, d time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.Tick(context.WithoutCancel(ctx))
		}
	}
}

// Tick выполняет один такт опроса:
//   - status недоступен — заглушка, больше ничего;
//   - unchanged — обновление изображения;
//   - dirty_data — загрузка data, затем изображение;
//   - reload — полная перезагрузка, затем изображение.
//
// Ошибки загрузок после успешного status не делают сервер недоступным.
func (p *PollLoop) Tick(ctx context.Context) (model.StatusToken, error) {
	p.lastTick.Store(time.Now().UnixNano())

	var token model.StatusToken
	err := p.gate.run(func() error {
		var err error
		token, err = p.status(ctx)
		if err != nil {
			return err
		}

		switch token {
		case model.StatusDirtyData:
			if err := p.store.LoadData(ctx); err != nil {
				p.logger.Warn("Список элементов не обновлён", slog.String("error", err.Error()))
			}
		case model.StatusReload:
			if err := p.store.Reload(ctx); err != nil {
				p.logger.Warn("Перезагрузка состояния неполная", slog.String("error", err.Error()))
			}
		}
		return nil
	})
	if err != nil {
		pollTicksTotal.WithLabelValues(tokenUnavailable).Inc()
		if p.available.Swap(false) {
			p.logger.Warn("Сервер недоступен", slog.String("error", err.Error()))
		}
		p.view.ShowUnavailable()
		return "", err
	}

	pollTicksTotal.WithLabelValues(string(token)).Inc()
	if !p.available.Swap(true) {
		p.logger.Info("Сервер доступен", slog.String("status", string(token)))
	}

	p.view.ShowAvailable()
	p.view.RefreshImage(ctx)

	if p.afterTick != nil {
		p.afterTick(ctx)
	}
	return token, nil
}

// status выполняет команду status и разбирает токен.
// Неизвестный токен считается ошибкой декодирования.
func (p *PollLoop) status(ctx context.Context) (model.StatusToken, error) {
	raw, err := p.exec.Execute(ctx, "status", nil)
	if err != nil {
		return "", fmt.Errorf("команда status: %w", err)
	}
	v, err := cmdclient.DecodeValue(raw)
	if err != nil {
		return "", fmt.Errorf("команда status: %w", err)
	}
	s, err := v.Text()
	if err != nil {
		return "", fmt.Errorf("команда status: %w", err)
	}
	token, err := model.ParseStatusToken(s)
	if err != nil {
		return "", fmt.Errorf("команда status: %w: %w", cmdclient.ErrDecode, err)
	}
	return token, nil
}
