// reorder.go — перестановка элементов перетаскиванием.
//
// Машина состояний: Idle → Begin → Dragging → Preview* → End | Cancel → Idle.
// Во время перетаскивания отображается локальный pendingView; при End
// на сервер уходит одна команда move(start, end). Успех оставляет pendingView
// видимым до следующей загрузки data, отказ — перезагружает список с сервера.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/udda/multiload-ng/internal/domain/model"
)

// Ошибки перестановки.
var (
	ErrDragInProgress  = errors.New("перетаскивание уже выполняется")
	ErrNotDragging     = errors.New("перетаскивание не начато")
	ErrIndexOutOfRange = errors.New("индекс вне диапазона")
	// ErrSnapshotChanged — список элементов был перезагружен во время перетаскивания.
	ErrSnapshotChanged = errors.New("список элементов изменился во время перетаскивания")
)

var reorderRollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mlc_reorder_rollbacks_total",
	Help: "Количество откатов перестановки элементов после отказа сервера.",
})

// DragState — состояние перетаскивания.
type DragState int

const (
	DragIdle DragState = iota
	DragDragging
)

// String возвращает имя состояния.
func (s DragState) String() string {
	switch s {
	case DragIdle:
		return "idle"
	case DragDragging:
		return "dragging"
	default:
		return fmt.Sprintf("DragState(%d)", int(s))
	}
}

// ReorderController — контроллер перестановки.
type ReorderController struct {
	cmds   *Commands
	store  *Store
	gate   *commandGate
	logger *slog.Logger

	mu            sync.Mutex
	state         DragState
	startPosition int
	position      int
	pending       []model.Element
	// pendingGen — поколение снимка, от которого построен pending
	pendingGen uint64
}

// NewReorderController создаёт контроллер перестановки.
// Откат выполняется под тем же шлюзом, что и команды.
func NewReorderController(cmds *Commands, store *Store, logger *slog.Logger) *ReorderController {
	return &ReorderController{
		cmds:   cmds,
		store:  store,
		gate:   cmds.gate,
		logger: logger.With(slog.String("component", "reorder")),
	}
}

// Begin начинает перетаскивание элемента index.
func (r *ReorderController) Begin(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == DragDragging {
		return ErrDragInProgress
	}

	view := r.viewLocked()
	if index < 0 || index >= len(view) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	r.pending = view
	r.pendingGen = r.store.Generation()
	r.state = DragDragging
	r.startPosition = index
	r.position = index
	return nil
}

// Preview переставляет элемент в pendingView на позицию to.
// Сетевых запросов нет.
func (r *ReorderController) Preview(to int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != DragDragging {
		return ErrNotDragging
	}
	if to < 0 || to >= len(r.pending) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, to)
	}

	r.pending = moveElement(r.pending, r.position, to)
	r.position = to
	return nil
}

// End завершает перетаскивание и отправляет move(start, end).
// При start == end запрос не отправляется. При отказе или сбое
// pendingView отбрасывается, список перезагружается с сервера, ошибка возвращается.
func (r *ReorderController) End(ctx context.Context) error {
	r.mu.Lock()
	if r.state != DragDragging {
		r.mu.Unlock()
		return ErrNotDragging
	}
	start, end := r.startPosition, r.position
	gen := r.pendingGen
	r.state = DragIdle
	r.mu.Unlock()

	if start == end {
		return nil
	}

	if r.store.Generation() != gen {
		err := fmt.Errorf("перемещение %d → %d: %w", start, end, ErrSnapshotChanged)
		r.rollback(ctx, err)
		return err
	}

	if err := r.cmds.Move(ctx, start, end); err != nil {
		err = fmt.Errorf("перемещение %d → %d: %w", start, end, err)
		r.rollback(ctx, err)
		return err
	}

	r.logger.Debug("Элемент перемещён", slog.Int("from", start), slog.Int("to", end))
	return nil
}

// Cancel отменяет перетаскивание без запроса к серверу.
func (r *ReorderController) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != DragDragging {
		return
	}
	r.state = DragIdle
	r.pending = nil
}

// rollback отбрасывает pendingView и перезагружает список с сервера.
func (r *ReorderController) rollback(ctx context.Context, cause error) {
	reorderRollbacksTotal.Inc()

	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()

	r.logger.Warn("Перестановка отклонена, список перезагружается",
		slog.String("error", cause.Error()),
	)

	if err := r.gate.run(func() error { return r.store.LoadData(ctx) }); err != nil {
		r.logger.Error("Не удалось перезагрузить список после отката",
			slog.String("error", err.Error()),
		)
	}
}

// View возвращает отображаемый порядок элементов: pendingView, пока он
// актуален для текущего снимка, иначе список хранилища.
func (r *ReorderController) View() []model.Element {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

// viewLocked возвращает копию отображаемого списка. Вызывается под r.mu.
// Во время перетаскивания pendingView показывается всегда: расхождение
// со снимком обнаруживается в End.
func (r *ReorderController) viewLocked() []model.Element {
	if r.pending != nil && (r.state == DragDragging || r.store.Generation() == r.pendingGen) {
		return cloneElements(r.pending)
	}
	r.pending = nil
	return r.store.Elements()
}

// State возвращает текущее состояние.
func (r *ReorderController) State() DragState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Positions возвращает начальную и текущую позиции перетаскиваемого элемента.
func (r *ReorderController) Positions() (start, current int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startPosition, r.position
}

// moveElement переносит элемент с позиции from на позицию to.
func moveElement(list []model.Element, from, to int) []model.Element {
	if from == to {
		return list
	}
	el := list[from]
	list = slices.Delete(list, from, from+1)
	return slices.Insert(list, to, el)
}
