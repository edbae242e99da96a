// commands.go — типизированные команды сервера поверх командного канала.
// Команды изменения позиций (create, delete, move) не трогают локальный список:
// при успехе хранилище помечается устаревшим и ждёт загрузки data.
// Команды изменения полей применяют подтверждённое значение локально.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/udda/multiload-ng/internal/cmdclient"
	"github.com/udda/multiload-ng/internal/domain/model"
)

// ErrRejected — сервер обработал команду и отказал (value false или отрицательное число).
var ErrRejected = errors.New("сервер отклонил команду")

// IsTransportFailure сообщает, что результата команды нет:
// сетевая ошибка, статус не 2xx или некорректный ответ.
func IsTransportFailure(err error) bool {
	return errors.Is(err, cmdclient.ErrTransport) ||
		errors.Is(err, cmdclient.ErrStatus) ||
		errors.Is(err, cmdclient.ErrDecode)
}

// commandGate сериализует логические операции сессии:
// пользовательские команды и такт опроса не выполняются одновременно.
type commandGate struct {
	mu sync.Mutex
}

func (g *commandGate) run(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}

// CreateRequest — параметры создания элемента.
type CreateRequest struct {
	Type model.ElementType
	Size int
	// GraphType, Border, Interval — только для графиков
	GraphType string
	Border    int
	Interval  int
	// Position — позиция вставки, model.AppendPosition — в конец
	Position int
}

// Commands — операции над элементами сервера.
type Commands struct {
	exec   CommandExecutor
	store  *Store
	gate   *commandGate
	logger *slog.Logger

	// graphChanged вызывается после подтверждённого изменения графика,
	// влияющего на его подпись
	graphChanged func(index int)
	// indexesChanged вызывается после подтверждённого изменения позиций
	indexesChanged func()
}

// NewCommands создаёт набор команд с собственным шлюзом.
func NewCommands(exec CommandExecutor, store *Store, logger *slog.Logger) *Commands {
	return newCommands(exec, store, &commandGate{}, logger)
}

func newCommands(exec CommandExecutor, store *Store, gate *commandGate, logger *slog.Logger) *Commands {
	return &Commands{
		exec:   exec,
		store:  store,
		gate:   gate,
		logger: logger.With(slog.String("component", "commands")),
	}
}

// call выполняет команду и разбирает конверт value.
func (c *Commands) call(ctx context.Context, name string, params cmdclient.Params) (cmdclient.Value, error) {
	raw, err := c.exec.Execute(ctx, name, params)
	if err != nil {
		return cmdclient.Value{}, fmt.Errorf("команда %s: %w", name, err)
	}
	v, err := cmdclient.DecodeValue(raw)
	if err != nil {
		return cmdclient.Value{}, fmt.Errorf("команда %s: %w", name, err)
	}
	return v, nil
}

// callOK выполняет команду, результат которой — только признак успеха.
func (c *Commands) callOK(ctx context.Context, name string, params cmdclient.Params) error {
	v, err := c.call(ctx, name, params)
	if err != nil {
		return err
	}
	ok, err := v.Succeeded()
	if err != nil {
		return fmt.Errorf("команда %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("команда %s: %w", name, ErrRejected)
	}
	return nil
}

// Create создаёт элемент и возвращает его индекс.
// Для разделителя параметры графика не передаются.
func (c *Commands) Create(ctx context.Context, req CreateRequest) (int, error) {
	params := cmdclient.Params{
		"type":     string(req.Type),
		"size":     req.Size,
		"position": req.Position,
	}
	if req.Type == model.ElementGraph {
		params["graph-type"] = req.GraphType
		params["border"] = req.Border
		params["interval"] = req.Interval
	}

	var index int
	err := c.gate.run(func() error {
		v, err := c.call(ctx, "create", params)
		if err != nil {
			return err
		}
		if v.Kind() == cmdclient.KindBool {
			if ok, _ := v.Bool(); !ok {
				return fmt.Errorf("команда create: %w", ErrRejected)
			}
			return fmt.Errorf("команда create: %w: ожидался индекс, получено true", cmdclient.ErrDecode)
		}
		n, err := v.Int()
		if err != nil {
			return fmt.Errorf("команда create: %w", err)
		}
		if n < 0 {
			return fmt.Errorf("команда create: %w", ErrRejected)
		}
		index = int(n)
		c.positionsMoved()
		return nil
	})
	if err != nil {
		return -1, err
	}

	c.logger.Info("Элемент создан",
		slog.String("type", string(req.Type)),
		slog.Int("index", index),
	)
	return index, nil
}

// CreateGraph создаёт график.
func (c *Commands) CreateGraph(ctx context.Context, graphType string, size, border, interval, position int) (int, error) {
	return c.Create(ctx, CreateRequest{
		Type:      model.ElementGraph,
		Size:      size,
		GraphType: graphType,
		Border:    border,
		Interval:  interval,
		Position:  position,
	})
}

// CreateSeparator создаёт разделитель.
func (c *Commands) CreateSeparator(ctx context.Context, size, position int) (int, error) {
	return c.Create(ctx, CreateRequest{
		Type:     model.ElementSeparator,
		Size:     size,
		Position: position,
	})
}

// Delete удаляет элемент.
func (c *Commands) Delete(ctx context.Context, index int) error {
	return c.gate.run(func() error {
		if err := c.callOK(ctx, "delete", cmdclient.Params{"index": index}); err != nil {
			return err
		}
		c.positionsMoved()
		return nil
	})
}

// Move перемещает элемент с позиции from на позицию to.
// При from == to запрос не отправляется.
func (c *Commands) Move(ctx context.Context, from, to int) error {
	if from == to {
		return nil
	}
	return c.gate.run(func() error {
		if err := c.callOK(ctx, "move", cmdclient.Params{"from": from, "to": to}); err != nil {
			return err
		}
		c.positionsMoved()
		return nil
	})
}

// positionsMoved отмечает хранилище устаревшим после create, delete, move или reload.
func (c *Commands) positionsMoved() {
	c.store.markPositionsStale()
	if c.indexesChanged != nil {
		c.indexesChanged()
	}
}

func (c *Commands) notifyGraphChanged(index int) {
	if c.graphChanged != nil {
		c.graphChanged(index)
	}
}

// Pause приостанавливает обновление графика.
func (c *Commands) Pause(ctx context.Context, index int) error {
	return c.gate.run(func() error {
		if err := c.callOK(ctx, "pause", cmdclient.Params{"index": index}); err != nil {
			return err
		}
		c.notifyGraphChanged(index)
		return nil
	})
}

// Resume возобновляет обновление графика.
func (c *Commands) Resume(ctx context.Context, index int) error {
	return c.gate.run(func() error {
		if err := c.callOK(ctx, "resume", cmdclient.Params{"index": index}); err != nil {
			return err
		}
		c.notifyGraphChanged(index)
		return nil
	})
}

// setField выполняет команду set-* и возвращает принятое значение.
// true — принято запрошенное значение; число >= 0 — принятое значение
// (сервер мог его скорректировать); false или отрицательное число — отказ.
// Принятое значение применяется к локальному элементу через apply.
func (c *Commands) setField(
	ctx context.Context,
	name string,
	index int,
	requested int64,
	apply func(el *model.Element, v int64) bool,
) (int64, error) {
	var accepted int64
	err := c.gate.run(func() error {
		v, err := c.call(ctx, name, cmdclient.Params{"index": index, "value": requested})
		if err != nil {
			return err
		}

		switch v.Kind() {
		case cmdclient.KindBool:
			ok, _ := v.Bool()
			if !ok {
				return fmt.Errorf("команда %s: %w", name, ErrRejected)
			}
			accepted = requested
		case cmdclient.KindNumber:
			n, err := v.Int()
			if err != nil {
				return fmt.Errorf("команда %s: %w", name, err)
			}
			if n < 0 {
				return fmt.Errorf("команда %s: %w", name, ErrRejected)
			}
			accepted = n
		default:
			return fmt.Errorf("команда %s: %w: value %s", name, cmdclient.ErrDecode, v.Raw())
		}

		c.store.patchElement(index, func(el *model.Element) bool {
			return apply(el, accepted)
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return accepted, nil
}

// SetElementSize задаёт размер элемента.
func (c *Commands) SetElementSize(ctx context.Context, index, size int) (int, error) {
	v, err := c.setField(ctx, "set-element-size", index, int64(size), func(el *model.Element, v int64) bool {
		el.Size = int(v)
		return true
	})
	return int(v), err
}

// SetGraphBorder задаёт ширину рамки графика.
func (c *Commands) SetGraphBorder(ctx context.Context, index, border int) (int, error) {
	v, err := c.setField(ctx, "set-graph-border", index, int64(border), func(el *model.Element, v int64) bool {
		if el.Graph == nil {
			return false
		}
		el.Graph.Border = int(v)
		return true
	})
	return int(v), err
}

// SetGraphCeiling задаёт потолок шкалы графика (0 — автомасштаб).
func (c *Commands) SetGraphCeiling(ctx context.Context, index int, ceiling int64) (int64, error) {
	return c.setField(ctx, "set-graph-ceiling", index, ceiling, func(el *model.Element, v int64) bool {
		if el.Graph == nil {
			return false
		}
		el.Graph.Ceiling = v
		return true
	})
}

// SetGraphInterval задаёт период обновления графика, мс.
func (c *Commands) SetGraphInterval(ctx context.Context, index, interval int) (int, error) {
	v, err := c.setField(ctx, "set-graph-interval", index, int64(interval), func(el *model.Element, v int64) bool {
		if el.Graph == nil {
			return false
		}
		el.Graph.Interval = int(v)
		return true
	})
	return int(v), err
}

// ConfigEntries возвращает описание ключей конфигурации графика.
func (c *Commands) ConfigEntries(ctx context.Context, index int) ([]model.ConfigEntry, error) {
	var entries []model.ConfigEntry
	err := c.gate.run(func() error {
		raw, err := c.exec.Execute(ctx, "config-entries", cmdclient.Params{"index": index})
		if err != nil {
			return fmt.Errorf("команда config-entries: %w", err)
		}
		entries, err = decodeConfigEntries(raw)
		if err != nil {
			return fmt.Errorf("команда config-entries: %w", err)
		}
		return nil
	})
	return entries, err
}

// GraphConfig возвращает значение ключа конфигурации графика.
func (c *Commands) GraphConfig(ctx context.Context, index int, key string) (string, error) {
	var value string
	err := c.gate.run(func() error {
		v, err := c.call(ctx, "get-config", cmdclient.Params{"index": index, "key": key})
		if err != nil {
			return err
		}
		value, err = v.Text()
		if err != nil {
			return fmt.Errorf("команда get-config: %w", err)
		}
		return nil
	})
	return value, err
}

// SetGraphConfig задаёт значение ключа конфигурации графика.
func (c *Commands) SetGraphConfig(ctx context.Context, index int, key, value string) error {
	return c.gate.run(func() error {
		if err := c.callOK(ctx, "set-config", cmdclient.Params{"index": index, "key": key, "value": value}); err != nil {
			return err
		}
		c.store.patchElement(index, func(el *model.Element) bool {
			if el.Graph == nil {
				return false
			}
			if el.Graph.Config == nil {
				el.Graph.Config = make(map[string]string)
			}
			el.Graph.Config[key] = value
			return true
		})
		c.notifyGraphChanged(index)
		return nil
	})
}

// Caption возвращает подпись графика.
func (c *Commands) Caption(ctx context.Context, index int) (model.Caption, error) {
	var caption model.Caption
	err := c.gate.run(func() error {
		raw, err := c.exec.Execute(ctx, "caption", cmdclient.Params{"index": index})
		if err != nil {
			return fmt.Errorf("команда caption: %w", err)
		}
		caption, err = decodeCaption(raw)
		if err != nil {
			return fmt.Errorf("команда caption: %w", err)
		}
		return nil
	})
	return caption, err
}

// IndexAtCoords возвращает элемент под точкой изображения.
func (c *Commands) IndexAtCoords(ctx context.Context, x, y int) (model.ElementHit, error) {
	var hit model.ElementHit
	err := c.gate.run(func() error {
		raw, err := c.exec.Execute(ctx, "index-at-coords", cmdclient.Params{"x": x, "y": y})
		if err != nil {
			return fmt.Errorf("команда index-at-coords: %w", err)
		}
		hit, err = decodeHit(raw)
		if err != nil {
			return fmt.Errorf("команда index-at-coords: %w", err)
		}
		return nil
	})
	return hit, err
}

// HasFile сообщает, есть ли у сервера файл сохранённой конфигурации.
func (c *Commands) HasFile(ctx context.Context) (bool, error) {
	var has bool
	err := c.gate.run(func() error {
		v, err := c.call(ctx, "has-file", nil)
		if err != nil {
			return err
		}
		has, err = v.Bool()
		if err != nil {
			return fmt.Errorf("команда has-file: %w", err)
		}
		return nil
	})
	return has, err
}

// Save сохраняет текущую конфигурацию сервера в файл.
func (c *Commands) Save(ctx context.Context) error {
	return c.gate.run(func() error {
		return c.callOK(ctx, "save", nil)
	})
}

// ReloadFromFile перечитывает конфигурацию сервера из файла.
// Список элементов на сервере заменяется, локальные позиции устаревают.
func (c *Commands) ReloadFromFile(ctx context.Context) error {
	return c.gate.run(func() error {
		if err := c.callOK(ctx, "reload", nil); err != nil {
			return err
		}
		c.positionsMoved()
		return nil
	})
}
