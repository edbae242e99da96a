// Пакет model — доменные модели клиента Multiload-ng.
// Element — элемент полосы (график или разделитель), GraphTypeDescriptor —
// запись каталога типов графиков, StatusToken — подсказка сервера о том,
// что изменилось с последнего опроса.
package model

import (
	"errors"
	"fmt"
	"maps"
)

// ElementType — тип элемента полосы.
type ElementType string

const (
	// ElementGraph — график.
	ElementGraph ElementType = "graph"
	// ElementSeparator — разделитель.
	ElementSeparator ElementType = "separator"
)

// AppendPosition — позиция создания "в конец полосы".
const AppendPosition = -1

// ErrGeometry — рамка графика не оставляет ни одного пикселя внутренней области.
var ErrGeometry = errors.New("border*2+1 превышает размер элемента")

// Graph — параметры графика (присутствуют только у элементов типа graph).
type Graph struct {
	// GraphType — ключ в каталоге типов графиков (cpu, mem, net, ...)
	GraphType string
	// Border — ширина рамки в пикселях
	Border int
	// Ceiling — потолок шкалы (0 — автомасштаб)
	Ceiling int64
	// Interval — период обновления графика на сервере, мс
	Interval int
	// Config — конфигурация графика (ключ → строковое значение),
	// схема определяется типом графика
	Config map[string]string
}

// Element — один элемент упорядоченной полосы.
// Позиция элемента не хранится: это индекс в срезе.
type Element struct {
	Type ElementType
	Size int
	// Graph — nil для разделителей
	Graph *Graph
}

// IsGraph сообщает, является ли элемент графиком.
func (e Element) IsGraph() bool {
	return e.Type == ElementGraph && e.Graph != nil
}

// Clone возвращает глубокую копию элемента.
func (e Element) Clone() Element {
	out := e
	if e.Graph != nil {
		g := *e.Graph
		if e.Graph.Config != nil {
			g.Config = maps.Clone(e.Graph.Config)
		}
		out.Graph = &g
	}
	return out
}

// Validate проверяет инварианты элемента:
// тип известен, graph присутствует тогда и только тогда, когда type == graph,
// border*2+1 <= size и interval >= минимального интервала.
func (e Element) Validate() error {
	switch e.Type {
	case ElementGraph:
		if e.Graph == nil {
			return fmt.Errorf("элемент graph без параметров графика")
		}
		if e.Graph.GraphType == "" {
			return fmt.Errorf("элемент graph без типа графика")
		}
		if err := ValidateGraphGeometry(e.Size, e.Graph.Border); err != nil {
			return err
		}
		if int64(e.Graph.Interval) < GraphIntervalBounds.Min {
			return fmt.Errorf("интервал %d мс меньше минимального %d мс", e.Graph.Interval, GraphIntervalBounds.Min)
		}
	case ElementSeparator:
		if e.Graph != nil {
			return fmt.Errorf("разделитель не может иметь параметры графика")
		}
	default:
		return fmt.Errorf("неизвестный тип элемента %q", e.Type)
	}
	return nil
}

// ValidateGraphGeometry проверяет, что после рамок у графика остаётся
// хотя бы один пиксель внутренней области.
func ValidateGraphGeometry(size, border int) error {
	if border*2+1 > size {
		return fmt.Errorf("%w: size=%d, border=%d", ErrGeometry, size, border)
	}
	return nil
}

// ContainerInfo — параметры контейнера полосы из ответа data.
type ContainerInfo struct {
	// Size — толщина полосы в пикселях
	Size int
	// Padding — отступ между элементами
	Padding int
	// Orientation — ориентация полосы (horizontal, vertical)
	Orientation string
}
