package model

import "fmt"

// GraphTypeDescriptor — запись каталога типов графиков.
// Неизменяема после загрузки, ключ — Name.
type GraphTypeDescriptor struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Helptext    string `json:"helptext"`
}

// StatusToken — ответ команды status: что изменилось на сервере.
type StatusToken string

const (
	// StatusUnchanged — изменений нет, обновить только изображение.
	StatusUnchanged StatusToken = "unchanged"
	// StatusDirtyData — изменился список элементов.
	StatusDirtyData StatusToken = "dirty_data"
	// StatusReload — требуется полная перезагрузка (данные, каталог, версия, локализация).
	StatusReload StatusToken = "reload"
)

// ParseStatusToken разбирает значение команды status.
// Сервер отвечает "ready", когда изменений нет; это синоним unchanged.
func ParseStatusToken(s string) (StatusToken, error) {
	switch s {
	case "unchanged", "ready":
		return StatusUnchanged, nil
	case "dirty_data":
		return StatusDirtyData, nil
	case "reload":
		return StatusReload, nil
	default:
		return "", fmt.Errorf("неизвестный статус %q", s)
	}
}

// Caption — подпись (tooltip) графика.
type Caption struct {
	Header string     `json:"header,omitempty"`
	Body   string     `json:"body"`
	Footer string     `json:"footer,omitempty"`
	Table  [][]string `json:"table,omitempty"`
}

// HasTable сообщает, есть ли в подписи непустая таблица.
func (c Caption) HasTable() bool {
	return len(c.Table) > 0 && len(c.Table[0]) > 0 && c.Table[0][0] != ""
}

// ElementHit — результат команды index-at-coords.
type ElementHit struct {
	// Index — индекс элемента под курсором, -1 если элемента нет
	Index   int  `json:"index"`
	IsGraph bool `json:"is_graph"`
}

// ConfigEntry — описание одного ключа конфигурации графика.
type ConfigEntry struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	// Type — код типа значения: i (int32), I (int64), t (tristate), b (bool), s (string), l (string list)
	Type string `json:"type,omitempty"`
	Min  *int64 `json:"min,omitempty"`
	Max  *int64 `json:"max,omitempty"`
}
