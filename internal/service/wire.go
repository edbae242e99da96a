// wire.go — строгое декодирование ответов сервера в доменные модели.
// Каждая форма ответа описана явной структурой; неизвестные поля,
// отсутствующие обязательные поля и нарушенные инварианты — ошибка декодирования.
package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/udda/multiload-ng/internal/cmdclient"
	"github.com/udda/multiload-ng/internal/domain/model"
)

// wireData — ответ команды data.
type wireData struct {
	Product      string          `json:"product"`
	Version      string          `json:"version"`
	SharedConfig json.RawMessage `json:"shared-config,omitempty"`
	Container    *wireContainer  `json:"container"`
}

// wireContainer — контейнер полосы.
type wireContainer struct {
	Size        int           `json:"size"`
	Padding     int           `json:"padding"`
	Orientation string        `json:"orientation"`
	Elements    []wireElement `json:"elements"`
}

// wireElement — элемент полосы. Сервер передаёт interval на уровне элемента,
// допускается также interval внутри graph.
type wireElement struct {
	Size     *int       `json:"size"`
	Type     string     `json:"type"`
	Interval *int       `json:"interval,omitempty"`
	Graph    *wireGraph `json:"graph,omitempty"`
}

// wireGraph — параметры графика.
type wireGraph struct {
	Type     string            `json:"type"`
	Border   int               `json:"border"`
	Ceiling  int64             `json:"ceiling"`
	Interval *int              `json:"interval,omitempty"`
	Config   map[string]string `json:"config,omitempty"`
	Style    json.RawMessage   `json:"style,omitempty"`
}

// dataSnapshot — результат декодирования ответа data.
type dataSnapshot struct {
	product       string
	serverVersion string
	container     model.ContainerInfo
	elements      []model.Element
}

// decodeData декодирует ответ data и проверяет инварианты каждого элемента.
func decodeData(raw json.RawMessage) (*dataSnapshot, error) {
	var w wireData
	if err := cmdclient.DecodeStrict(raw, &w); err != nil {
		return nil, err
	}
	if w.Container == nil {
		return nil, fmt.Errorf("%w: отсутствует container", cmdclient.ErrDecode)
	}
	if w.Container.Elements == nil {
		return nil, fmt.Errorf("%w: отсутствует container.elements", cmdclient.ErrDecode)
	}

	snap := &dataSnapshot{
		product:       w.Product,
		serverVersion: w.Version,
		container: model.ContainerInfo{
			Size:        w.Container.Size,
			Padding:     w.Container.Padding,
			Orientation: w.Container.Orientation,
		},
		elements: make([]model.Element, 0, len(w.Container.Elements)),
	}

	for i, we := range w.Container.Elements {
		el, err := we.toModel()
		if err != nil {
			return nil, fmt.Errorf("%w: элемент %d: %w", cmdclient.ErrDecode, i, err)
		}
		snap.elements = append(snap.elements, el)
	}

	return snap, nil
}

// toModel преобразует элемент из формы протокола в доменную модель.
func (we wireElement) toModel() (model.Element, error) {
	if we.Size == nil {
		return model.Element{}, fmt.Errorf("отсутствует size")
	}

	el := model.Element{
		Type: model.ElementType(we.Type),
		Size: *we.Size,
	}

	if we.Graph != nil {
		interval := we.Interval
		if interval == nil {
			interval = we.Graph.Interval
		}
		if interval == nil {
			return model.Element{}, fmt.Errorf("у графика отсутствует interval")
		}
		el.Graph = &model.Graph{
			GraphType: we.Graph.Type,
			Border:    we.Graph.Border,
			Ceiling:   we.Graph.Ceiling,
			Interval:  *interval,
			Config:    we.Graph.Config,
		}
	}

	if err := el.Validate(); err != nil {
		return model.Element{}, err
	}
	return el, nil
}

// decodeGraphTypes декодирует каталог типов графиков (name → дескриптор).
func decodeGraphTypes(raw json.RawMessage) (map[string]model.GraphTypeDescriptor, error) {
	var catalog map[string]model.GraphTypeDescriptor
	if err := cmdclient.DecodeStrict(raw, &catalog); err != nil {
		return nil, err
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: каталог типов графиков не является объектом", cmdclient.ErrDecode)
	}

	for key, desc := range catalog {
		if desc.Name == "" {
			desc.Name = key
			catalog[key] = desc
		}
		if desc.Name != key {
			return nil, fmt.Errorf("%w: ключ каталога %q не совпадает с name %q", cmdclient.ErrDecode, key, desc.Name)
		}
	}
	return catalog, nil
}

// decodeLocalization декодирует таблицу локализации.
func decodeLocalization(raw json.RawMessage) (map[string]string, error) {
	var table map[string]string
	if err := cmdclient.DecodeStrict(raw, &table); err != nil {
		return nil, err
	}
	if table == nil {
		return nil, fmt.Errorf("%w: таблица локализации не является объектом", cmdclient.ErrDecode)
	}
	return table, nil
}

// wireCaption — ответ команды caption. Для приостановленного графика
// сервер возвращает только body.
type wireCaption struct {
	Header *string    `json:"header,omitempty"`
	Body   *string    `json:"body"`
	Footer *string    `json:"footer,omitempty"`
	Table  [][]string `json:"table,omitempty"`
}

func decodeCaption(raw json.RawMessage) (model.Caption, error) {
	var w wireCaption
	if err := cmdclient.DecodeStrict(raw, &w); err != nil {
		return model.Caption{}, err
	}
	if w.Body == nil {
		return model.Caption{}, fmt.Errorf("%w: в подписи отсутствует body", cmdclient.ErrDecode)
	}

	c := model.Caption{Body: *w.Body, Table: w.Table}
	if w.Header != nil {
		c.Header = *w.Header
	}
	if w.Footer != nil {
		c.Footer = *w.Footer
	}
	return c, nil
}

// wireHit — ответ команды index-at-coords.
type wireHit struct {
	Index   *int  `json:"index"`
	IsGraph *bool `json:"is_graph"`
}

func decodeHit(raw json.RawMessage) (model.ElementHit, error) {
	var w wireHit
	if err := cmdclient.DecodeStrict(raw, &w); err != nil {
		return model.ElementHit{}, err
	}
	if w.Index == nil || w.IsGraph == nil {
		return model.ElementHit{}, fmt.Errorf("%w: ожидались поля index и is_graph", cmdclient.ErrDecode)
	}
	return model.ElementHit{Index: *w.Index, IsGraph: *w.IsGraph}, nil
}

// wireConfigEntry — описание ключа конфигурации в форме объекта (ключ — имя записи).
type wireConfigEntry struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Min         *int64 `json:"min,omitempty"`
	Max         *int64 `json:"max,omitempty"`
}

// decodeConfigEntries декодирует список ключей конфигурации графика.
// Сервер отдаёт объект {key: {label, ...}}; форма списка [{key, label, ...}]
// тоже принимается. Результат отсортирован по ключу.
func decodeConfigEntries(raw json.RawMessage) ([]model.ConfigEntry, error) {
	trimmed := bytes.TrimSpace(raw)

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []model.ConfigEntry
		if err := cmdclient.DecodeStrict(trimmed, &list); err != nil {
			return nil, err
		}
		for i, e := range list {
			if e.Key == "" {
				return nil, fmt.Errorf("%w: запись конфигурации %d без key", cmdclient.ErrDecode, i)
			}
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
		return list, nil
	}

	var byKey map[string]wireConfigEntry
	if err := cmdclient.DecodeStrict(trimmed, &byKey); err != nil {
		return nil, err
	}

	list := make([]model.ConfigEntry, 0, len(byKey))
	for key, e := range byKey {
		list = append(list, model.ConfigEntry{
			Key:         key,
			Label:       e.Label,
			Description: e.Description,
			Type:        e.Type,
			Min:         e.Min,
			Max:         e.Max,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list, nil
}
