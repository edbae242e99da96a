// Пакет service — логика клиента Multiload-ng.
// Store — локальная копия состояния сервера: упорядоченный список элементов,
// каталог типов графиков, версия библиотеки и таблица локализации.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/udda/multiload-ng/internal/cmdclient"
	"github.com/udda/multiload-ng/internal/domain/model"
)

// CommandExecutor — выполнение одной команды сервера.
// Реализуется cmdclient.Client; в тестах — подменяется.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, params cmdclient.Params) (json.RawMessage, error)
}

// Виды загрузок хранилища (лейбл метрики).
const (
	loadData           = "data"
	loadGraphTypes     = "graph_types"
	loadLibraryVersion = "library_version"
	loadLocalization   = "localization"
)

var storeLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mlc_store_loads_total",
	Help: "Количество загрузок состояния сервера (по виду загрузки и результату).",
}, []string{"kind", "outcome"})

// Store — хранилище элементов и каталога.
// Список элементов заменяется целиком при успешной загрузке data;
// при неудаче предыдущий снимок сохраняется.
type Store struct {
	exec   CommandExecutor
	logger *slog.Logger

	mu             sync.RWMutex
	elements       []model.Element
	container      model.ContainerInfo
	product        string
	serverVersion  string
	graphTypes     map[string]model.GraphTypeDescriptor
	libraryVersion string
	localization   map[string]string
	// generation увеличивается при каждой замене снимка элементов
	generation uint64
	loadedAt   time.Time
	// positionsStale — сервер подтвердил изменение позиций (create/delete/move),
	// локальные индексы неверны до следующей загрузки data
	positionsStale bool

	replaceHooks []func()
}

// NewStore создаёт пустое хранилище.
func NewStore(exec CommandExecutor, logger *slog.Logger) *Store {
	return &Store{
		exec:   exec,
		logger: logger.With(slog.String("component", "store")),
	}
}

// OnReplace регистрирует функцию, вызываемую после каждой замены снимка элементов.
func (s *Store) OnReplace(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceHooks = append(s.replaceHooks, fn)
}

// Reload выполняет четыре независимые загрузки: data, graph-types,
// library-version и localization. Сбой одной не влияет на остальные.
// Возвращает объединение ошибок всех неудачных загрузок.
func (s *Store) Reload(ctx context.Context) error {
	return errors.Join(
		s.LoadData(ctx),
		s.LoadGraphTypes(ctx),
		s.LoadLibraryVersion(ctx),
		s.LoadLocalization(ctx),
	)
}

// LoadData загружает список элементов и атомарно заменяет снимок.
// Если хотя бы один элемент нарушает инварианты, отклоняется весь ответ.
func (s *Store) LoadData(ctx context.Context) error {
	raw, err := s.exec.Execute(ctx, "data", nil)
	if err != nil {
		return s.loadFailed(loadData, err)
	}
	snap, err := decodeData(raw)
	if err != nil {
		return s.loadFailed(loadData, err)
	}

	s.mu.Lock()
	s.elements = snap.elements
	s.container = snap.container
	s.product = snap.product
	s.serverVersion = snap.serverVersion
	s.generation++
	s.loadedAt = time.Now()
	s.positionsStale = false
	hooks := append([]func(){}, s.replaceHooks...)
	s.mu.Unlock()

	storeLoadsTotal.WithLabelValues(loadData, "ok").Inc()
	s.logger.Debug("Список элементов загружен",
		slog.Int("elements", len(snap.elements)),
		slog.String("product", snap.product),
		slog.String("version", snap.serverVersion),
	)

	for _, fn := range hooks {
		fn()
	}
	return nil
}

// LoadGraphTypes загружает каталог типов графиков.
func (s *Store) LoadGraphTypes(ctx context.Context) error {
	raw, err := s.exec.Execute(ctx, "graph-types", nil)
	if err != nil {
		return s.loadFailed(loadGraphTypes, err)
	}
	catalog, err := decodeGraphTypes(raw)
	if err != nil {
		return s.loadFailed(loadGraphTypes, err)
	}

	s.mu.Lock()
	s.graphTypes = catalog
	s.mu.Unlock()

	storeLoadsTotal.WithLabelValues(loadGraphTypes, "ok").Inc()
	s.logger.Debug("Каталог типов графиков загружен", slog.Int("graph_types", len(catalog)))
	return nil
}

// LoadLibraryVersion загружает строку версии библиотеки сервера.
func (s *Store) LoadLibraryVersion(ctx context.Context) error {
	raw, err := s.exec.Execute(ctx, "library-version", nil)
	if err != nil {
		return s.loadFailed(loadLibraryVersion, err)
	}
	v, err := cmdclient.DecodeValue(raw)
	if err != nil {
		return s.loadFailed(loadLibraryVersion, err)
	}
	version, err := v.Text()
	if err != nil {
		return s.loadFailed(loadLibraryVersion, err)
	}

	s.mu.Lock()
	s.libraryVersion = version
	s.mu.Unlock()

	storeLoadsTotal.WithLabelValues(loadLibraryVersion, "ok").Inc()
	return nil
}

// LoadLocalization загружает таблицу локализации.
func (s *Store) LoadLocalization(ctx context.Context) error {
	raw, err := s.exec.Execute(ctx, "localization", nil)
	if err != nil {
		return s.loadFailed(loadLocalization, err)
	}
	table, err := decodeLocalization(raw)
	if err != nil {
		return s.loadFailed(loadLocalization, err)
	}

	s.mu.Lock()
	s.localization = table
	s.mu.Unlock()

	storeLoadsTotal.WithLabelValues(loadLocalization, "ok").Inc()
	return nil
}

// loadFailed фиксирует неудачную загрузку: метрика, лог, обёрнутая ошибка.
func (s *Store) loadFailed(kind string, err error) error {
	storeLoadsTotal.WithLabelValues(kind, "error").Inc()
	s.logger.Warn("Ошибка загрузки состояния сервера",
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("загрузка %s: %w", kind, err)
}

// Elements возвращает копию текущего списка элементов.
func (s *Store) Elements() []model.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneElements(s.elements)
}

// Element возвращает копию элемента по индексу.
func (s *Store) Element(index int) (model.Element, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.elements) {
		return model.Element{}, false
	}
	return s.elements[index].Clone(), true
}

// Len возвращает количество элементов.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.elements)
}

// Generation возвращает номер текущего снимка элементов.
// 0 — данные ещё не загружались.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// LoadedAt возвращает время последней успешной загрузки data.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// PositionsStale сообщает, что позиции элементов изменены на сервере
// и локальный список ждёт перезагрузки.
func (s *Store) PositionsStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positionsStale
}

// Container возвращает параметры контейнера полосы.
func (s *Store) Container() model.ContainerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.container
}

// ServerInfo возвращает имя продукта и версию сервера из последнего ответа data.
func (s *Store) ServerInfo() (product, version string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.product, s.serverVersion
}

// GraphTypes возвращает копию каталога типов графиков.
func (s *Store) GraphTypes() map[string]model.GraphTypeDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.GraphTypeDescriptor, len(s.graphTypes))
	for k, v := range s.graphTypes {
		out[k] = v
	}
	return out
}

// GraphTypesLoaded сообщает, загружен ли каталог.
func (s *Store) GraphTypesLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graphTypes != nil
}

// GraphType возвращает дескриптор типа графика.
func (s *Store) GraphType(name string) (model.GraphTypeDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.graphTypes[name]
	return d, ok
}

// GraphLabel возвращает подпись типа графика; для неизвестного типа — сам ключ.
func (s *Store) GraphLabel(name string) string {
	if d, ok := s.GraphType(name); ok && d.Label != "" {
		return d.Label
	}
	return name
}

// LibraryVersion возвращает версию библиотеки сервера.
func (s *Store) LibraryVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.libraryVersion
}

// Localize переводит строку по таблице локализации.
// Отсутствующий ключ возвращается как есть.
func (s *Store) Localize(text string) string {
	s.mu.RLock()
	tr, ok := s.localization[text]
	loaded := s.localization != nil
	s.mu.RUnlock()

	if ok {
		return tr
	}
	if loaded {
		s.logger.Debug("Нет перевода", slog.String("text", text))
	}
	return text
}

// markPositionsStale отмечает, что позиции элементов изменены на сервере.
func (s *Store) markPositionsStale() {
	s.mu.Lock()
	s.positionsStale = true
	s.mu.Unlock()
}

// patchElement применяет подтверждённое сервером изменение поля элемента.
// Изменение не применяется, если позиции устарели, индекс вне диапазона,
// fn отказалась от изменения или результат нарушает инварианты элемента.
func (s *Store) patchElement(index int, fn func(el *model.Element) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.positionsStale || index < 0 || index >= len(s.elements) {
		return false
	}

	el := s.elements[index].Clone()
	if !fn(&el) {
		return false
	}
	if err := el.Validate(); err != nil {
		s.logger.Warn("Изменение элемента нарушает инварианты, ожидается перезагрузка",
			slog.Int("index", index),
			slog.String("error", err.Error()),
		)
		return false
	}

	s.elements[index] = el
	return true
}

// cloneElements возвращает глубокую копию списка.
func cloneElements(in []model.Element) []model.Element {
	out := make([]model.Element, len(in))
	for i, el := range in {
		out[i] = el.Clone()
	}
	return out
}
