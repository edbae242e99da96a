// handler.go — основной обработчик HTTP API клиента.
// Объединяет health endpoints и просмотр состояния сессии:
// список элементов, каталог типов, подписи и изображение полосы.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	apierrors "github.com/udda/multiload-ng/internal/api/errors"
	"github.com/udda/multiload-ng/internal/domain/model"
	"github.com/udda/multiload-ng/internal/service"
)

// ImageSource — источник последнего изображения полосы.
type ImageSource interface {
	Image() (img []byte, updatedAt time.Time, ok bool)
}

// APIHandler — основной обработчик HTTP API.
type APIHandler struct {
	health  *HealthHandler
	session *service.Session
	image   ImageSource
	logger  *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// image может быть nil — тогда /image.png всегда отвечает 503.
func NewAPIHandler(
	health *HealthHandler,
	session *service.Session,
	image ImageSource,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:  health,
		session: session,
		image:   image,
		logger:  logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Ответы ---

type containerResponse struct {
	Size        int    `json:"size"`
	Padding     int    `json:"padding"`
	Orientation string `json:"orientation,omitempty"`
}

type graphResponse struct {
	Type     string            `json:"type"`
	Label    string            `json:"label"`
	Border   int               `json:"border"`
	Ceiling  int64             `json:"ceiling"`
	Interval int               `json:"interval"`
	Config   map[string]string `json:"config,omitempty"`
}

type elementResponse struct {
	Index int            `json:"index"`
	Type  string         `json:"type"`
	Size  int            `json:"size"`
	Graph *graphResponse `json:"graph,omitempty"`
}

type elementListResponse struct {
	Product        string            `json:"product,omitempty"`
	Version        string            `json:"version,omitempty"`
	LibraryVersion string            `json:"library_version,omitempty"`
	Generation     uint64            `json:"generation"`
	LoadedAt       *time.Time        `json:"loaded_at,omitempty"`
	PositionsStale bool              `json:"positions_stale"`
	DragState      string            `json:"drag_state"`
	Container      containerResponse `json:"container"`
	Elements       []elementResponse `json:"elements"`
}

type captionResponse struct {
	Index   int           `json:"index"`
	Title   string        `json:"title"`
	Caption model.Caption `json:"caption"`
}

type graphTypeListResponse struct {
	Items []model.GraphTypeDescriptor `json:"items"`
	Total int                         `json:"total"`
}

// --- Элементы ---

// ListElements — текущий список элементов. Во время перетаскивания
// и до подтверждения перестановки отдаётся локальный порядок.
func (h *APIHandler) ListElements(w http.ResponseWriter, _ *http.Request) {
	store := h.session.Store()
	product, version := store.ServerInfo()
	c := store.Container()

	resp := elementListResponse{
		Product:        product,
		Version:        version,
		LibraryVersion: store.LibraryVersion(),
		Generation:     store.Generation(),
		PositionsStale: store.PositionsStale(),
		DragState:      h.session.Reorder().State().String(),
		Container: containerResponse{
			Size:        c.Size,
			Padding:     c.Padding,
			Orientation: c.Orientation,
		},
	}
	if t := store.LoadedAt(); !t.IsZero() {
		utc := t.UTC()
		resp.LoadedAt = &utc
	}

	view := h.session.Reorder().View()
	resp.Elements = make([]elementResponse, 0, len(view))
	for i, el := range view {
		resp.Elements = append(resp.Elements, h.elementToResponse(i, el))
	}

	writeJSON(w, http.StatusOK, resp)
}

// viewElement возвращает элемент index в том порядке, который отдаёт ListElements.
func (h *APIHandler) viewElement(index int) (model.Element, bool) {
	view := h.session.Reorder().View()
	if index < 0 || index >= len(view) {
		return model.Element{}, false
	}
	return view[index], true
}

// GetElement — один элемент по индексу.
func (h *APIHandler) GetElement(w http.ResponseWriter, _ *http.Request, index int) {
	el, ok := h.viewElement(index)
	if !ok {
		apierrors.NotFound(w, "Элемент не найден")
		return
	}
	writeJSON(w, http.StatusOK, h.elementToResponse(index, el))
}

// GetElementCaption — подпись графика. Запрашивается у сервера
// или берётся из кэша подписей.
func (h *APIHandler) GetElementCaption(w http.ResponseWriter, r *http.Request, index int) {
	el, ok := h.viewElement(index)
	if !ok {
		apierrors.NotFound(w, "Элемент не найден")
		return
	}
	if !el.IsGraph() {
		apierrors.ValidationError(w, "Подпись есть только у графиков")
		return
	}

	caption, err := h.session.Tooltip().Caption(r.Context(), index)
	if err != nil {
		h.handleCommandError(w, "caption", err)
		return
	}

	writeJSON(w, http.StatusOK, captionResponse{
		Index:   index,
		Title:   h.session.Store().GraphLabel(el.Graph.GraphType),
		Caption: caption,
	})
}

// --- Каталог ---

// ListGraphTypes — каталог типов графиков, отсортированный по имени.
func (h *APIHandler) ListGraphTypes(w http.ResponseWriter, _ *http.Request) {
	types := h.session.Store().GraphTypes()
	items := make([]model.GraphTypeDescriptor, 0, len(types))
	for _, d := range types {
		items = append(items, d)
	}
	slices.SortFunc(items, func(a, b model.GraphTypeDescriptor) int {
		return strings.Compare(a.Name, b.Name)
	})

	writeJSON(w, http.StatusOK, graphTypeListResponse{Items: items, Total: len(items)})
}

// --- Изображение ---

// GetImage — последнее изображение полосы. 503, пока сервер недоступен.
func (h *APIHandler) GetImage(w http.ResponseWriter, _ *http.Request) {
	if h.image == nil {
		apierrors.ServiceUnavailable(w, "Изображение недоступно")
		return
	}
	img, updatedAt, ok := h.image.Image()
	if !ok {
		apierrors.ServiceUnavailable(w, "Сервер Multiload-ng недоступен")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Last-Modified", updatedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// --- Вспомогательные функции ---

// elementToResponse преобразует доменный элемент в ответ API.
func (h *APIHandler) elementToResponse(index int, el model.Element) elementResponse {
	resp := elementResponse{
		Index: index,
		Type:  string(el.Type),
		Size:  el.Size,
	}
	if el.Graph != nil {
		resp.Graph = &graphResponse{
			Type:     el.Graph.GraphType,
			Label:    h.session.Store().GraphLabel(el.Graph.GraphType),
			Border:   el.Graph.Border,
			Ceiling:  el.Graph.Ceiling,
			Interval: el.Graph.Interval,
			Config:   el.Graph.Config,
		}
	}
	return resp
}

// handleCommandError преобразует ошибку команды сервера в HTTP-ответ.
func (h *APIHandler) handleCommandError(w http.ResponseWriter, command string, err error) {
	switch {
	case service.IsTransportFailure(err):
		h.logger.Warn("Сервер Multiload-ng не ответил",
			slog.String("command", command),
			slog.String("error", err.Error()),
		)
		apierrors.ServiceUnavailable(w, "Сервер Multiload-ng недоступен")
	case errors.Is(err, service.ErrRejected):
		apierrors.BadGateway(w, "Сервер Multiload-ng отклонил запрос")
	default:
		h.logger.Error("Ошибка команды",
			slog.String("command", command),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка")
	}
}
