// tooltip.go — подпись графика под курсором.
// Hover определяет элемент по координатам; на каждом такте опроса
// подпись графика под курсором обновляется.
package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/udda/multiload-ng/internal/domain/model"
)

// TooltipContent — содержимое подписи.
type TooltipContent struct {
	Index int
	// Title — подпись типа графика из каталога (или ключ типа)
	Title   string
	Caption model.Caption
}

// Tooltip — состояние подписи.
type Tooltip struct {
	cmds   *Commands
	store  *Store
	cache  *CaptionCache
	logger *slog.Logger

	mu        sync.Mutex
	mouseOver bool
	hover     model.ElementHit
	content   *TooltipContent
}

// NewTooltip создаёт подпись. cache может быть nil — тогда подпись
// запрашивается у сервера каждый раз.
func NewTooltip(cmds *Commands, store *Store, cache *CaptionCache, logger *slog.Logger) *Tooltip {
	return &Tooltip{
		cmds:   cmds,
		store:  store,
		cache:  cache,
		logger: logger.With(slog.String("component", "tooltip")),
		hover:  model.ElementHit{Index: -1},
	}
}

// Hover определяет элемент под точкой (x, y) изображения и обновляет подпись.
func (t *Tooltip) Hover(ctx context.Context, x, y int) (model.ElementHit, error) {
	hit, err := t.cmds.IndexAtCoords(ctx, x, y)
	if err != nil {
		return model.ElementHit{Index: -1}, err
	}

	t.mu.Lock()
	t.mouseOver = true
	t.hover = hit
	if !hit.IsGraph || hit.Index < 0 {
		t.content = nil
	}
	t.mu.Unlock()

	t.Refresh(ctx)
	return hit, nil
}

// Leave скрывает подпись.
func (t *Tooltip) Leave() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mouseOver = false
	t.hover = model.ElementHit{Index: -1}
	t.content = nil
}

// Refresh обновляет подпись графика под курсором.
// Ошибки не показываются: подпись остаётся прежней.
func (t *Tooltip) Refresh(ctx context.Context) {
	t.mu.Lock()
	over, hit := t.mouseOver, t.hover
	t.mu.Unlock()

	if !over || !hit.IsGraph || hit.Index < 0 {
		return
	}

	el, ok := t.store.Element(hit.Index)
	if !ok || !el.IsGraph() {
		return
	}

	// на такте подпись всегда запрашивается заново: кэш мог устареть
	caption, err := t.fetch(ctx, hit.Index)
	if err != nil {
		t.logger.Debug("Подпись не обновлена",
			slog.Int("index", hit.Index),
			slog.String("error", err.Error()),
		)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// курсор мог уйти за время запроса
	if !t.mouseOver || t.hover.Index != hit.Index {
		return
	}
	t.content = &TooltipContent{
		Index:   hit.Index,
		Title:   t.store.GraphLabel(el.Graph.GraphType),
		Caption: caption,
	}
}

// Caption возвращает подпись графика index, используя кэш.
func (t *Tooltip) Caption(ctx context.Context, index int) (model.Caption, error) {
	if t.cache != nil {
		if c, ok := t.cache.Get(index); ok {
			return c, nil
		}
	}
	return t.fetch(ctx, index)
}

// fetch запрашивает подпись у сервера и обновляет запись кэша.
func (t *Tooltip) fetch(ctx context.Context, index int) (model.Caption, error) {
	c, err := t.cmds.Caption(ctx, index)
	if err != nil {
		return model.Caption{}, err
	}

	if t.cache != nil {
		t.cache.Set(index, c)
	}
	return c, nil
}

// Content возвращает текущее содержимое подписи.
func (t *Tooltip) Content() (TooltipContent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.content == nil {
		return TooltipContent{}, false
	}
	return *t.content, true
}
