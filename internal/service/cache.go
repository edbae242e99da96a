// cache.go — CaptionCache: LRU-кэш подписей графиков с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable. Ключ — индекс элемента,
// поэтому кэш очищается при каждой замене списка элементов.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/udda/multiload-ng/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	captionCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mlc_caption_cache_hits_total",
		Help: "Общее количество попаданий в кэш подписей графиков.",
	})
	captionCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mlc_caption_cache_misses_total",
		Help: "Общее количество промахов кэша подписей графиков.",
	})
)

// CaptionCache — кэш подписей графиков с автоматическим TTL.
type CaptionCache struct {
	cache *expirable.LRU[int, model.Caption]
}

// NewCaptionCache создаёт кэш с указанным максимальным размером и TTL.
// maxSize — максимальное количество записей (MLC_CAPTION_CACHE_SIZE).
// ttl — время жизни записи после добавления (MLC_CAPTION_CACHE_TTL).
func NewCaptionCache(maxSize int, ttl time.Duration) *CaptionCache {
	cache := expirable.NewLRU[int, model.Caption](maxSize, nil, ttl)
	return &CaptionCache{cache: cache}
}

// Get возвращает подпись элемента index.
// Обновляет Prometheus-метрики hit/miss.
func (c *CaptionCache) Get(index int) (model.Caption, bool) {
	val, ok := c.cache.Get(index)
	if ok {
		captionCacheHitsTotal.Inc()
		return val, true
	}
	captionCacheMissesTotal.Inc()
	return model.Caption{}, false
}

// Set добавляет или обновляет подпись.
func (c *CaptionCache) Set(index int, caption model.Caption) {
	c.cache.Add(index, caption)
}

// Delete удаляет подпись элемента.
func (c *CaptionCache) Delete(index int) {
	c.cache.Remove(index)
}

// Purge очищает кэш.
func (c *CaptionCache) Purge() {
	c.cache.Purge()
}

// Len возвращает количество записей в кэше.
func (c *CaptionCache) Len() int {
	return c.cache.Len()
}
