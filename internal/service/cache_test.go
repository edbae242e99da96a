package service

import (
	"testing"
	"time"

	"github.com/udda/multiload-ng/internal/domain/model"
)

// TestCaptionCache_GetSet проверяет базовые операции Get/Set.
func TestCaptionCache_GetSet(t *testing.T) {
	cache := NewCaptionCache(16, 5*time.Minute)

	// Cache miss
	if _, ok := cache.Get(0); ok {
		t.Fatal("ожидался cache miss для нового ключа")
	}

	cache.Set(0, model.Caption{Header: "CPU", Body: "12%"})
	got, ok := cache.Get(0)
	if !ok {
		t.Fatal("ожидался cache hit после Set")
	}
	if got.Header != "CPU" || got.Body != "12%" {
		t.Errorf("подпись = %+v, ожидалась CPU/12%%", got)
	}
}

// TestCaptionCache_DeletePurge проверяет инвалидацию записей.
func TestCaptionCache_DeletePurge(t *testing.T) {
	cache := NewCaptionCache(16, 5*time.Minute)

	cache.Set(1, model.Caption{Body: "a"})
	cache.Set(2, model.Caption{Body: "b"})

	cache.Delete(1)
	if _, ok := cache.Get(1); ok {
		t.Fatal("ожидался cache miss после Delete")
	}

	cache.Purge()
	if cache.Len() != 0 {
		t.Errorf("Len() = %d после Purge, ожидался 0", cache.Len())
	}
}

// TestCaptionCache_TTLExpiration проверяет автоматическое истечение TTL.
func TestCaptionCache_TTLExpiration(t *testing.T) {
	// Короткий TTL = 50ms для теста
	cache := NewCaptionCache(16, 50*time.Millisecond)

	cache.Set(3, model.Caption{Body: "x"})
	if _, ok := cache.Get(3); !ok {
		t.Fatal("ожидался cache hit сразу после Set")
	}

	time.Sleep(100 * time.Millisecond)

	if _, ok := cache.Get(3); ok {
		t.Fatal("ожидался cache miss после истечения TTL")
	}
}

// TestCaptionCache_Eviction проверяет вытеснение при превышении maxSize.
func TestCaptionCache_Eviction(t *testing.T) {
	cache := NewCaptionCache(2, 5*time.Minute)

	cache.Set(0, model.Caption{Body: "0"})
	cache.Set(1, model.Caption{Body: "1"})
	cache.Set(2, model.Caption{Body: "2"})

	if _, ok := cache.Get(0); ok {
		t.Error("ожидалось вытеснение самой старой записи")
	}
	if _, ok := cache.Get(2); !ok {
		t.Error("ожидался cache hit для последней записи")
	}
}
