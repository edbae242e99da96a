// image.go — ImageView: последнее изображение полосы и признак доступности сервера.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ImageFetcher — загрузка изображения полосы.
type ImageFetcher interface {
	FetchImage(ctx context.Context) ([]byte, error)
}

// ImageView — представление полосы для HTTP API и CLI.
// Реализует View.
type ImageView struct {
	fetcher ImageFetcher
	logger  *slog.Logger

	mu        sync.RWMutex
	available bool
	image     []byte
	updatedAt time.Time
}

// NewImageView создаёт представление. До первого успешного такта
// сервер считается недоступным.
func NewImageView(fetcher ImageFetcher, logger *slog.Logger) *ImageView {
	return &ImageView{
		fetcher: fetcher,
		logger:  logger.With(slog.String("component", "image")),
	}
}

// ShowUnavailable показывает заглушку: изображение не отдаётся.
func (v *ImageView) ShowUnavailable() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.available = false
}

// ShowAvailable убирает заглушку.
func (v *ImageView) ShowAvailable() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.available = true
}

// RefreshImage загружает свежее изображение. При ошибке остаётся прежнее.
func (v *ImageView) RefreshImage(ctx context.Context) {
	img, err := v.fetcher.FetchImage(ctx)
	if err != nil {
		v.logger.Debug("Изображение не обновлено", slog.String("error", err.Error()))
		return
	}

	v.mu.Lock()
	v.image = img
	v.updatedAt = time.Now()
	v.mu.Unlock()
}

// Image возвращает последнее изображение.
// ok == false, пока сервер недоступен или изображение ещё не загружено.
func (v *ImageView) Image() (img []byte, updatedAt time.Time, ok bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.available || v.image == nil {
		return nil, time.Time{}, false
	}
	return v.image, v.updatedAt, true
}

// Available сообщает, убрана ли заглушка.
func (v *ImageView) Available() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.available
}
