// health.go — обработчики health endpoints клиента.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (сервер Multiload-ng отвечает, каталог загружен)
// /metrics — Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/udda/multiload-ng/internal/config"
)

// serviceName — имя сервиса в ответах health endpoints.
const serviceName = "multiload-client"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// DependencyHealth — состояние зависимостей по данным topologymetrics.
type DependencyHealth interface {
	// Health возвращает имя зависимости → true, если проверка успешна.
	Health() map[string]bool
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	serverChecker ReadinessChecker
	deps          DependencyHealth
	promHandler   http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// serverChecker — проверка сервера Multiload-ng (может быть nil — readiness вернёт "fail").
// deps — мониторинг зависимостей (может быть nil, если dephealth выключен).
func NewHealthHandler(serverChecker ReadinessChecker, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		serverChecker: serverChecker,
		deps:          deps,
		promHandler:   promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		MultiloadServer healthCheckResult `json:"multiload_server"`
		// Dependencies — результаты dephealth, если мониторинг включён
		Dependencies map[string]healthCheckResult `json:"dependencies,omitempty"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthReady — readiness probe. Проверяет сервер Multiload-ng.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	if h.serverChecker != nil {
		st, msg := h.serverChecker.CheckReady()
		resp.Checks.MultiloadServer = healthCheckResult{Status: st, Message: msg}
	} else {
		resp.Checks.MultiloadServer = healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}

	statuses := []string{resp.Checks.MultiloadServer.Status}
	if h.deps != nil {
		// сбой зависимости по dephealth понижает статус до degraded:
		// решение о готовности принимает опрос сервера
		resp.Checks.Dependencies = make(map[string]healthCheckResult)
		for name, ok := range h.deps.Health() {
			r := healthCheckResult{Status: "ok"}
			if !ok {
				r = healthCheckResult{Status: "degraded", Message: "проверка dephealth не пройдена"}
			}
			resp.Checks.Dependencies[name] = r
			statuses = append(statuses, r.Status)
		}
	}

	resp.Status = overallStatus(statuses...)

	if resp.Status == statusFail {
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// Константы статусов health check.
const statusFail = "fail"

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
