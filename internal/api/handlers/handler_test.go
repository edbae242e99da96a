package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/udda/multiload-ng/internal/cmdclient"
	"github.com/udda/multiload-ng/internal/service"
)

// newTestLogger создаёт логгер, пишущий только ошибки.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Ответы mock-сервера Multiload-ng.
const (
	testDataJSON = `{"product":"Multiload-ng","version":"1.5.2","shared-config":{},
		"container":{"size":40,"padding":1,"orientation":"horizontal","elements":[
			{"size":40,"type":"graph","interval":800,"graph":{"type":"cpu","border":2,"ceiling":0,"config":{"colors":"#ff0000"}}},
			{"size":4,"type":"separator"},
			{"size":30,"type":"graph","interval":500,"graph":{"type":"disk","border":1,"ceiling":100}}]}}`
	testGraphTypesJSON = `{"mem":{"name":"mem","label":"Memory","description":"RAM","helptext":""},
		"cpu":{"name":"cpu","label":"Processor","description":"CPU","helptext":""}}`
)

// mockMultiload — mock-сервер Multiload-ng со статичным состоянием.
type mockMultiload struct {
	srv      *httptest.Server
	down     atomic.Bool
	captions atomic.Int32
}

func newMockMultiload(t *testing.T) *mockMultiload {
	t.Helper()
	m := &mockMultiload{}
	m.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/multiload.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("\x89PNG-test"))
			return
		case "/command/status":
			_, _ = w.Write([]byte(`{"value":"ready"}`))
		case "/command/data":
			_, _ = w.Write([]byte(testDataJSON))
		case "/command/graph-types":
			_, _ = w.Write([]byte(testGraphTypesJSON))
		case "/command/library-version":
			_, _ = w.Write([]byte(`{"value":"1.5.2"}`))
		case "/command/localization":
			_, _ = w.Write([]byte(`{}`))
		case "/command/caption":
			m.captions.Add(1)
			_, _ = w.Write([]byte(`{"header":"Processor","body":"CPU 12%","footer":"","table":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(m.srv.Close)
	return m
}

// newTestHandler создаёт APIHandler над загруженной сессией.
func newTestHandler(t *testing.T, opts service.SessionOptions) (*mockMultiload, *service.Session, *service.ImageView, *APIHandler) {
	t.Helper()
	m := newMockMultiload(t)

	client, err := cmdclient.New(m.srv.URL, "", 5*time.Second, false, newTestLogger())
	if err != nil {
		t.Fatalf("Ошибка создания клиента: %v", err)
	}
	view := service.NewImageView(client, newTestLogger())
	sess := service.NewSession(client, view, opts, newTestLogger())
	t.Cleanup(sess.Close)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start ошибка: %v", err)
	}

	h := NewAPIHandler(NewHealthHandler(sess, nil), sess, view, newTestLogger())
	return m, sess, view, h
}

// decodeBody декодирует JSON-ответ.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, ожидался application/json", ct)
	}
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("ошибка декодирования ответа: %v", err)
	}
}

// errorCode возвращает код ошибки из тела ответа.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, rec, &body)
	return body.Error.Code
}

// TestHealthLive проверяет liveness probe.
func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	var resp healthLiveResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" || resp.Service != "multiload-client" {
		t.Errorf("ответ = %+v", resp)
	}
}

// stubChecker — ReadinessChecker с фиксированным ответом.
type stubChecker struct {
	status, message string
}

func (c stubChecker) CheckReady() (string, string) { return c.status, c.message }

// stubDeps — DependencyHealth с фиксированным состоянием.
type stubDeps map[string]bool

func (d stubDeps) Health() map[string]bool { return d }

// TestHealthReady проверяет readiness probe для разных состояний сервера.
func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		checker    ReadinessChecker
		deps       DependencyHealth
		wantCode   int
		wantStatus string
	}{
		{"ok", stubChecker{status: "ok"}, nil, http.StatusOK, "ok"},
		{"degraded", stubChecker{status: "degraded", message: "медленно"}, nil, http.StatusOK, "degraded"},
		{"fail", stubChecker{status: "fail", message: "недоступен"}, nil, http.StatusServiceUnavailable, "fail"},
		{"nil checker", nil, nil, http.StatusServiceUnavailable, "fail"},
		{"deps ok", stubChecker{status: "ok"}, stubDeps{"multiload-server": true}, http.StatusOK, "ok"},
		{"deps failed", stubChecker{status: "ok"}, stubDeps{"multiload-server": false}, http.StatusOK, "degraded"},
		{"server fail wins", stubChecker{status: "fail"}, stubDeps{"multiload-server": false}, http.StatusServiceUnavailable, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checker, tt.deps)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("статус = %d, ожидался %d", rec.Code, tt.wantCode)
			}
			var resp healthReadyResponse
			decodeBody(t, rec, &resp)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, ожидался %q", resp.Status, tt.wantStatus)
			}
		})
	}
}

// TestHealthReady_Session проверяет readiness по состоянию сессии:
// до первого такта опроса сервер считается недоступным.
func TestHealthReady_Session(t *testing.T) {
	m, sess, _, h := newTestHandler(t, service.SessionOptions{PollInterval: time.Hour})

	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("до такта: статус = %d, ожидался 503", rec.Code)
	}

	if _, err := sess.Poll().Tick(context.Background()); err != nil {
		t.Fatalf("Tick ошибка: %v", err)
	}
	rec = httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("после такта: статус = %d, ожидался 200", rec.Code)
	}

	m.down.Store(true)
	_, _ = sess.Poll().Tick(context.Background())
	rec = httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("сервер недоступен: статус = %d, ожидался 503", rec.Code)
	}
}

// TestListElements проверяет список элементов с подписями типов.
func TestListElements(t *testing.T) {
	_, _, _, h := newTestHandler(t, service.SessionOptions{})

	rec := httptest.NewRecorder()
	h.ListElements(rec, httptest.NewRequest(http.MethodGet, "/api/v1/elements", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}

	var resp elementListResponse
	decodeBody(t, rec, &resp)
	if resp.Product != "Multiload-ng" || resp.Version != "1.5.2" || resp.LibraryVersion != "1.5.2" {
		t.Errorf("версии: %q %q %q", resp.Product, resp.Version, resp.LibraryVersion)
	}
	if resp.Container.Size != 40 || resp.Container.Orientation != "horizontal" {
		t.Errorf("контейнер = %+v", resp.Container)
	}
	if resp.DragState != "idle" || resp.Generation != 1 || resp.LoadedAt == nil {
		t.Errorf("drag_state=%q generation=%d loaded_at=%v", resp.DragState, resp.Generation, resp.LoadedAt)
	}
	if len(resp.Elements) != 3 {
		t.Fatalf("элементов = %d, ожидалось 3", len(resp.Elements))
	}

	cpu := resp.Elements[0]
	if cpu.Graph == nil || cpu.Graph.Label != "Processor" || cpu.Graph.Config["colors"] != "#ff0000" {
		t.Errorf("cpu = %+v", cpu.Graph)
	}
	if resp.Elements[1].Type != "separator" || resp.Elements[1].Graph != nil {
		t.Errorf("разделитель = %+v", resp.Elements[1])
	}
	// disk нет в каталоге — подпись совпадает с ключом
	if disk := resp.Elements[2].Graph; disk == nil || disk.Label != "disk" || disk.Ceiling != 100 {
		t.Errorf("disk = %+v", disk)
	}
}

// TestListElements_Dragging проверяет локальный порядок во время перетаскивания.
func TestListElements_Dragging(t *testing.T) {
	_, sess, _, h := newTestHandler(t, service.SessionOptions{})

	if err := sess.Reorder().Begin(0); err != nil {
		t.Fatalf("Begin ошибка: %v", err)
	}
	if err := sess.Reorder().Preview(2); err != nil {
		t.Fatalf("Preview ошибка: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ListElements(rec, httptest.NewRequest(http.MethodGet, "/api/v1/elements", nil))

	var resp elementListResponse
	decodeBody(t, rec, &resp)
	if resp.DragState != "dragging" {
		t.Errorf("drag_state = %q", resp.DragState)
	}
	if len(resp.Elements) != 3 || resp.Elements[2].Graph == nil || resp.Elements[2].Graph.Type != "cpu" {
		t.Errorf("ожидался cpu на позиции 2: %+v", resp.Elements)
	}
	if resp.Elements[2].Index != 2 {
		t.Errorf("индекс = %d, ожидался 2", resp.Elements[2].Index)
	}
}

// TestGetElement проверяет получение элемента и 404.
func TestGetElement(t *testing.T) {
	_, _, _, h := newTestHandler(t, service.SessionOptions{})

	rec := httptest.NewRecorder()
	h.GetElement(rec, httptest.NewRequest(http.MethodGet, "/api/v1/elements/1", nil), 1)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	var el elementResponse
	decodeBody(t, rec, &el)
	if el.Index != 1 || el.Type != "separator" || el.Size != 4 {
		t.Errorf("элемент = %+v", el)
	}

	rec = httptest.NewRecorder()
	h.GetElement(rec, httptest.NewRequest(http.MethodGet, "/api/v1/elements/9", nil), 9)
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "NOT_FOUND" {
		t.Errorf("статус = %d, ожидался 404 NOT_FOUND", rec.Code)
	}
}

// TestGetElement_FollowsView проверяет, что индекс элемента совпадает
// с позицией в списке ListElements при локальной перестановке.
func TestGetElement_FollowsView(t *testing.T) {
	_, sess, _, h := newTestHandler(t, service.SessionOptions{})

	if err := sess.Reorder().Begin(0); err != nil {
		t.Fatalf("Begin ошибка: %v", err)
	}
	if err := sess.Reorder().Preview(2); err != nil {
		t.Fatalf("Preview ошибка: %v", err)
	}

	rec := httptest.NewRecorder()
	h.GetElement(rec, httptest.NewRequest(http.MethodGet, "/api/v1/elements/2", nil), 2)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	var el elementResponse
	decodeBody(t, rec, &el)
	if el.Index != 2 || el.Graph == nil || el.Graph.Type != "cpu" {
		t.Errorf("элемент 2 = %+v, ожидался cpu", el)
	}

	rec = httptest.NewRecorder()
	h.GetElementCaption(rec, httptest.NewRequest(http.MethodGet, "/api/v1/elements/0/caption", nil), 0)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("подпись элемента 0 (разделитель после перестановки): статус = %d, ожидался 400", rec.Code)
	}
}

// TestGetElementCaption проверяет подпись графика и кэширование.
func TestGetElementCaption(t *testing.T) {
	m, _, _, h := newTestHandler(t, service.SessionOptions{CaptionCacheSize: 4, CaptionCacheTTL: time.Minute})

	for range 2 {
		rec := httptest.NewRecorder()
		h.GetElementCaption(rec, httptest.NewRequest(http.MethodGet, "/api/v1/elements/0/caption", nil), 0)
		if rec.Code != http.StatusOK {
			t.Fatalf("статус = %d, ожидался 200", rec.Code)
		}
		var resp captionResponse
		decodeBody(t, rec, &resp)
		if resp.Title != "Processor" || resp.Caption.Body != "CPU 12%" {
			t.Errorf("подпись = %+v", resp)
		}
	}
	if n := m.captions.Load(); n != 1 {
		t.Errorf("запросов caption = %d, ожидался 1", n)
	}
}

// TestGetElementCaption_Errors проверяет ошибки запроса подписи.
func TestGetElementCaption_Errors(t *testing.T) {
	m, _, _, h := newTestHandler(t, service.SessionOptions{})

	tests := []struct {
		name     string
		index    int
		down     bool
		wantCode int
		wantErr  string
	}{
		{"separator", 1, false, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", 7, false, http.StatusNotFound, "NOT_FOUND"},
		{"server down", 0, true, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.down.Store(tt.down)
			defer m.down.Store(false)

			rec := httptest.NewRecorder()
			h.GetElementCaption(rec, httptest.NewRequest(http.MethodGet, "/api/v1/elements/x/caption", nil), tt.index)
			if rec.Code != tt.wantCode {
				t.Errorf("статус = %d, ожидался %d", rec.Code, tt.wantCode)
			}
			if code := errorCode(t, rec); code != tt.wantErr {
				t.Errorf("код = %q, ожидался %q", code, tt.wantErr)
			}
		})
	}
}

// TestListGraphTypes проверяет каталог, отсортированный по имени.
func TestListGraphTypes(t *testing.T) {
	_, _, _, h := newTestHandler(t, service.SessionOptions{})

	rec := httptest.NewRecorder()
	h.ListGraphTypes(rec, httptest.NewRequest(http.MethodGet, "/api/v1/graph-types", nil))

	var resp graphTypeListResponse
	decodeBody(t, rec, &resp)
	if resp.Total != 2 || len(resp.Items) != 2 {
		t.Fatalf("total = %d, items = %d", resp.Total, len(resp.Items))
	}
	if resp.Items[0].Name != "cpu" || resp.Items[1].Name != "mem" {
		t.Errorf("порядок = %s, %s", resp.Items[0].Name, resp.Items[1].Name)
	}
}

// TestGetImage проверяет выдачу изображения и заглушку.
func TestGetImage(t *testing.T) {
	m, sess, _, h := newTestHandler(t, service.SessionOptions{})

	rec := httptest.NewRecorder()
	h.GetImage(rec, httptest.NewRequest(http.MethodGet, "/image.png", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("до такта: статус = %d, ожидался 503", rec.Code)
	}

	if _, err := sess.Poll().Tick(context.Background()); err != nil {
		t.Fatalf("Tick ошибка: %v", err)
	}
	rec = httptest.NewRecorder()
	h.GetImage(rec, httptest.NewRequest(http.MethodGet, "/image.png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "\x89PNG") {
		t.Errorf("тело = %q", rec.Body.String())
	}

	m.down.Store(true)
	_, _ = sess.Poll().Tick(context.Background())
	rec = httptest.NewRecorder()
	h.GetImage(rec, httptest.NewRequest(http.MethodGet, "/image.png", nil))
	if rec.Code != http.StatusServiceUnavailable || errorCode(t, rec) != "SERVICE_UNAVAILABLE" {
		t.Errorf("сервер недоступен: статус = %d, ожидался 503", rec.Code)
	}
}

// TestGetImage_NoSource проверяет 503 без источника изображения.
func TestGetImage_NoSource(t *testing.T) {
	h := &APIHandler{logger: newTestLogger()}
	rec := httptest.NewRecorder()
	h.GetImage(rec, httptest.NewRequest(http.MethodGet, "/image.png", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("статус = %d, ожидался 503", rec.Code)
	}
}
