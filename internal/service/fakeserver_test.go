package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/udda/multiload-ng/internal/cmdclient"
	"github.com/udda/multiload-ng/internal/domain/model"
)

// newTestLogger создаёт логгер, пишущий только ошибки.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeElement — элемент mock-сервера.
type fakeElement struct {
	Type      string
	Size      int
	GraphType string
	Border    int
	Ceiling   int64
	Interval  int
	Config    map[string]string
	Paused    bool
}

// fakeServer — mock-сервер Multiload-ng в памяти.
// Реализует командный endpoint и изображение полосы.
type fakeServer struct {
	srv *httptest.Server

	mu           sync.Mutex
	elements     []fakeElement
	graphTypes   map[string]model.GraphTypeDescriptor
	localization map[string]string
	// statuses — очередь ответов status; когда пуста, статус вычисляется по dirty
	statuses []string
	dirty    bool
	// down — все запросы отвечают 503
	down bool
	// overrides — сырой ответ для команды
	overrides map[string]string
	calls     []string
	saved     []fakeElement
}

// newFakeServer создаёт mock-сервер с тремя элементами:
// cpu (40/2), разделитель (4), mem (40/1).
func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	fs := &fakeServer{
		elements: []fakeElement{
			{Type: "graph", Size: 40, GraphType: "cpu", Border: 2, Interval: 800, Config: map[string]string{"colors": "#ff0000"}},
			{Type: "separator", Size: 4},
			{Type: "graph", Size: 40, GraphType: "mem", Border: 1, Interval: 500},
		},
		graphTypes: map[string]model.GraphTypeDescriptor{
			"cpu": {Name: "cpu", Label: "Processor", Description: "CPU usage", Helptext: "cpu help"},
			"mem": {Name: "mem", Label: "Memory", Description: "RAM usage"},
			"net": {Name: "net", Label: "Network"},
		},
		localization: map[string]string{"Processor": "Процессор"},
		overrides:    make(map[string]string),
	}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.srv.Close)
	return fs
}

// newClient создаёт командный клиент к mock-серверу.
func (fs *fakeServer) newClient(t *testing.T) *cmdclient.Client {
	t.Helper()
	c, err := cmdclient.New(fs.srv.URL, "", 5*time.Second, false, newTestLogger())
	if err != nil {
		t.Fatalf("Ошибка создания клиента: %v", err)
	}
	return c
}

// setDown переключает режим "сервер недоступен".
func (fs *fakeServer) setDown(down bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.down = down
}

// pushStatus добавляет ответы status в очередь.
func (fs *fakeServer) pushStatus(tokens ...string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.statuses = append(fs.statuses, tokens...)
}

// override задаёт сырой JSON-ответ команды.
func (fs *fakeServer) override(name, body string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.overrides[name] = body
}

// callCount возвращает количество вызовов команды.
func (fs *fakeServer) callCount(name string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := 0
	for _, c := range fs.calls {
		if c == name {
			n++
		}
	}
	return n
}

// order возвращает порядок элементов сервера: тип графика или separator.
func (fs *fakeServer) order() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]string, len(fs.elements))
	for i, e := range fs.elements {
		if e.Type == "graph" {
			out[i] = e.GraphType
		} else {
			out[i] = e.Type
		}
	}
	return out
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.down {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	if r.URL.Path == "/multiload.png" {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG" + strconv.Itoa(len(fs.elements))))
		return
	}

	name, ok := strings.CutPrefix(r.URL.Path, "/command/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	fs.calls = append(fs.calls, name)

	if body, ok := fs.overrides[name]; ok {
		_, _ = w.Write([]byte(body))
		return
	}

	result := fs.execute(name, r.URL.Query())
	if result == nil {
		// команда не выполнена (NULL на сервере)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// execute выполняет команду. Вызывается под fs.mu. nil — команда не выполнена.
func (fs *fakeServer) execute(name string, q map[string][]string) any {
	get := func(key string) string {
		if v := q[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	num := func(key string) int64 {
		n, err := strconv.ParseInt(get(key), 10, 64)
		if err != nil {
			return -1
		}
		return n
	}
	index := int(num("index"))
	inRange := index >= 0 && index < len(fs.elements)
	isGraph := inRange && fs.elements[index].Type == "graph"
	value := func(v any) any { return map[string]any{"value": v} }

	switch name {
	case "status":
		if len(fs.statuses) > 0 {
			s := fs.statuses[0]
			fs.statuses = fs.statuses[1:]
			return value(s)
		}
		if fs.dirty {
			fs.dirty = false
			return value("dirty_data")
		}
		return value("ready")

	case "data":
		return fs.dataJSON()

	case "graph-types":
		return fs.graphTypes

	case "library-version":
		return value("1.5.2")

	case "localization":
		return fs.localization

	case "create":
		e := fakeElement{Type: get("type"), Size: int(num("size"))}
		if !model.ElementSizeBounds.Contains(int64(e.Size)) {
			return value(-1)
		}
		switch e.Type {
		case "graph":
			e.GraphType = get("graph-type")
			e.Border = int(num("border"))
			e.Interval = int(num("interval"))
			if _, ok := fs.graphTypes[e.GraphType]; !ok {
				return value(-1)
			}
			if model.ValidateGraphGeometry(e.Size, e.Border) != nil || e.Interval < 10 {
				return value(-1)
			}
		case "separator":
		default:
			return nil
		}
		pos := int(num("position"))
		if pos < 0 || pos > len(fs.elements) {
			pos = len(fs.elements)
		}
		fs.elements = slices.Insert(fs.elements, pos, e)
		fs.dirty = true
		return value(pos)

	case "delete":
		if !inRange {
			return value(false)
		}
		fs.elements = slices.Delete(fs.elements, index, index+1)
		fs.dirty = true
		return value(true)

	case "move":
		from, to := int(num("from")), int(num("to"))
		if from < 0 || from >= len(fs.elements) || to < 0 || to >= len(fs.elements) {
			return value(false)
		}
		e := fs.elements[from]
		fs.elements = slices.Delete(fs.elements, from, from+1)
		fs.elements = slices.Insert(fs.elements, to, e)
		fs.dirty = true
		return value(true)

	case "pause", "resume":
		if !isGraph {
			return value(false)
		}
		fs.elements[index].Paused = name == "pause"
		return value(true)

	case "set-element-size":
		v := int(num("value"))
		if !inRange || !model.ElementSizeBounds.Contains(int64(v)) {
			return value(false)
		}
		if isGraph && model.ValidateGraphGeometry(v, fs.elements[index].Border) != nil {
			return value(false)
		}
		fs.elements[index].Size = v
		fs.dirty = true
		return value(true)

	case "set-graph-border":
		v := int(num("value"))
		if !isGraph || v < 0 || model.ValidateGraphGeometry(fs.elements[index].Size, v) != nil {
			return value(false)
		}
		fs.elements[index].Border = v
		fs.dirty = true
		return value(true)

	case "set-graph-ceiling":
		v := num("value")
		if !isGraph || !model.GraphCeilingBounds.Contains(v) {
			return value(false)
		}
		fs.elements[index].Ceiling = v
		fs.dirty = true
		return value(true)

	case "set-graph-interval":
		// сервер корректирует интервал и возвращает принятое значение
		if !isGraph {
			return value(-1)
		}
		v := int(model.GraphIntervalBounds.Clamp(num("value")))
		fs.elements[index].Interval = v
		fs.dirty = true
		return value(v)

	case "config-entries":
		if !isGraph {
			return nil
		}
		return map[string]any{
			"colors": map[string]any{"label": "Colors", "description": "Graph colors", "type": "l"},
			"max":    map[string]any{"label": "Maximum", "description": "", "type": "i", "min": 0, "max": 100},
		}

	case "get-config":
		if !isGraph {
			return nil
		}
		v, ok := fs.elements[index].Config[get("key")]
		if !ok {
			return nil
		}
		return value(v)

	case "set-config":
		if !isGraph || get("key") == "" {
			return value(false)
		}
		if fs.elements[index].Config == nil {
			fs.elements[index].Config = make(map[string]string)
		}
		fs.elements[index].Config[get("key")] = get("value")
		fs.dirty = true
		return value(true)

	case "caption":
		if !isGraph {
			return nil
		}
		e := fs.elements[index]
		if e.Paused {
			return map[string]any{"body": "Graph is paused"}
		}
		return map[string]any{
			"header": fs.graphTypes[e.GraphType].Label,
			"body":   "index " + strconv.Itoa(index),
			"footer": "",
			"table":  [][]string{{"Usage", "12%"}, {"", ""}, {"", ""}},
		}

	case "index-at-coords":
		x := int(num("x"))
		offset := 0
		for i, e := range fs.elements {
			if x >= offset && x < offset+e.Size {
				return map[string]any{"index": i, "is_graph": e.Type == "graph"}
			}
			offset += e.Size
		}
		return map[string]any{"index": -1, "is_graph": false}

	case "has-file":
		return value(fs.saved != nil)

	case "save":
		fs.saved = slices.Clone(fs.elements)
		return value(true)

	case "reload":
		if fs.saved == nil {
			return value(false)
		}
		fs.elements = slices.Clone(fs.saved)
		fs.dirty = true
		return value(true)

	default:
		return nil
	}
}

// dataJSON формирует ответ data в форме протокола. Вызывается под fs.mu.
func (fs *fakeServer) dataJSON() any {
	elements := make([]map[string]any, 0, len(fs.elements))
	for _, e := range fs.elements {
		el := map[string]any{"size": e.Size, "type": e.Type}
		if e.Type == "graph" {
			el["interval"] = e.Interval
			graph := map[string]any{
				"type":    e.GraphType,
				"border":  e.Border,
				"ceiling": e.Ceiling,
				"style":   map[string]any{"colors": []string{"#ff0000"}},
			}
			if e.Config != nil {
				graph["config"] = e.Config
			}
			el["graph"] = graph
		}
		elements = append(elements, el)
	}

	return map[string]any{
		"product":       "Multiload-ng",
		"version":       "1.5.2",
		"shared-config": map[string]any{},
		"container": map[string]any{
			"size":        40,
			"padding":     2,
			"orientation": "horizontal",
			"elements":    elements,
		},
	}
}

// recordingView — View для тестов: считает переключения и обновления.
type recordingView struct {
	mu          sync.Mutex
	available   bool
	unavailable int
	refreshes   int
}

func (v *recordingView) ShowUnavailable() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.available = false
	v.unavailable++
}

func (v *recordingView) ShowAvailable() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.available = true
}

func (v *recordingView) RefreshImage(_ context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refreshes++
}

func (v *recordingView) snapshot() (available bool, unavailable, refreshes int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.available, v.unavailable, v.refreshes
}
