package model

// Bounds — допустимый диапазон числового параметра и значение по умолчанию.
// Используется виджетами для предварительного ограничения ввода;
// окончательную проверку выполняет сервер.
type Bounds struct {
	Min     int64
	Max     int64
	Default int64
}

// Диапазоны параметров элементов.
var (
	ElementSizeBounds   = Bounds{Min: 4, Max: 1000, Default: 40}
	GraphBorderBounds   = Bounds{Min: 0, Max: 400, Default: 2}
	GraphCeilingBounds  = Bounds{Min: 0, Max: 4294967295, Default: 0}
	GraphIntervalBounds = Bounds{Min: 10, Max: 10000000, Default: 800}
)

// Clamp ограничивает значение диапазоном.
func (b Bounds) Clamp(v int64) int64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Contains сообщает, лежит ли значение в диапазоне.
func (b Bounds) Contains(v int64) bool {
	return v >= b.Min && v <= b.Max
}

// MaxBorderForSize — наибольшая рамка, допустимая для графика размера size.
func MaxBorderForSize(size int) int {
	if size < 1 {
		return 0
	}
	return int(GraphBorderBounds.Clamp(int64(size-1) / 2))
}
