package cmdclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// ValueKind — JSON-тип поля value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindOther
)

// Value — поле value ответа-конверта {"value": ...}.
type Value struct {
	raw json.RawMessage
}

// DecodeValue разбирает конверт {"value": ...}.
// Отсутствие поля value или лишние поля — ошибка декодирования.
func DecodeValue(raw json.RawMessage) (Value, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return Value{}, fmt.Errorf("%w: ожидался объект {value}: %w", ErrDecode, err)
	}
	v, ok := env["value"]
	if !ok {
		return Value{}, fmt.Errorf("%w: отсутствует поле value", ErrDecode)
	}
	if len(env) != 1 {
		return Value{}, fmt.Errorf("%w: лишние поля в конверте value", ErrDecode)
	}
	return Value{raw: v}, nil
}

// Raw возвращает сырое JSON-значение.
func (v Value) Raw() json.RawMessage {
	return v.raw
}

// Kind возвращает JSON-тип значения.
func (v Value) Kind() ValueKind {
	t := bytes.TrimSpace(v.raw)
	if len(t) == 0 {
		return KindNull
	}
	switch t[0] {
	case 'n':
		return KindNull
	case 't', 'f':
		return KindBool
	case '"':
		return KindString
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return KindNumber
	default:
		return KindOther
	}
}

// Bool возвращает булево значение.
func (v Value) Bool() (bool, error) {
	var b bool
	if err := json.Unmarshal(v.raw, &b); err != nil {
		return false, fmt.Errorf("%w: value не bool: %s", ErrDecode, v.raw)
	}
	return b, nil
}

// Int возвращает целое значение.
func (v Value) Int() (int64, error) {
	var f float64
	if err := json.Unmarshal(v.raw, &f); err != nil {
		return 0, fmt.Errorf("%w: value не число: %s", ErrDecode, v.raw)
	}
	if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%w: value не целое: %s", ErrDecode, v.raw)
	}
	return int64(f), nil
}

// Text возвращает строковое значение.
func (v Value) Text() (string, error) {
	var s string
	if err := json.Unmarshal(v.raw, &s); err != nil {
		return "", fmt.Errorf("%w: value не строка: %s", ErrDecode, v.raw)
	}
	return s, nil
}

// Succeeded применяет единое соглашение об успехе команды:
// bool — как есть, число — успех при значении >= 0.
// Прочие типы — ошибка декодирования.
func (v Value) Succeeded() (bool, error) {
	switch v.Kind() {
	case KindBool:
		return v.Bool()
	case KindNumber:
		n, err := v.Int()
		if err != nil {
			return false, err
		}
		return n >= 0, nil
	default:
		return false, fmt.Errorf("%w: value не bool и не число: %s", ErrDecode, v.raw)
	}
}

// DecodeStrict декодирует JSON в dst, запрещая неизвестные поля и
// данные после значения.
func DecodeStrict(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: данные после JSON-значения", ErrDecode)
	}
	return nil
}
