package provider

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

var errNotObject = errors.New("not a JSON object")

// Fields is one decoded JSON object. Members are read leniently: a member of
// an unexpected type reads as absent instead of failing the whole frame.
type Fields map[string]json.RawMessage

// DecodeFields accepts any JSON object. The returned error is unwrapped so
// callers can count it before classifying it as ErrMalformedMessage.
func DecodeFields(raw []byte) (Fields, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}
	var f Fields
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, err
	}
	if f == nil {
		f = Fields{}
	}
	return f, nil
}

// Raw returns a member that is present and not null.
func (f Fields) Raw(key string) (json.RawMessage, bool) {
	v := bytes.TrimSpace(f[key])
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil, false
	}
	return v, true
}

// String reads a string member. Numbers are returned as their literal text so
// numeric ids keep working.
func (f Fields) String(key string) (string, bool) {
	v, ok := f.Raw(key)
	if !ok {
		return "", false
	}
	switch {
	case v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", false
		}
		return s, true
	case isNumber(v):
		return string(v), true
	}
	return "", false
}

// Text is String without the presence flag.
func (f Fields) Text(key string) string {
	s, _ := f.String(key)
	return s
}

// Int reads a number or a numeric string.
func (f Fields) Int(key string) (int, bool) {
	v, ok := f.Raw(key)
	if !ok {
		return 0, false
	}
	lit := string(v)
	if v[0] == '"' {
		if err := json.Unmarshal(v, &lit); err != nil {
			return 0, false
		}
		lit = strings.TrimSpace(lit)
	}
	if n, err := strconv.Atoi(lit); err == nil {
		return n, true
	}
	if x, err := strconv.ParseFloat(lit, 64); err == nil && !math.IsInf(x, 0) && !math.IsNaN(x) {
		return int(x), true
	}
	return 0, false
}

// Bool reads a boolean or one of the strings strconv.ParseBool accepts.
func (f Fields) Bool(key string) (bool, bool) {
	v, ok := f.Raw(key)
	if !ok {
		return false, false
	}
	lit := string(v)
	if v[0] == '"' {
		if err := json.Unmarshal(v, &lit); err != nil {
			return false, false
		}
	}
	b, err := strconv.ParseBool(strings.TrimSpace(lit))
	if err != nil {
		return false, false
	}
	return b, true
}

// Object reads a nested object member.
func (f Fields) Object(key string) (Fields, bool) {
	v, ok := f.Raw(key)
	if !ok || v[0] != '{' {
		return nil, false
	}
	nested, err := DecodeFields(v)
	if err != nil {
		return nil, false
	}
	return nested, true
}

// Extra decodes every member not listed in skip. It returns nil when nothing
// is left.
func (f Fields) Extra(skip map[string]struct{}) map[string]any {
	var out map[string]any
	for k, v := range f {
		if _, mapped := skip[k]; mapped {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = val
	}
	return out
}

func isNumber(v []byte) bool {
	return v[0] == '-' || (v[0] >= '0' && v[0] <= '9')
}
