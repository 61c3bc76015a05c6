package graph

import (
	"encoding/json"
	"math"
	"reflect"
	"time"
)

// State is the key-value data threaded through a run.
//
// Tools read a copy of it and return partial updates; the engine applies
// those through Merge. Keys are caller-defined except for ErrorKey, which
// the engine writes when a run fails.
type State map[string]interface{}

// ErrorKey is the reserved key holding the failure description of a failed run.
const ErrorKey = "error"

// Get returns the value stored under key.
func (s State) Get(key string) (interface{}, bool) {
	v, ok := s[key]
	return v, ok
}

// String returns the value under key if it is a string.
func (s State) String(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

// Bool returns the value under key if it is a bool.
func (s State) Bool(key string) (bool, bool) {
	v, ok := s[key].(bool)
	return v, ok
}

// Int returns the value under key as an int. Floats are accepted when they
// hold an integral value, as they do after a JSON round trip.
func (s State) Int(key string) (int, bool) {
	switch v := s[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		if int64(int(v)) == v {
			return int(v), true
		}
	case float64:
		if v == math.Trunc(v) && v >= float64(math.MinInt) && v < -float64(math.MinInt) {
			return int(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && int64(int(n)) == n {
			return int(n), true
		}
	}
	return 0, false
}

// Float returns the value under key as a float64.
func (s State) Float(key string) (float64, bool) {
	switch v := s[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Strings returns the value under key as a string slice. A []interface{}
// qualifies only if every element is a string.
func (s State) Strings(key string) ([]string, bool) {
	switch v := s[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}

// Merge applies update with right-biased overwrite: new keys are added and
// existing keys replaced. Keys are never removed. Values are deep-copied so
// the caller may keep using update afterwards.
func (s State) Merge(update map[string]interface{}) {
	for k, v := range update {
		s[k] = cloneValue(v)
	}
}

// Clone returns a deep copy of the state. Nested maps and slices are copied;
// other values are copied by value.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil, string, bool, int, int64, float64, json.Number, time.Time:
		return v
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, vv := range v {
			out[k] = cloneValue(vv)
		}
		return out
	case State:
		return v.Clone()
	case []interface{}:
		out := make([]interface{}, len(v))
		for i := range v {
			out[i] = cloneValue(v[i])
		}
		return out
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []int:
		out := make([]int, len(v))
		copy(out, v)
		return out
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out
	}
	return cloneReflect(reflect.ValueOf(value)).Interface()
}

// cloneReflect copies maps and slices of any other element type.
func cloneReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneElem(iter.Value(), v.Type().Elem()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneElem(v.Index(i), v.Type().Elem()))
		}
		return out
	default:
		return v
	}
}

func cloneElem(v reflect.Value, typ reflect.Type) reflect.Value {
	if typ.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(typ)
		}
		return reflect.ValueOf(cloneValue(v.Interface()))
	}
	return cloneReflect(v)
}
