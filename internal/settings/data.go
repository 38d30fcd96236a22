// Package settings provides the reference-counted key/value snapshot that
// carries an output's configuration.
//
// A Data holds user values on top of a defaults layer. Readers that hold a
// reference stay valid while the owner swaps in a new snapshot: owners never
// mutate a snapshot after handing it out, they Clone, Apply and replace.
package settings

import (
	"maps"
	"sort"
	"sync"
	"sync/atomic"
)

// Data is a reference-counted settings snapshot.
type Data struct {
	mu       sync.RWMutex
	values   map[string]any
	defaults map[string]any
	refs     atomic.Int32
}

// New returns an empty snapshot holding one reference.
func New() *Data {
	d := &Data{
		values:   make(map[string]any),
		defaults: make(map[string]any),
	}
	d.refs.Store(1)
	return d
}

// FromMap returns a snapshot whose user values are a copy of m.
func FromMap(m map[string]any) *Data {
	d := New()
	for k, v := range m {
		d.values[k] = normalize(v)
	}
	return d
}

// AddRef takes another reference and returns d for chaining.
func (d *Data) AddRef() *Data {
	if d != nil {
		d.refs.Add(1)
	}
	return d
}

// Release drops one reference. The last release clears the snapshot.
func (d *Data) Release() {
	if d == nil {
		return
	}
	if d.refs.Add(-1) != 0 {
		return
	}
	d.mu.Lock()
	clear(d.values)
	clear(d.defaults)
	d.mu.Unlock()
}

// Refs reports the current reference count.
func (d *Data) Refs() int {
	if d == nil {
		return 0
	}
	return int(d.refs.Load())
}

// Set stores a user value.
func (d *Data) Set(key string, value any) {
	d.mu.Lock()
	d.values[key] = normalize(value)
	d.mu.Unlock()
}

// SetDefault stores a default used when no user value is present.
func (d *Data) SetDefault(key string, value any) {
	d.mu.Lock()
	d.defaults[key] = normalize(value)
	d.mu.Unlock()
}

// Erase removes the user value for key, exposing the default again.
func (d *Data) Erase(key string) {
	d.mu.Lock()
	delete(d.values, key)
	d.mu.Unlock()
}

// Get returns the user value for key, falling back to the default.
func (d *Data) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if v, ok := d.values[key]; ok {
		return v, true
	}
	v, ok := d.defaults[key]
	return v, ok
}

// Has reports whether key has a user value (defaults do not count).
func (d *Data) Has(key string) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.values[key]
	return ok
}

// String returns the value for key as a string, or "" if absent or not a string.
func (d *Data) String(key string) string {
	v, _ := d.Get(key)
	s, _ := v.(string)
	return s
}

// Int returns the value for key as an int64.
func (d *Data) Int(key string) int64 {
	v, _ := d.Get(key)
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// Float returns the value for key as a float64.
func (d *Data) Float(key string) float64 {
	v, _ := d.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// Bool returns the value for key as a bool.
func (d *Data) Bool(key string) bool {
	v, _ := d.Get(key)
	b, _ := v.(bool)
	return b
}

// Clone returns an independent snapshot with one reference.
func (d *Data) Clone() *Data {
	c := New()
	if d == nil {
		return c
	}
	d.mu.RLock()
	maps.Copy(c.values, d.values)
	maps.Copy(c.defaults, d.defaults)
	d.mu.RUnlock()
	return c
}

// Apply overwrites d's user values with other's. Keys absent in other are kept.
func (d *Data) Apply(other *Data) {
	if d == nil || other == nil || d == other {
		return
	}
	other.mu.RLock()
	src := maps.Clone(other.values)
	other.mu.RUnlock()

	d.mu.Lock()
	maps.Copy(d.values, src)
	d.mu.Unlock()
}

// Map returns the effective values (defaults overlaid with user values).
func (d *Data) Map() map[string]any {
	out := make(map[string]any)
	if d == nil {
		return out
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	maps.Copy(out, d.defaults)
	maps.Copy(out, d.values)
	return out
}

// Keys returns the sorted effective keys.
func (d *Data) Keys() []string {
	m := d.Map()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalize folds integer and float kinds to int64 and float64 so values
// decoded from TOML, JSON and Go literals compare the same.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
