// Package config holds scan option maps: typed access for components at run
// time, and a flat string form for the per-scan snapshot the store persists.
//
// Keys follow the store's scoping rule: "component:option" keys belong to
// one component, all others are global.
package config

import (
	"fmt"
	"sort"
	"time"
)

// Config wraps a map[string]any for type-safe value extraction. Accessors
// return the supplied default when a key is missing or its value cannot be
// converted; nothing is ever coerced with surprises.
type Config struct {
	data map[string]any
}

// New creates a Config from the given map. A nil map yields an empty Config.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// String returns the string value for key, or defaultVal.
func (c Config) String(key, defaultVal string) string {
	if s, ok := c.data[key].(string); ok {
		return s
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal.
func (c Config) Bool(key string, defaultVal bool) bool {
	if b, ok := c.data[key].(bool); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal. Accepts int, int64,
// and float64 values without a fractional part.
func (c Config) Int(key string, defaultVal int) int {
	switch v := c.data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return defaultVal
}

// Duration returns the duration value for key, or defaultVal. Strings are
// parsed with time.ParseDuration; bare numbers are taken as seconds.
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	switch v := c.data[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case time.Duration:
		return v
	}
	return defaultVal
}

// StringSlice returns the string slice for key, or defaultVal.
func (c Config) StringSlice(key string, defaultVal []string) []string {
	switch v := c.data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			out = append(out, s)
		}
		return out
	}
	return defaultVal
}

// Has reports whether key exists.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Keys returns all keys in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Raw returns the underlying map. The returned map must not be modified.
func (c Config) Raw() map[string]any {
	return c.data
}

// Flatten renders every value to a string, producing the form the store
// persists as a scan's configuration snapshot.
func (c Config) Flatten() map[string]string {
	out := make(map[string]string, len(c.data))
	for k, v := range c.data {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// Merge returns a new Config with entries of other layered over c.
func (c Config) Merge(other Config) Config {
	data := make(map[string]any, len(c.data)+len(other.data))
	for k, v := range c.data {
		data[k] = v
	}
	for k, v := range other.data {
		data[k] = v
	}
	return Config{data: data}
}
