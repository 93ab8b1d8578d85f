package model

import (
	"math"
	"sort"
)

// Metrics holds named numeric values. An absent key means "no value"; NaN and
// infinities are never stored.
type Metrics map[string]float64

// Get returns the named value and whether it is present.
func (m Metrics) Get(name string) (float64, bool) {
	v, ok := m[name]
	return v, ok
}

// Ptr returns the named value as a pointer, nil when missing.
func (m Metrics) Ptr(name string) *float64 {
	v, ok := m[name]
	if !ok {
		return nil
	}
	return &v
}

// Set stores v under name unless v is not finite.
func (m Metrics) Set(name string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	m[name] = v
}

// SetIf stores v only when ok is true.
func (m Metrics) SetIf(name string, v float64, ok bool) {
	if ok {
		m.Set(name, v)
	}
}

// Clone returns a shallow copy.
func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Names returns the metric names in sorted order.
func (m Metrics) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
