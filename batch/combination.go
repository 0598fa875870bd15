// Package batch expands batch fields into concrete generated messages.
package batch

import (
	"math"
	"math/bits"

	"canforge/layout"
)

// Dimension is one batch field's value range.
type Dimension struct {
	Field int // index into the field list
	Min   int64
	Max   int64
}

// Size returns the number of values in the dimension.
func (d Dimension) Size() uint64 {
	return layout.Range{Min: d.Min, Max: d.Max}.Size()
}

// Assignment is one field's value within a combination.
type Assignment struct {
	Field int   `json:"field"`
	Value int64 `json:"value"`
}

// Combination assigns a value to every batch field, in declared order.
type Combination []Assignment

// Context returns the compose context for this combination.
func (c Combination) Context(functionCode int64) layout.Context {
	ctx := layout.Context{Batch: make(map[int]int64, len(c)), FunctionCode: functionCode}
	for _, a := range c {
		ctx.Batch[a.Field] = a.Value
	}
	return ctx
}

// BatchFields returns the dimensions of every batch field in declared order.
func BatchFields(fields []layout.Field) []Dimension {
	var out []Dimension
	for i, f := range fields {
		if !f.IsBatch() {
			continue
		}
		r := f.Range()
		out = append(out, Dimension{Field: i, Min: r.Min, Max: r.Max})
	}
	return out
}

// Count returns the product of all dimension sizes without materializing any
// combination. It is 0 for no dimensions and saturates at MaxUint64.
func Count(dims []Dimension) uint64 {
	if len(dims) == 0 {
		return 0
	}
	total := uint64(1)
	for _, d := range dims {
		hi, lo := bits.Mul64(total, d.Size())
		if hi != 0 {
			return math.MaxUint64
		}
		total = lo
	}
	return total
}

// Counter walks the cartesian product of dimensions as a mixed-radix number.
// The first dimension is the most significant digit.
type Counter struct {
	dims []Dimension
	cur  []int64
	done bool
}

// NewCounter returns a counter positioned before the first combination.
func NewCounter(dims []Dimension) *Counter {
	c := &Counter{dims: dims, cur: make([]int64, len(dims))}
	for i, d := range dims {
		c.cur[i] = d.Min
	}
	if Count(dims) == 0 {
		c.done = true
	}
	return c
}

// Next returns the next combination, or false when the product is exhausted.
func (c *Counter) Next() (Combination, bool) {
	if c.done {
		return nil, false
	}
	out := make(Combination, len(c.dims))
	for i, d := range c.dims {
		out[i] = Assignment{Field: d.Field, Value: c.cur[i]}
	}

	i := len(c.cur) - 1
	for ; i >= 0; i-- {
		if c.cur[i] < c.dims[i].Max {
			c.cur[i]++
			break
		}
		c.cur[i] = c.dims[i].Min
	}
	if i < 0 {
		c.done = true
	}
	return out, true
}

// Combinations materializes every combination.
func Combinations(dims []Dimension) []Combination {
	n := Count(dims)
	if n == 0 {
		return nil
	}
	out := make([]Combination, 0, min(n, 1<<16))
	c := NewCounter(dims)
	for combo, ok := c.Next(); ok; combo, ok = c.Next() {
		out = append(out, combo)
	}
	return out
}
