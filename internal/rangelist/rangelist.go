// Package rangelist implements a compact set of 32-bit message numbers
// stored as merged inclusive ranges, used to serialize LEG acknowledgement
// fields.
package rangelist

import (
	"braces.dev/errtrace"

	"legshim/internal/bitio"
)

type span struct {
	min, max uint32
}

// List is an ordered, non-overlapping, non-adjacent set of inclusive u32
// ranges.
type List struct {
	ranges []span
}

// New returns an empty List.
func New() *List {
	return &List{}
}

// Len returns the number of distinct values represented.
func (l *List) Len() int {
	var n int
	for _, r := range l.ranges {
		n += int(r.max-r.min) + 1
	}
	return n
}

// IsEmpty reports whether the list has no ranges.
func (l *List) IsEmpty() bool {
	return len(l.ranges) == 0
}

// Clear empties the list.
func (l *List) Clear() {
	l.ranges = l.ranges[:0]
}

// Insert adds item to the set. A no-op if already present. Merges with
// adjacent ranges where possible.
func (l *List) Insert(item uint32) {
	for i := range l.ranges {
		r := &l.ranges[i]
		if r.min <= item {
			if r.max >= item {
				return // already contained
			}
			if r.max == item-1 {
				r.max = item
				if i == len(l.ranges)-1 {
					return
				}
				if l.ranges[i+1].min == item+1 {
					r.max = l.ranges[i+1].max
					l.ranges = append(l.ranges[:i+1], l.ranges[i+2:]...)
				}
				return
			}
			continue
		}
		// r.min > item, so this subtraction never wraps.
		if r.min-item == 1 {
			r.min = item
			return
		}
		l.ranges = append(l.ranges, span{})
		copy(l.ranges[i+1:], l.ranges[i:])
		l.ranges[i] = span{min: item, max: item}
		return
	}
	l.ranges = append(l.ranges, span{min: item, max: item})
}

// Items returns every value in the set in ascending order.
func (l *List) Items() []uint32 {
	out := make([]uint32, 0, l.Len())
	for _, r := range l.ranges {
		for v := r.min; ; v++ {
			out = append(out, v)
			if v == r.max {
				break
			}
		}
	}
	return out
}

// Encode serializes the list as a compressed-u16 range count, then per
// range a "single" bit, a little-endian min, and (if not single) a
// little-endian max.
func (l *List) Encode(w *bitio.Writer) {
	w.WriteCompressedUint16(uint16(len(l.ranges)))
	for _, r := range l.ranges {
		single := r.min == r.max
		w.WriteBit(single)
		w.WriteUint32(r.min)
		if !single {
			w.WriteUint32(r.max)
		}
	}
}

// Decode deserializes a list previously written with Encode.
func Decode(r *bitio.Reader) (*List, error) {
	count, err := r.ReadCompressedUint16()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	l := &List{ranges: make([]span, 0, count)}
	for i := uint16(0); i < count; i++ {
		single, err := r.ReadBit()
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		min, err := r.ReadUint32()
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		max := min
		if !single {
			max, err = r.ReadUint32()
			if err != nil {
				return nil, errtrace.Wrap(err)
			}
		}
		l.ranges = append(l.ranges, span{min: min, max: max})
	}
	return l, nil
}
