package rangelist

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"legshim/internal/bitio"
)

func TestInsertMerge(t *testing.T) {
	l := New()
	for _, v := range []uint32{1, 2, 3, 4} {
		l.Insert(v)
	}
	if len(l.ranges) != 1 {
		t.Fatalf("expected 1 range, got %d", len(l.ranges))
	}
	if l.ranges[0] != (span{1, 4}) {
		t.Fatalf("expected [1,4], got %+v", l.ranges[0])
	}
}

func TestInsertUnderflowBoundary(t *testing.T) {
	l := New()
	l.Insert(0)
	l.Insert(0)
	if got := l.Items(); !cmp.Equal(got, []uint32{0}) {
		t.Fatalf("got %v", got)
	}
}

func TestInsertOverflowBoundary(t *testing.T) {
	l := New()
	l.Insert(^uint32(0))
	l.Insert(^uint32(0))
	if got := l.Items(); !cmp.Equal(got, []uint32{^uint32(0)}) {
		t.Fatalf("got %v", got)
	}
}

func TestMultipleRanges(t *testing.T) {
	l := New()
	for _, v := range []uint32{1, 2, 3, 5, 6, 8, 14, 15, 16, 17} {
		l.Insert(v)
	}
	want := []span{{1, 3}, {5, 6}, {8, 8}, {14, 17}}
	if !cmp.Equal(l.ranges, want, cmp.AllowUnexported(span{})) {
		t.Fatalf("got %+v, want %+v", l.ranges, want)
	}
	if l.Len() != 10 {
		t.Fatalf("expected len 10, got %d", l.Len())
	}
}

func TestInsertPermutationInvariant(t *testing.T) {
	values := []uint32{17, 3, 1, 16, 2, 14, 8, 6, 5, 15}
	l := New()
	for _, v := range values {
		l.Insert(v)
	}
	want := []uint32{1, 2, 3, 5, 6, 8, 14, 15, 16, 17}
	if !cmp.Equal(l.Items(), want) {
		t.Fatalf("got %v, want %v", l.Items(), want)
	}
	if l.Len() != len(want) {
		t.Fatalf("len mismatch: %d vs %d", l.Len(), len(want))
	}
}

func TestClear(t *testing.T) {
	l := New()
	l.Insert(1)
	l.Insert(5)
	l.Clear()
	if !l.IsEmpty() {
		t.Fatal("expected empty after clear")
	}
}

var serializedVector = []byte{
	0xd0, 0x02, 0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x05, 0x00, 0x00, 0x00,
	0x06, 0x00, 0x00, 0x00, 0x84, 0x00, 0x00, 0x00, 0x03, 0x80, 0x00, 0x00,
	0x04, 0x40, 0x00, 0x00, 0x00,
}

func buildMultipleRanges() *List {
	l := New()
	for _, v := range []uint32{1, 2, 3, 5, 6, 8, 14, 15, 16, 17} {
		l.Insert(v)
	}
	return l
}

func TestSerialize(t *testing.T) {
	l := buildMultipleRanges()
	w := bitio.NewWriter()
	l.Encode(w)
	got := w.Bytes()
	if !cmp.Equal(got, serializedVector) {
		t.Fatalf("got % x, want % x", got, serializedVector)
	}
}

func TestDeserialize(t *testing.T) {
	r := bitio.NewReader(serializedVector)
	l, err := Decode(r)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := buildMultipleRanges()
	if !cmp.Equal(l.ranges, want.ranges, cmp.AllowUnexported(span{})) {
		t.Fatalf("got %+v, want %+v", l.ranges, want.ranges)
	}
}
