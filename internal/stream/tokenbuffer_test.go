package stream

import (
	"reflect"
	"testing"
)

func TestTokenBufferFIFOEviction(t *testing.T) {
	b := NewTokenBuffer(5)
	for _, tok := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		b.Add(tok)
	}
	want := []string{"C", "D", "E", "F", "G"}
	if got := b.LastN(5); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v got %v", want, got)
	}
}

func TestTokenBufferText(t *testing.T) {
	b := NewTokenBuffer(3)
	for _, tok := range []string{"A", "B", "C", "D"} {
		b.Add(tok)
	}
	if got := b.Text(); got != "BCD" {
		t.Fatalf("expected BCD got %q", got)
	}
}

func TestTokenBufferLastNShorterThanBuffer(t *testing.T) {
	b := NewTokenBuffer(10)
	b.Add("x")
	b.Add("y")
	if got := b.LastN(5); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Fatalf("expected [x y] got %v", got)
	}
	if got := b.LastN(0); got != nil {
		t.Fatalf("expected nil for n=0, got %v", got)
	}
	if b.Len() != 2 {
		t.Fatalf("expected len 2 got %d", b.Len())
	}
}
