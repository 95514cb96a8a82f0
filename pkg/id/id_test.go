package id

import (
	"testing"
	"time"
)

func TestOrderingMonotonic(t *testing.T) {
	g := NewGeneratorWithClock(func() time.Time { return time.UnixMilli(1000) })
	a := g.Next()
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected a<b")
	}
	if a.Millis() != 1000 {
		t.Fatalf("millis %d", a.Millis())
	}
}

func TestClockRegressionGuard(t *testing.T) {
	ms := int64(1000)
	g := NewGeneratorWithClock(func() time.Time { return time.UnixMilli(ms) })
	a := g.Next()
	ms = 900
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected b>a despite clock regression")
	}
}

func TestParseRoundTrip(t *testing.T) {
	g := NewGenerator()
	a := g.Next()
	b, ok := Parse(a.String())
	if !ok || a != b {
		t.Fatalf("parse mismatch: %v %v", a, b)
	}
	if _, ok := Parse("zz"); ok {
		t.Fatalf("expected invalid hex to fail")
	}
}
