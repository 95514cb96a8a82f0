package usage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestMarkUsed(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	used, err := l.IsUsed(ctx, "uploads/a.pdf")
	if err != nil || used {
		t.Fatalf("fresh key: used=%v err=%v", used, err)
	}
	if err := l.MarkUsed(ctx, "uploads/a.pdf", "s1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := l.MarkUsed(ctx, "uploads/a.pdf", "s2"); err != nil {
		t.Fatalf("mark again: %v", err)
	}
	e, err := l.Lookup(ctx, "uploads/a.pdf")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if e.SessionID != "s2" || e.Count != 2 || e.UsedAt.IsZero() {
		t.Fatalf("entry: %+v", e)
	}
	if used, _ := l.IsUsed(ctx, "uploads/a.pdf"); !used {
		t.Fatalf("marked key not used")
	}
}

func TestMarkUsedEmptyKey(t *testing.T) {
	l := openTestLedger(t)
	if err := l.MarkUsed(context.Background(), "", "s1"); err != nil {
		t.Fatalf("empty key: %v", err)
	}
	if _, err := l.Lookup(context.Background(), ""); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("empty key stored: %v", err)
	}
}
