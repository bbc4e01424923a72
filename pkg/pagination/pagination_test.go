package pagination

import "testing"

func TestNormalizeLimit(t *testing.T) {
	if got := NormalizeLimit(0); got != DefaultLimit {
		t.Fatalf("expected default limit, got %d", got)
	}
	if got := NormalizeLimit(500); got != MaxLimit {
		t.Fatalf("expected max limit, got %d", got)
	}
	if got := LimitWithBuffer(10); got != 11 {
		t.Fatalf("expected buffered limit 11, got %d", got)
	}
}

func TestSeqCursorRoundTrip(t *testing.T) {
	cursor := EncodeSeqCursor(42)
	seq, err := ParseSeqCursor(cursor)
	if err != nil {
		t.Fatalf("ParseSeqCursor: %v", err)
	}
	if seq != 42 {
		t.Fatalf("expected 42, got %d", seq)
	}

	if seq, err := ParseSeqCursor(""); err != nil || seq != 0 {
		t.Fatalf("empty cursor should start from zero, got %d %v", seq, err)
	}
	if _, err := ParseSeqCursor("not-base64!"); err == nil {
		t.Fatalf("expected error for malformed cursor")
	}
}
