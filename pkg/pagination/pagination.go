package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows any cursor query can request.
	MaxLimit = 100

	seqCursorPrefix = "seq:"
)

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer returns the normalization result plus one to detect the next page.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeSeqCursor builds an opaque cursor pointing after the given ledger sequence.
func EncodeSeqCursor(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(seqCursorPrefix + strconv.FormatInt(seq, 10)))
}

// ParseSeqCursor decodes a cursor produced by EncodeSeqCursor. An empty cursor means "from the start".
func ParseSeqCursor(value string) (int64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return 0, fmt.Errorf("decode cursor: %w", err)
	}
	raw := string(decoded)
	if !strings.HasPrefix(raw, seqCursorPrefix) {
		return 0, fmt.Errorf("invalid cursor format")
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(raw, seqCursorPrefix), 10, 64)
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("invalid cursor sequence")
	}
	return seq, nil
}
