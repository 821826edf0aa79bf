package feed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hebrewfeed/internal/database"
)

// ErrMalformedCursor is returned for pagination tokens that do not parse.
var ErrMalformedCursor = errors.New("malformed cursor")

const cursorSeparator = "::"

// EncodeCursor returns the pagination token that resumes after row.
func EncodeCursor(row database.FeedRow) string {
	return strconv.FormatInt(row.EffectiveTimestamp, 10) + cursorSeparator + row.CID
}

// DecodeCursor parses a "<millis>::<cid>" token. An empty token means the
// first page and yields nil.
func DecodeCursor(token string) (*database.FeedKey, error) {
	if token == "" {
		return nil, nil
	}
	millisPart, cid, ok := strings.Cut(token, cursorSeparator)
	if !ok || cid == "" || strings.Contains(cid, cursorSeparator) {
		return nil, fmt.Errorf("%w: %q", ErrMalformedCursor, token)
	}
	millis, err := strconv.ParseInt(millisPart, 10, 64)
	if err != nil || millis < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedCursor, token)
	}
	return &database.FeedKey{Millis: millis, CID: cid}, nil
}
