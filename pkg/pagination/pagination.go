package pagination

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
)

const (
	// DefaultLimit is the page size used by the server
	DefaultLimit = 50

	// MaxLimit is the largest page size Paginate accepts
	MaxLimit = 200

	// MaxPages bounds CollectAll against a server that never stops paging
	MaxPages = 1000

	cursorPrefix = "offset:"
)

// EncodeCursor returns the opaque cursor for the page starting at offset.
func EncodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

// DecodeCursor reverses EncodeCursor. The empty cursor is offset 0.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, mcperrors.InvalidArgument("cursor", "not a valid cursor")
	}
	s := string(raw)
	if !strings.HasPrefix(s, cursorPrefix) {
		return 0, mcperrors.InvalidArgument("cursor", "not a valid cursor")
	}
	offset, err := strconv.Atoi(strings.TrimPrefix(s, cursorPrefix))
	if err != nil || offset < 0 {
		return 0, mcperrors.InvalidArgument("cursor", "not a valid cursor")
	}
	return offset, nil
}

// Paginate slices items for the page identified by cursor and returns the
// cursor of the following page, empty on the last page.
func Paginate[T any](items []T, cursor string, limit int) ([]T, string, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if offset > len(items) {
		return nil, "", mcperrors.InvalidArgument("cursor", "cursor is past the end of the list")
	}

	end := offset + limit
	if end > len(items) {
		end = len(items)
	}

	page := make([]T, end-offset)
	copy(page, items[offset:end])

	next := ""
	if end < len(items) {
		next = EncodeCursor(end)
	}
	return page, next, nil
}

// PageFunc fetches one page for cursor and returns its items and the next cursor.
type PageFunc[T any] func(ctx context.Context, cursor string) ([]T, string, error)

// CollectAll follows cursors until the last page and returns every item in
// order. A cursor that repeats is treated as a protocol error.
func CollectAll[T any](ctx context.Context, fetch PageFunc[T]) ([]T, error) {
	all := []T{}
	seen := map[string]bool{}
	cursor := ""

	for page := 0; page < MaxPages; page++ {
		items, next, err := fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if next == "" {
			return all, nil
		}
		if seen[next] {
			return nil, fmt.Errorf("pagination cursor %q repeated", next)
		}
		seen[next] = true
		cursor = next
	}
	return nil, fmt.Errorf("pagination exceeded %d pages", MaxPages)
}
