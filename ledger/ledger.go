// Package ledger tracks which article links have already been posted.
// The ledger is a remote JSON array of links, most recent first, read
// and written whole under an optimistic version token.
package ledger

import (
	"context"
	"errors"
	"sort"

	"github.com/samber/lo"

	"skypost/models"
)

// ErrConflict is returned by Store.Write when the remote ledger changed
// since it was read, i.e. the version token is stale.
var ErrConflict = errors.New("ledger version conflict")

// Store is the narrow contract against the remote ledger file. Read
// returns the current entries together with an opaque version token
// that must be presented unchanged on the next Write.
type Store interface {
	Read(ctx context.Context) (entries []string, version string, err error)
	Write(ctx context.Context, entries []string, version string) error
}

// NewItems returns the feed items whose link is not in the ledger,
// ordered oldest first so multiple new articles are posted in
// chronological order.
func NewItems(items []models.FeedItem, entries []string) []models.FeedItem {
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		seen[entry] = struct{}{}
	}

	fresh := make([]models.FeedItem, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.Link]; !ok {
			fresh = append(fresh, item)
		}
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].PublishedAt.Before(fresh[j].PublishedAt)
	})

	return fresh
}

// Merge prepends the newly confirmed links to the existing entries in
// the order they were confirmed, and truncates the result to the
// retention cap.
func Merge(confirmed []string, existing []string, cap int) []string {
	merged := make([]string, 0, len(confirmed)+len(existing))
	merged = append(merged, confirmed...)
	merged = append(merged, existing...)
	merged = lo.Uniq(merged)

	if cap > 0 && len(merged) > cap {
		merged = merged[:cap]
	}

	return merged
}
