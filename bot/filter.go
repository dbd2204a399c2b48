package bot

import (
	"strings"

	"github.com/samber/lo"

	"skypost/models"
)

// partitionByKeywords splits new items into postable and suppressed.
// With a non-empty include list an item must match at least one include
// keyword; any exclude keyword match suppresses the item. Matching is
// case-insensitive against title and summary.
func partitionByKeywords(items []models.FeedItem, include, exclude []string) (postable, suppressed []models.FeedItem) {
	for _, item := range items {
		text := strings.ToLower(item.Title + " " + item.Summary)

		if len(include) > 0 && !matchesAny(text, include) {
			suppressed = append(suppressed, item)
			continue
		}
		if matchesAny(text, exclude) {
			suppressed = append(suppressed, item)
			continue
		}
		postable = append(postable, item)
	}
	return postable, suppressed
}

func matchesAny(text string, keywords []string) bool {
	return lo.SomeBy(keywords, func(keyword string) bool {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		return keyword != "" && strings.Contains(text, keyword)
	})
}
