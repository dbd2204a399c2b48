// Package feed fetches and normalises syndication feeds.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"

	"skypost/models"
)

const fetchRetries = 2

// Fetcher pulls and parses a single RSS/Atom feed.
type Fetcher struct {
	url     string
	timeout time.Duration
	parser  *gofeed.Parser
}

func NewFetcher(url string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		url:     url,
		timeout: timeout,
		parser:  gofeed.NewParser(),
	}
}

// Fetch retrieves the feed and maps its items, retrying transient
// failures with exponential backoff. Items without a link are dropped;
// items without a parseable publish time sort as oldest.
func (f *Fetcher) Fetch(ctx context.Context) ([]models.FeedItem, error) {
	var parsed *gofeed.Feed

	operation := func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		feed, err := f.parser.ParseURLWithContext(f.url, fetchCtx)
		if err != nil {
			return err
		}
		parsed = feed
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), fetchRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", f.url, err)
	}

	items := make([]models.FeedItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry.Link == "" {
			log.WithFields(log.Fields{
				"feed":  f.url,
				"title": entry.Title,
			}).Warn("Skipping feed item without link")
			continue
		}

		var publishedAt time.Time
		if entry.PublishedParsed != nil {
			publishedAt = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			publishedAt = *entry.UpdatedParsed
		}

		items = append(items, models.FeedItem{
			Link:        entry.Link,
			Title:       entry.Title,
			Summary:     entry.Description,
			PublishedAt: publishedAt,
		})
	}

	return items, nil
}
