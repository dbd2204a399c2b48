// Package bot orchestrates one poll/post/ledger cycle per feed.
package bot

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"skypost/images"
	"skypost/ledger"
	"skypost/models"
)

// FeedSource supplies the current feed items.
type FeedSource interface {
	Fetch(ctx context.Context) ([]models.FeedItem, error)
}

// ImageResolver produces the adapted preview image for an article link.
// A (nil, nil) return means the article has no preview image.
type ImageResolver interface {
	Resolve(ctx context.Context, link string) (*models.AdaptedImage, error)
}

// Poster submits one composed post and returns its record URI.
type Poster interface {
	PublishPost(ctx context.Context, payload models.PostPayload) (string, error)
}

// LoginFunc authenticates against the posting service. Called once per
// cycle, and only when there is something to post.
type LoginFunc func(ctx context.Context) (Poster, error)

type Config struct {
	FeedID       string
	RetentionCap int
	ImageWorkers int
	Include      []string
	Exclude      []string
}

// Bot runs cycles for a single feed.
type Bot struct {
	cfg      Config
	source   FeedSource
	store    ledger.Store
	resolver ImageResolver
	login    LoginFunc
}

func New(cfg Config, source FeedSource, store ledger.Store, resolver ImageResolver, login LoginFunc) *Bot {
	if cfg.ImageWorkers <= 0 {
		cfg.ImageWorkers = 4
	}
	return &Bot{
		cfg:      cfg,
		source:   source,
		store:    store,
		resolver: resolver,
		login:    login,
	}
}

// RunCycle performs one full cycle: read feed and ledger concurrently,
// filter out already-posted items, resolve images, post oldest first,
// then write the confirmed links back to the ledger. A feed or ledger
// read failure aborts the cycle before any post (fail closed);
// everything after that point degrades per article.
func (b *Bot) RunCycle(ctx context.Context) (*models.CycleReport, error) {
	start := time.Now()
	cyclesTotal.Inc()
	defer func() {
		cycleDuration.Observe(time.Since(start).Seconds())
	}()

	report := &models.CycleReport{
		Feed:      b.cfg.FeedID,
		StartedAt: start.UTC(),
		Results:   []models.PostResult{},
	}

	var items []models.FeedItem
	var entries []string
	var version string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = b.source.Fetch(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		entries, version, err = b.store.Read(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		cycleErrors.Inc()
		return nil, err
	}

	report.FeedItems = len(items)
	if len(items) == 0 {
		log.WithFields(log.Fields{
			"feed": b.cfg.FeedID,
		}).Warn("Feed returned no items, aborting cycle")
		report.Duration = time.Since(start).String()
		return report, nil
	}

	fresh := ledger.NewItems(items, entries)
	postable, suppressed := partitionByKeywords(fresh, b.cfg.Include, b.cfg.Exclude)

	report.NewItems = len(fresh)
	report.Suppressed = len(suppressed)

	log.WithFields(log.Fields{
		"feed":       b.cfg.FeedID,
		"items":      len(items),
		"new":        len(fresh),
		"suppressed": len(suppressed),
	}).Info("Computed new items for cycle")

	confirmed := b.publish(ctx, postable, report)

	// Suppressed items are recorded as handled so they do not resurface
	// on every subsequent cycle.
	for _, item := range suppressed {
		confirmed = append(confirmed, item.Link)
	}

	if len(confirmed) > 0 {
		merged := ledger.Merge(confirmed, entries, b.cfg.RetentionCap)
		if err := b.store.Write(ctx, merged, version); err != nil {
			if errors.Is(err, ledger.ErrConflict) {
				// A concurrent invocation moved the ledger; skip this
				// write and let the next cycle converge.
				ledgerConflicts.Inc()
				report.LedgerConflict = true
				log.WithFields(log.Fields{
					"feed": b.cfg.FeedID,
				}).Warn("Ledger version conflict, skipping write for this cycle")
			} else {
				log.WithFields(log.Fields{
					"feed":  b.cfg.FeedID,
					"error": err,
				}).Error("Failed to write ledger")
			}
		} else {
			report.LedgerWritten = true
		}
	}

	report.Duration = time.Since(start).String()
	return report, nil
}

// publish resolves images for the postable items, authenticates once,
// and posts sequentially oldest first. Returns the links confirmed
// posted, in confirmation order.
func (b *Bot) publish(ctx context.Context, postable []models.FeedItem, report *models.CycleReport) []string {
	if len(postable) == 0 {
		return nil
	}

	// Fan out image resolution; articles are independent.
	resolved := make([]*models.AdaptedImage, len(postable))
	imgErrs := make([]error, len(postable))

	var g errgroup.Group
	g.SetLimit(b.cfg.ImageWorkers)
	for i, item := range postable {
		g.Go(func() error {
			img, err := b.resolver.Resolve(ctx, item.Link)
			if err != nil {
				imgErrs[i] = err
				return nil
			}
			resolved[i] = img
			return nil
		})
	}
	g.Wait()

	poster, err := b.login(ctx)
	if err != nil {
		log.WithFields(log.Fields{
			"feed":  b.cfg.FeedID,
			"error": err,
		}).Error("Failed to authenticate, no posts this cycle")
		for _, item := range postable {
			report.Results = append(report.Results, models.PostResult{
				Link:  item.Link,
				Stage: models.StagePublish,
				Error: err.Error(),
			})
		}
		return nil
	}

	var confirmed []string
	for i, item := range postable {
		if imgErr := imgErrs[i]; imgErr != nil {
			if errors.Is(imgErr, images.ErrUnrecoverable) {
				// The image exists but cannot fit the upload ceiling;
				// omit the article rather than post a broken card.
				postFailures.WithLabelValues(models.StageImage).Inc()
				report.Results = append(report.Results, models.PostResult{
					Link:  item.Link,
					Stage: models.StageImage,
					Error: imgErr.Error(),
				})
				continue
			}
			log.WithFields(log.Fields{
				"feed":  b.cfg.FeedID,
				"link":  item.Link,
				"error": imgErr,
			}).Warn("Image resolution failed, posting without thumbnail")
		}

		payload := Compose(item, resolved[i])
		uri, err := poster.PublishPost(ctx, payload)
		if err != nil {
			postFailures.WithLabelValues(models.StagePublish).Inc()
			report.Results = append(report.Results, models.PostResult{
				Link:  item.Link,
				Stage: models.StagePublish,
				Error: err.Error(),
			})
			log.WithFields(log.Fields{
				"feed":  b.cfg.FeedID,
				"link":  item.Link,
				"error": err,
			}).Error("Failed to post article")
			continue
		}

		postsTotal.Inc()
		confirmed = append(confirmed, item.Link)
		report.Results = append(report.Results, models.PostResult{
			Link:   item.Link,
			Posted: true,
			Uri:    uri,
		})
		log.WithFields(log.Fields{
			"feed": b.cfg.FeedID,
			"link": item.Link,
			"uri":  uri,
		}).Info("Posted article")
	}

	return confirmed
}
