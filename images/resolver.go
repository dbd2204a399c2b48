// Package images locates and size-adapts article preview images.
package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"skypost/models"
)

var (
	imagesResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skypost_images_resolved_total",
		Help: "The total number of preview images successfully resolved",
	})

	imagesShrunk = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skypost_images_shrunk_total",
		Help: "The total number of preview images re-encoded to fit the upload ceiling",
	})
)

const (
	// Cap on how much of an article page we read looking for meta tags
	maxPageBytes = 1 << 20

	downloadRetries = 2
)

// Resolver fetches an article page, scrapes its og:image meta tag and
// downloads the image, adapting it to the configured byte ceiling.
type Resolver struct {
	http    *http.Client
	ceiling int
}

func NewResolver(ceiling int, timeout time.Duration) *Resolver {
	return &Resolver{
		http:    &http.Client{Timeout: timeout},
		ceiling: ceiling,
	}
}

// Resolve returns the adapted preview image for an article link, or
// (nil, nil) when the page declares no preview image. Fetch errors are
// returned to the caller, which degrades to a post without a thumbnail;
// only ErrUnrecoverable signals that the image exists but cannot fit.
func (r *Resolver) Resolve(ctx context.Context, link string) (*models.AdaptedImage, error) {
	imgURL, err := r.previewImageURL(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape preview image: %w", err)
	}
	if imgURL == "" {
		log.WithFields(log.Fields{
			"link": link,
		}).Info("No preview image declared by article page")
		return nil, nil
	}

	data, mimeType, err := r.download(ctx, imgURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download preview image: %w", err)
	}

	if len(data) <= r.ceiling {
		imagesResolved.Inc()
		return &models.AdaptedImage{Data: data, MimeType: mimeType}, nil
	}

	shrunk, err := Shrink(data, r.ceiling)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"link":     link,
		"original": len(data),
		"shrunk":   len(shrunk),
	}).Info("Re-encoded preview image to fit upload ceiling")
	imagesResolved.Inc()
	imagesShrunk.Inc()

	return &models.AdaptedImage{Data: shrunk, MimeType: "image/jpeg"}, nil
}

// previewImageURL scrapes the og:image meta tag from the article page.
// Returns an empty string when the page has no such tag.
func (r *Resolver) previewImageURL(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("article page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}

	content, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content")
	if !ok || content == "" {
		return "", nil
	}

	// Resolve relative image URLs against the article URL
	base, err := url.Parse(link)
	if err != nil {
		return content, nil
	}
	ref, err := url.Parse(content)
	if err != nil {
		return "", fmt.Errorf("invalid og:image URL %q: %w", content, err)
	}

	return base.ResolveReference(ref).String(), nil
}

// download fetches the image bytes with a couple of retries for
// transient failures.
func (r *Resolver) download(ctx context.Context, imgURL string) ([]byte, string, error) {
	var data []byte
	var mimeType string

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imgURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := r.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("image returned status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		data = body
		mimeType = resp.Header.Get("Content-Type")
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), downloadRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, "", err
	}

	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	return data, mimeType, nil
}
