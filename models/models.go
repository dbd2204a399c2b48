package models

import "time"

// FeedItem is a single article parsed from a syndication feed. Items are
// produced fresh on every fetch and discarded after one cycle.
type FeedItem struct {
	Link        string    `json:"link"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

// AdaptedImage is a downloaded preview image, possibly re-encoded to fit
// the upload size ceiling. Lives only for the duration of one article.
type AdaptedImage struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mimeType"`
}

// LinkCard is the external link preview attached to a post.
type LinkCard struct {
	Uri         string        `json:"uri"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Thumb       *AdaptedImage `json:"thumb,omitempty"`
}

// PostPayload is a fully composed post ready for submission.
type PostPayload struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Card      LinkCard  `json:"card"`
}

// Stages at which processing of a single article can fail.
const (
	StageImage   = "image"
	StagePublish = "publish"
)

// PostResult records the per-article outcome of a cycle.
type PostResult struct {
	Link   string `json:"link"`
	Posted bool   `json:"posted"`
	Uri    string `json:"uri,omitempty"`
	Stage  string `json:"stage,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CycleReport summarises one full poll/post/ledger cycle for a feed.
type CycleReport struct {
	Feed           string       `json:"feed"`
	StartedAt      time.Time    `json:"startedAt"`
	Duration       string       `json:"duration"`
	FeedItems      int          `json:"feedItems"`
	NewItems       int          `json:"newItems"`
	Suppressed     int          `json:"suppressed"`
	Results        []PostResult `json:"results"`
	LedgerWritten  bool         `json:"ledgerWritten"`
	LedgerConflict bool         `json:"ledgerConflict"`
}
