package bot

import (
	"strings"
	"time"

	"skypost/models"
)

// Compose builds the post payload for one article. The post text is the
// item summary, falling back to the title when the summary is blank.
// Pure apart from the creation timestamp; no network, no side effects.
func Compose(item models.FeedItem, img *models.AdaptedImage) models.PostPayload {
	text := strings.TrimSpace(item.Summary)
	if text == "" {
		text = item.Title
	}

	return models.PostPayload{
		Text:      text,
		CreatedAt: time.Now().UTC(),
		Card: models.LinkCard{
			Uri:         item.Link,
			Title:       item.Title,
			Description: text,
			Thumb:       img,
		},
	}
}
