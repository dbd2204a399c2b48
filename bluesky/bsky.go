package bluesky

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/labstack/gommon/log"
	"github.com/rivo/uniseg"

	"skypost/models"
)

const DefaultPDSHost = "https://bsky.social"

// Bluesky caps post text at 300 graphemes
const maxPostLength = 300

type Credentials struct {
	Identifier string
	Password   string
}

type Client struct {
	xrpc *xrpc.Client
}

// ClientFromCredentials creates an authenticated session against the
// given PDS host. The timeout bounds each HTTP call made through the
// returned client, including the session creation itself.
func ClientFromCredentials(ctx context.Context, host string, creds *Credentials, timeout time.Duration) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	auth, err := atproto.ServerCreateSession(ctx, &xrpc.Client{Host: host, Client: httpClient}, &atproto.ServerCreateSession_Input{
		Identifier: creds.Identifier,
		Password:   creds.Password,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	xrpcClient := &xrpc.Client{
		Host: host,
		Auth: &xrpc.AuthInfo{
			AccessJwt:  auth.AccessJwt,
			RefreshJwt: auth.RefreshJwt,
			Handle:     auth.Handle,
			Did:        auth.Did,
		},
		Client: httpClient,
	}

	return &Client{xrpc: xrpcClient}, nil
}

// Handle returns the handle the session was created for.
func (c *Client) Handle() string {
	return c.xrpc.Auth.Handle
}

// Did returns the DID the session was created for.
func (c *Client) Did() string {
	return c.xrpc.Auth.Did
}

// UploadBlob uploads a blob (binary data like an image) to the Bluesky network.
// It takes a context and an io.Reader containing the blob data.
// Returns the uploaded blob's metadata or an error if the upload fails.
func (c *Client) UploadBlob(ctx context.Context, r io.Reader) (*lexutil.LexBlob, error) {
	resp, err := atproto.RepoUploadBlob(ctx, c.xrpc, r)
	if err != nil {
		return nil, fmt.Errorf("failed to upload blob: %w", err)
	}
	return resp.Blob, nil
}

// PublishPost creates an app.bsky.feed.post record with an external
// link card embed. If the payload carries an adapted image, the blob is
// uploaded first and referenced as the card thumbnail. Returns the
// at:// URI of the created record.
func (c *Client) PublishPost(ctx context.Context, payload models.PostPayload) (string, error) {
	var thumb *lexutil.LexBlob
	if payload.Card.Thumb != nil {
		blob, err := c.UploadBlob(ctx, bytes.NewReader(payload.Card.Thumb.Data))
		if err != nil {
			return "", fmt.Errorf("failed to upload thumbnail: %w", err)
		}
		thumb = blob
	}

	post := &bsky.FeedPost{
		Text:      truncate(payload.Text, maxPostLength),
		CreatedAt: FormatTime(payload.CreatedAt),
		Embed: &bsky.FeedPost_Embed{
			EmbedExternal: &bsky.EmbedExternal{
				External: &bsky.EmbedExternal_External{
					Uri:         payload.Card.Uri,
					Title:       payload.Card.Title,
					Description: payload.Card.Description,
					Thumb:       thumb,
				},
			},
		},
	}

	resp, err := atproto.RepoCreateRecord(ctx, c.xrpc, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       c.xrpc.Auth.Did,
		Record: &lexutil.LexiconTypeDecoder{
			Val: post,
		},
	})
	if err != nil {
		// Display the entire http response error so we can see what went wrong
		log.Errorf("failed to create post record: %s", err)
		return "", fmt.Errorf("failed to create post record: %w", err)
	}

	return resp.Uri, nil
}

// truncate shortens text to at most limit grapheme clusters, the unit
// Bluesky counts post length in, appending an ellipsis when it cuts.
func truncate(text string, limit int) string {
	if uniseg.GraphemeClusterCount(text) <= limit {
		return text
	}

	var b strings.Builder
	graphemes := uniseg.NewGraphemes(text)
	for i := 0; i < limit-1 && graphemes.Next(); i++ {
		b.WriteString(graphemes.Str())
	}
	b.WriteString("…")
	return b.String()
}

// FormatTime formats a time.Time into the format expected by AT Protocol
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
