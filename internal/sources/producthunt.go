package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"demandradar/internal/config"
	"demandradar/internal/httpclient"
	"demandradar/internal/model"
)

// ProductHuntAdapter scrapes discussion posts from the Product Hunt
// forum page. The page embeds DiscussionForumPosting objects as
// JSON-LD, which is the only stable surface without API credentials.
type ProductHuntAdapter struct {
	client   *httpclient.Client
	forumURL string
}

// NewProductHunt creates a Product Hunt forum adapter.
func NewProductHunt(cfg config.ProductHuntSource, client *httpclient.Client) *ProductHuntAdapter {
	return &ProductHuntAdapter{client: client, forumURL: cfg.ForumURL}
}

// SetForumURL overrides the forum page URL, for tests.
func (a *ProductHuntAdapter) SetForumURL(u string) { a.forumURL = u }

func (a *ProductHuntAdapter) Name() string { return "producthunt" }

// ldPosting mirrors the JSON-LD DiscussionForumPosting shape.
type ldPosting struct {
	Type        string `json:"@type"`
	Headline    string `json:"headline"`
	Text        string `json:"text"`
	URL         string `json:"url"`
	DateCreated string `json:"dateCreated"`
	Author      struct {
		Name string `json:"name"`
	} `json:"author"`
	CommentCount         int             `json:"commentCount"`
	InteractionStatistic json.RawMessage `json:"interactionStatistic"`
}

type ldInteraction struct {
	InteractionType      string `json:"interactionType"`
	UserInteractionCount int    `json:"userInteractionCount"`
}

// FetchBatch scrapes the forum page. The selector is unused; Product
// Hunt exposes a single general discussion feed.
func (a *ProductHuntAdapter) FetchBatch(ctx context.Context, _ string, limit int) ([]model.RawPost, error) {
	body, err := a.client.Get(ctx, a.forumURL, nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &model.PermanentError{Op: "parsing producthunt HTML", Err: err}
	}

	now := nowFunc()
	var posts []model.RawPost

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, posting := range decodePostings([]byte(s.Text())) {
			if p, ok := a.toRawPost(posting, now); ok {
				posts = append(posts, p)
			}
			if limit > 0 && len(posts) >= limit {
				return false
			}
		}
		return true
	})

	return truncate(posts, limit), nil
}

// decodePostings extracts DiscussionForumPosting objects from one
// JSON-LD block, which may be a single object, an array, or a @graph.
func decodePostings(data []byte) []ldPosting {
	var out []ldPosting

	var single ldPosting
	if err := json.Unmarshal(data, &single); err == nil && single.Type == "DiscussionForumPosting" {
		return []ldPosting{single}
	}

	var list []ldPosting
	if err := json.Unmarshal(data, &list); err == nil {
		for _, p := range list {
			if p.Type == "DiscussionForumPosting" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	var graph struct {
		Graph []ldPosting `json:"@graph"`
	}
	if err := json.Unmarshal(data, &graph); err == nil {
		for _, p := range graph.Graph {
			if p.Type == "DiscussionForumPosting" {
				out = append(out, p)
			}
		}
	}

	return out
}

func (a *ProductHuntAdapter) toRawPost(posting ldPosting, now time.Time) (model.RawPost, bool) {
	if posting.URL == "" || posting.Headline == "" {
		return model.RawPost{}, false
	}

	created := now
	if posting.DateCreated != "" {
		if t, err := time.Parse(time.RFC3339, posting.DateCreated); err == nil {
			created = t
		}
	}

	segments := strings.Split(strings.TrimRight(posting.URL, "/"), "/")
	id := segments[len(segments)-1]

	votes := likeCount(posting.InteractionStatistic)

	return model.RawPost{
		ID:           id,
		Title:        posting.Headline,
		Content:      posting.Text,
		URL:          posting.URL,
		Source:       "producthunt/discussions",
		Score:        votes,
		CreatedAt:    created,
		CommentCount: posting.CommentCount,
		Author:       posting.Author.Name,
		Metadata: map[string]any{
			"author_name": posting.Author.Name,
		},
	}, true
}

// likeCount pulls the LikeAction count out of interactionStatistic,
// which schema.org allows as either an object or an array.
func likeCount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var one ldInteraction
	if err := json.Unmarshal(raw, &one); err == nil && isLikeAction(one.InteractionType) {
		return one.UserInteractionCount
	}

	var many []ldInteraction
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, st := range many {
			if isLikeAction(st.InteractionType) {
				return st.UserInteractionCount
			}
		}
	}

	return 0
}

func isLikeAction(t string) bool {
	return strings.HasSuffix(t, "LikeAction")
}
