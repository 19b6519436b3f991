// Package content fills in body text for link-only posts by fetching
// the linked page and running readability extraction over it. Posts
// that already carry content are left alone.
package content

import (
	"context"
	"log"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"demandradar/internal/httpclient"
	"demandradar/internal/model"
)

const minExtractedLen = 100

// Result holds the results of a content fill run.
type Result struct {
	Filled  int
	Skipped int
	Failed  int
}

// Filler fetches linked pages for posts with empty bodies.
type Filler struct {
	client *httpclient.Client
}

// New creates a content filler.
func New(client *httpclient.Client) *Filler {
	return &Filler{client: client}
}

// FillMissing fills empty post bodies in place where a link URL is
// available. Domains that fail once are skipped for the rest of the
// run.
func (f *Filler) FillMissing(ctx context.Context, posts []model.RawPost) Result {
	var r Result
	failedDomains := make(map[string]struct{})

	for i := range posts {
		if posts[i].Content != "" {
			r.Skipped++
			continue
		}
		link, ok := posts[i].Metadata["link_url"].(string)
		if !ok || link == "" {
			r.Skipped++
			continue
		}

		domain := hostOf(link)
		if _, failed := failedDomains[domain]; failed {
			r.Failed++
			continue
		}

		text, err := f.fetchText(ctx, link)
		if err != nil {
			r.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			log.Printf("Content fetch failed for %s — skipping remaining from %s", link, domain)
			continue
		}
		if text == "" {
			r.Failed++
			continue
		}

		posts[i].Content = text
		r.Filled++
	}

	log.Printf("Content fill complete: %d filled, %d skipped, %d failed", r.Filled, r.Skipped, r.Failed)
	return r
}

func (f *Filler) fetchText(ctx context.Context, link string) (string, error) {
	body, err := f.client.Get(ctx, link, nil)
	if err != nil {
		return "", err
	}

	parsedURL, _ := url.Parse(link)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < minExtractedLen {
		return "", nil
	}
	return text, nil
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
