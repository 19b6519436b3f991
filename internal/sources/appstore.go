package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"demandradar/internal/config"
	"demandradar/internal/httpclient"
	"demandradar/internal/model"
)

const itunesBase = "https://itunes.apple.com"

// AppStoreAdapter fetches customer reviews for an app via the iTunes
// RSS review feed and searches the store for competing apps.
type AppStoreAdapter struct {
	client  *httpclient.Client
	baseURL string
	country string
	parser  *gofeed.Parser
}

// NewAppStore creates an App Store adapter.
func NewAppStore(cfg config.AppStoreSource, client *httpclient.Client) *AppStoreAdapter {
	country := cfg.Country
	if country == "" {
		country = "us"
	}
	return &AppStoreAdapter{
		client:  client,
		baseURL: itunesBase,
		country: country,
		parser:  gofeed.NewParser(),
	}
}

// SetBaseURL points the adapter at a different endpoint, for tests.
func (a *AppStoreAdapter) SetBaseURL(u string) { a.baseURL = u }

func (a *AppStoreAdapter) Name() string { return "appstore" }

// FetchBatch fetches the most recent reviews for one app id.
func (a *AppStoreAdapter) FetchBatch(ctx context.Context, appID string, limit int) ([]model.RawPost, error) {
	endpoint := fmt.Sprintf("%s/%s/rss/customerreviews/page=1/id=%s/sortby=mostrecent/xml",
		a.baseURL, a.country, url.PathEscape(appID))

	body, err := a.client.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	feed, err := a.parser.ParseString(string(body))
	if err != nil {
		return nil, &model.PermanentError{Op: "parsing appstore review feed", Err: err}
	}

	now := nowFunc()
	appURL := fmt.Sprintf("https://apps.apple.com/%s/app/id%s", a.country, appID)

	var posts []model.RawPost
	for _, item := range feed.Items {
		rating, ok := imExtension(item, "rating")
		if !ok {
			// The feed's lead entry describes the app itself and
			// carries no rating.
			continue
		}
		score, _ := strconv.Atoi(rating)

		created := item.UpdatedParsed
		if created == nil {
			created = item.PublishedParsed
		}

		author := ""
		if item.Author != nil {
			author = item.Author.Name
		}

		version, _ := imExtension(item, "version")

		posts = append(posts, model.RawPost{
			ID:           item.GUID,
			Title:        item.Title,
			Content:      strings.TrimSpace(item.Content),
			URL:          appURL,
			Source:       "appstore/reviews/" + appID,
			Score:        score,
			CreatedAt:    timestampOr(created, now),
			CommentCount: 0,
			Author:       author,
			Metadata: map[string]any{
				"app_id":  appID,
				"version": version,
				"rating":  score,
			},
		})
	}

	return truncate(posts, limit), nil
}

// imExtension reads a value from the feed's itunes "im" namespace.
func imExtension(item *gofeed.Item, name string) (string, bool) {
	ns, ok := item.Extensions["im"]
	if !ok {
		return "", false
	}
	exts, ok := ns[name]
	if !ok || len(exts) == 0 {
		return "", false
	}
	return exts[0].Value, true
}

type itunesSearchResult struct {
	Results []struct {
		TrackID           int64   `json:"trackId"`
		TrackName         string  `json:"trackName"`
		AverageUserRating float64 `json:"averageUserRating"`
		TrackViewURL      string  `json:"trackViewUrl"`
	} `json:"results"`
}

// SearchCompetitors searches the store for software matching each
// keyword and returns the union, capped at limit results per keyword.
func (a *AppStoreAdapter) SearchCompetitors(ctx context.Context, keywords []string, limit int) ([]model.Competitor, error) {
	var competitors []model.Competitor
	for _, keyword := range keywords {
		endpoint := fmt.Sprintf("%s/search?term=%s&country=%s&entity=software&limit=%d",
			a.baseURL, url.QueryEscape(keyword), a.country, limit)

		var result itunesSearchResult
		if err := a.client.GetJSON(ctx, endpoint, nil, &result); err != nil {
			return competitors, err
		}

		for _, r := range result.Results {
			competitors = append(competitors, model.Competitor{
				ID:     strconv.FormatInt(r.TrackID, 10),
				Name:   r.TrackName,
				Rating: r.AverageUserRating,
				URL:    r.TrackViewURL,
				Store:  "appstore",
			})
		}
	}
	return competitors, nil
}
