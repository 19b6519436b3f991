package sources

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"demandradar/internal/config"
	"demandradar/internal/httpclient"
	"demandradar/internal/model"
)

const redditAPIBase = "https://www.reddit.com"

// RedditAdapter fetches top posts from subreddits via the public JSON
// listing endpoints.
type RedditAdapter struct {
	client    *httpclient.Client
	baseURL   string
	timeframe string
	token     string
}

// NewReddit creates a Reddit adapter. When the config names a token
// env var, a missing token is a startup failure for this adapter only.
func NewReddit(cfg config.RedditSource, client *httpclient.Client) (*RedditAdapter, error) {
	var token string
	if cfg.TokenEnv != "" {
		token = os.Getenv(cfg.TokenEnv)
		if token == "" {
			return nil, fmt.Errorf("reddit: credential %s is not set", cfg.TokenEnv)
		}
	}

	timeframe := cfg.Timeframe
	if timeframe == "" {
		timeframe = "week"
	}

	return &RedditAdapter{
		client:    client,
		baseURL:   redditAPIBase,
		timeframe: timeframe,
		token:     token,
	}, nil
}

// SetBaseURL points the adapter at a different endpoint, for tests.
func (a *RedditAdapter) SetBaseURL(u string) { a.baseURL = u }

func (a *RedditAdapter) Name() string { return "reddit" }

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	Score       int     `json:"score"`
	CreatedUTC  float64 `json:"created_utc"`
	NumComments int     `json:"num_comments"`
	Author      string  `json:"author"`
	Stickied    bool    `json:"stickied"`
	IsSelf      bool    `json:"is_self"`
	Domain      string  `json:"domain"`
	UpvoteRatio float64 `json:"upvote_ratio"`
}

// FetchBatch fetches the top posts of one subreddit.
func (a *RedditAdapter) FetchBatch(ctx context.Context, subreddit string, limit int) ([]model.RawPost, error) {
	endpoint := fmt.Sprintf("%s/r/%s/top.json?t=%s&limit=%d",
		a.baseURL, url.PathEscape(subreddit), url.QueryEscape(a.timeframe), limit)

	headers := map[string]string{"Accept": "application/json"}
	if a.token != "" {
		headers["Authorization"] = "Bearer " + a.token
	}

	var listing redditListing
	if err := a.client.GetJSON(ctx, endpoint, headers, &listing); err != nil {
		return nil, err
	}

	now := nowFunc()
	var posts []model.RawPost
	for _, child := range listing.Data.Children {
		p := child.Data
		if p.ID == "" || p.Title == "" {
			continue
		}

		created := now
		if p.CreatedUTC > 0 {
			created = time.Unix(int64(p.CreatedUTC), 0)
		}

		meta := map[string]any{
			"subreddit":    subreddit,
			"stickied":     p.Stickied,
			"is_self":      p.IsSelf,
			"domain":       p.Domain,
			"upvote_ratio": p.UpvoteRatio,
		}
		if !p.IsSelf && p.URL != "" {
			meta["link_url"] = p.URL
		}

		posts = append(posts, model.RawPost{
			ID:           p.ID,
			Title:        p.Title,
			Content:      p.Selftext,
			URL:          redditAPIBase + p.Permalink,
			Source:       "reddit/r/" + subreddit,
			Score:        p.Score,
			CreatedAt:    created,
			CommentCount: p.NumComments,
			Author:       p.Author,
			Metadata:     meta,
		})
	}

	return truncate(posts, limit), nil
}
