package sources

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"demandradar/internal/config"
	"demandradar/internal/httpclient"
	"demandradar/internal/model"
)

const chromeStoreBase = "https://chromewebstore.google.com"

// ChromeStoreAdapter scrapes the Chrome Web Store category pages.
// There is no public API, so fields come from selector-based
// extraction over the rendered listing cards.
type ChromeStoreAdapter struct {
	client  *httpclient.Client
	baseURL string
}

// NewChromeStore creates a Chrome Web Store adapter.
func NewChromeStore(_ config.ChromeStoreSource, client *httpclient.Client) *ChromeStoreAdapter {
	return &ChromeStoreAdapter{client: client, baseURL: chromeStoreBase}
}

// SetBaseURL points the adapter at a different endpoint, for tests.
func (a *ChromeStoreAdapter) SetBaseURL(u string) { a.baseURL = u }

func (a *ChromeStoreAdapter) Name() string { return "chromestore" }

// extension is one listing card from a category page.
type extension struct {
	ID     string
	Name   string
	Rating float64
	Users  int
	URL    string
}

// FetchBatch scrapes the category page and converts each extension
// listing into a RawPost. Listings carry no timestamp or vote count,
// so those fall back to ingestion time and zero.
func (a *ChromeStoreAdapter) FetchBatch(ctx context.Context, category string, limit int) ([]model.RawPost, error) {
	extensions, err := a.fetchCategory(ctx, category, limit)
	if err != nil {
		return nil, err
	}

	now := nowFunc()
	var posts []model.RawPost
	for _, ext := range extensions {
		posts = append(posts, model.RawPost{
			ID:        ext.ID,
			Title:     ext.Name,
			URL:       ext.URL,
			Source:    "chromestore/" + category,
			Score:     0,
			CreatedAt: now,
			Metadata: map[string]any{
				"rating": ext.Rating,
				"users":  ext.Users,
			},
		})
	}

	return truncate(posts, limit), nil
}

// SearchCompetitors matches keywords against the names of the top
// extensions in the default category. Name substring matching is a
// deliberately simple heuristic; scoring semantics depend on it.
func (a *ChromeStoreAdapter) SearchCompetitors(ctx context.Context, keywords []string, limit int) ([]model.Competitor, error) {
	extensions, err := a.fetchCategory(ctx, "extensions", limit)
	if err != nil {
		return nil, err
	}

	var competitors []model.Competitor
	for _, ext := range extensions {
		name := strings.ToLower(ext.Name)
		for _, keyword := range keywords {
			if strings.Contains(name, strings.ToLower(keyword)) {
				competitors = append(competitors, model.Competitor{
					ID:     ext.ID,
					Name:   ext.Name,
					Rating: ext.Rating,
					URL:    ext.URL,
					Store:  "chromestore",
				})
				break
			}
		}
	}
	return competitors, nil
}

func (a *ChromeStoreAdapter) fetchCategory(ctx context.Context, category string, limit int) ([]extension, error) {
	endpoint := a.baseURL + "/category/" + category + "?hl=en&gl=US"
	body, err := a.client.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &model.PermanentError{Op: "parsing chromestore HTML", Err: err}
	}

	seen := make(map[string]struct{})
	var extensions []extension

	doc.Find(`a[href*="/detail/"]`).EachWithBreak(func(_ int, card *goquery.Selection) bool {
		href, _ := card.Attr("href")
		ext, ok := parseCard(card, href)
		if !ok {
			return true
		}
		if _, dup := seen[ext.ID]; dup {
			return true
		}
		seen[ext.ID] = struct{}{}
		ext.URL = a.baseURL + "/detail/" + ext.ID
		extensions = append(extensions, ext)
		return limit <= 0 || len(extensions) < limit
	})

	return extensions, nil
}

var (
	ratingRe = regexp.MustCompile(`([0-5]\.\d)`)
	usersRe  = regexp.MustCompile(`([\d,.]+)\s*users`)
)

// parseCard extracts id, name, rating, and user count from one listing
// anchor. The store markup is obfuscated, so parsing leans on the
// detail-link shape and number patterns instead of class names.
func parseCard(card *goquery.Selection, href string) (extension, bool) {
	idx := strings.Index(href, "/detail/")
	if idx < 0 {
		return extension{}, false
	}
	path := strings.Trim(href[idx+len("/detail/"):], "/")
	segments := strings.Split(path, "/")
	id := segments[len(segments)-1]
	if id == "" {
		return extension{}, false
	}

	name := strings.TrimSpace(card.Find("h2").First().Text())
	if name == "" {
		name = strings.TrimSpace(card.AttrOr("aria-label", ""))
	}
	if name == "" {
		// Fall back to the first text line of the card.
		name = strings.TrimSpace(strings.SplitN(strings.TrimSpace(card.Text()), "\n", 2)[0])
	}
	if name == "" {
		return extension{}, false
	}

	ext := extension{ID: id, Name: name}

	text := card.Text()
	if m := ratingRe.FindStringSubmatch(text); m != nil {
		ext.Rating, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := usersRe.FindStringSubmatch(text); m != nil {
		digits := strings.NewReplacer(",", "", ".", "").Replace(m[1])
		ext.Users, _ = strconv.Atoi(digits)
	}

	return ext, true
}
