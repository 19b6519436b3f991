package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"demandradar/internal/config"
)

const appStoreFeedFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:im="http://itunes.apple.com/rss">
  <title>iTunes Store: Customer Reviews</title>
  <updated>2026-08-21T08:00:00-07:00</updated>
  <entry>
    <id>https://itunes.apple.com/us/app/notetaker/id123456</id>
    <title>NoteTaker</title>
    <im:name>NoteTaker</im:name>
  </entry>
  <entry>
    <id>review-1001</id>
    <title>Great app but no offline mode</title>
    <content type="text">I use it daily but it breaks without a connection.</content>
    <im:rating>3</im:rating>
    <im:version>2.4.0</im:version>
    <author><name>commuter_dev</name></author>
    <updated>2026-08-18T10:00:00-07:00</updated>
  </entry>
  <entry>
    <id>review-1002</id>
    <title>Love it</title>
    <content type="text">Exactly what I needed for meeting notes.</content>
    <im:rating>5</im:rating>
    <im:version>2.4.0</im:version>
    <author><name>pm_anna</name></author>
    <updated>2026-08-19T14:30:00-07:00</updated>
  </entry>
</feed>`

func TestAppStoreFetchBatch(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(appStoreFeedFixture))
	}))
	defer srv.Close()

	a := NewAppStore(config.AppStoreSource{Country: "us"}, testHTTPClient())
	a.SetBaseURL(srv.URL)

	posts, err := a.FetchBatch(context.Background(), "123456", 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/us/rss/customerreviews/page=1/id=123456/sortby=mostrecent/xml" {
		t.Errorf("unexpected path: %s", gotPath)
	}

	// The lead entry describes the app and carries no rating.
	if len(posts) != 2 {
		t.Fatalf("expected 2 review posts, got %d", len(posts))
	}

	p := posts[0]
	if p.ID != "review-1001" || p.Score != 3 || p.Author != "commuter_dev" {
		t.Errorf("unexpected post: %+v", p)
	}
	if p.Title != "Great app but no offline mode" {
		t.Errorf("unexpected title: %q", p.Title)
	}
	if p.Content != "I use it daily but it breaks without a connection." {
		t.Errorf("unexpected content: %q", p.Content)
	}
	if p.Source != "appstore/reviews/123456" {
		t.Errorf("unexpected source: %s", p.Source)
	}
	if p.URL != "https://apps.apple.com/us/app/id123456" {
		t.Errorf("unexpected url: %s", p.URL)
	}
	if p.Metadata["version"] != "2.4.0" || p.Metadata["rating"] != 3 {
		t.Errorf("unexpected metadata: %+v", p.Metadata)
	}
}

func TestAppStoreSearchCompetitors(t *testing.T) {
	var terms []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		term := r.URL.Query().Get("term")
		terms = append(terms, term)
		if r.URL.Query().Get("entity") != "software" {
			t.Errorf("expected entity=software, got %s", r.URL.RawQuery)
		}

		w.Header().Set("Content-Type", "application/json")
		switch term {
		case "notes":
			w.Write([]byte(`{"results": [
				{"trackId": 111, "trackName": "SuperNotes", "averageUserRating": 4.6, "trackViewUrl": "https://apps.apple.com/us/app/id111"},
				{"trackId": 222, "trackName": "QuickNote", "averageUserRating": 3.9, "trackViewUrl": "https://apps.apple.com/us/app/id222"}
			]}`))
		default:
			w.Write([]byte(`{"results": []}`))
		}
	}))
	defer srv.Close()

	a := NewAppStore(config.AppStoreSource{Country: "us"}, testHTTPClient())
	a.SetBaseURL(srv.URL)

	competitors, err := a.SearchCompetitors(context.Background(), []string{"notes", "offline"}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(terms) != 2 {
		t.Errorf("expected one search per keyword, got %v", terms)
	}
	if len(competitors) != 2 {
		t.Fatalf("expected 2 competitors, got %d", len(competitors))
	}
	c := competitors[0]
	if c.ID != "111" || c.Name != "SuperNotes" || c.Rating != 4.6 || c.Store != "appstore" {
		t.Errorf("unexpected competitor: %+v", c)
	}
}

func TestAppStoreFetchBatchBadFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not a feed"))
	}))
	defer srv.Close()

	a := NewAppStore(config.AppStoreSource{}, testHTTPClient())
	a.SetBaseURL(srv.URL)

	if _, err := a.FetchBatch(context.Background(), "123456", 25); err == nil {
		t.Error("expected error for unparseable feed")
	}
}
