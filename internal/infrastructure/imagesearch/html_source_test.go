package imagesearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"RecipeSwipe/internal/usecase"
)

const samplePage = `
<html>
  <head>
    <meta property="og:image" content="https://cdn.example.com/hero.jpg">
    <meta name="twitter:image" content="https://cdn.example.com/hero.jpg">
  </head>
  <body>
    <img src="/media/step1.jpg">
    <img src="data:image/gif;base64,R0lGOD" data-src="lazy/step2.jpg">
    <img src="https://www.pinterest.com/pin/1.jpg">
    <img alt="no source">
  </body>
</html>`

func TestExtractImages(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(samplePage))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	base, _ := url.Parse("https://recipes.example.com/soup/index.html")

	got := extractImages(doc, base)
	want := []string{
		"https://cdn.example.com/hero.jpg",
		"https://cdn.example.com/hero.jpg",
		"https://recipes.example.com/media/step1.jpg",
		"https://recipes.example.com/soup/lazy/step2.jpg",
		"https://www.pinterest.com/pin/1.jpg",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected images:\n got %v\nwant %v", got, want)
	}
}

func TestCandidates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	src := NewHTMLCandidateSource(srv.Client(), usecase.DefaultBlockedDomains, 2)
	got, err := src.Candidates(context.Background(), srv.URL+"/soup/")
	if err != nil {
		t.Fatalf("Candidates returned error: %v", err)
	}

	want := []string{"https://cdn.example.com/hero.jpg", srv.URL + "/media/step1.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected candidates:\n got %v\nwant %v", got, want)
	}
}

func TestCandidatesBadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	_, err := NewHTMLCandidateSource(nil, nil, 0).Candidates(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "410") {
		t.Fatalf("expected status error, got %v", err)
	}
}
