package imagesearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"RecipeSwipe/internal/ports"
	"RecipeSwipe/internal/usecase"
)

const defaultMaxCandidates = 10

// HTMLCandidateSource extracts candidate recipe images from a web page.
type HTMLCandidateSource struct {
	client  *http.Client
	blocked []string
	limit   int
}

var _ ports.CandidateSource = (*HTMLCandidateSource)(nil)

// NewHTMLCandidateSource wires an HTTP client; limit defaults to 10.
func NewHTMLCandidateSource(client *http.Client, blocked []string, limit int) *HTMLCandidateSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if limit <= 0 {
		limit = defaultMaxCandidates
	}
	return &HTMLCandidateSource{client: client, blocked: blocked, limit: limit}
}

// Candidates returns absolute image URLs found on pageURL, social preview
// images first.
func (s *HTMLCandidateSource) Candidates(ctx context.Context, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	urls := usecase.FilterCandidates(extractImages(doc, base), s.blocked)
	if len(urls) > s.limit {
		urls = urls[:s.limit]
	}
	return urls, nil
}

func (s *HTMLCandidateSource) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "RecipeSwipe/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image source page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func extractImages(doc *goquery.Document, base *url.URL) []string {
	var raw []string

	doc.Find(`meta[property="og:image"], meta[property="og:image:url"]`).Each(func(_ int, m *goquery.Selection) {
		if content, ok := m.Attr("content"); ok {
			raw = append(raw, content)
		}
	})
	doc.Find(`meta[name="twitter:image"]`).Each(func(_ int, m *goquery.Selection) {
		if content, ok := m.Attr("content"); ok {
			raw = append(raw, content)
		}
	})
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || strings.HasPrefix(src, "data:") {
			src, ok = img.Attr("data-src")
		}
		if ok {
			raw = append(raw, src)
		}
	})

	out := make([]string, 0, len(raw))
	for _, ref := range raw {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		u, err := base.Parse(ref)
		if err != nil {
			continue
		}
		out = append(out, u.String())
	}
	return out
}
