package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"RecipeSwipe/internal/domain"
	"RecipeSwipe/internal/ports"
)

// HTTPStore resolves recipe keys against the public image bucket.
type HTTPStore struct {
	baseURL  string
	cacheDir string
	remote   bool
	http     *http.Client
}

var _ ports.ImageStore = (*HTTPStore)(nil)

// NewHTTPStore builds a store. In remote mode images are only checked for
// existence and served by URL; otherwise they are downloaded to cacheDir.
func NewHTTPStore(baseURL, cacheDir string, remote bool, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPStore{
		baseURL:  strings.TrimRight(baseURL, "/"),
		cacheDir: cacheDir,
		remote:   remote,
		http:     &http.Client{Timeout: timeout},
	}
}

// URL returns the public address of the image for key.
func (s *HTTPStore) URL(key string) string {
	return s.baseURL + "/images/" + url.PathEscape(key) + ".jpg"
}

// Fetch returns the image for key.
func (s *HTTPStore) Fetch(ctx context.Context, key string) (*domain.Image, error) {
	filename := key + ".jpg"
	if s.remote {
		if err := s.head(ctx, key); err != nil {
			return nil, err
		}
		return domain.NewImage(key, filename, s.URL(key), nil), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", key, err)
	}
	defer resp.Body.Close()
	if err := checkImage(resp, key); err != nil {
		return nil, err
	}

	if s.cacheDir != "" {
		if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	f, err := os.CreateTemp(s.cacheDir, "recipe-"+safeName(key)+"-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("download image %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	return domain.NewImage(key, filename, path, func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}), nil
}

func (s *HTTPStore) head(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.URL(key), nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("check image %s: %w", key, err)
	}
	defer resp.Body.Close()
	return checkImage(resp, key)
}

func checkImage(resp *http.Response, key string) error {
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("image %s: %w", key, domain.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return &domain.BackendError{Status: resp.StatusCode, Message: "image " + key}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") && !strings.HasPrefix(ct, "application/octet-stream") {
		return fmt.Errorf("image %s: unexpected content type %q", key, ct)
	}
	return nil
}

func safeName(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, key)
}
