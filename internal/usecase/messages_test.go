package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"RecipeSwipe/internal/domain"
)

func TestFriendlyMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("select image: %w", context.DeadlineExceeded), MsgTimeout},
		{"poll timeout", fmt.Errorf("batch: %w", domain.ErrPollTimeout), MsgTimeout},
		{"timeout beats failed", errors.New("failed: request timed out"), MsgTimeout},
		{"not found status", &domain.BackendError{Status: 404}, MsgNotFound},
		{"not found text", errors.New("Recipe not found"), MsgNotFound},
		{"invalid", errors.New("Invalid image URL"), MsgInvalid},
		{"bad request", &domain.BackendError{Status: 400, Message: "bad"}, MsgInvalid},
		{"server", &domain.BackendError{Status: 502}, MsgServer},
		{"server text", errors.New("Internal Server Error"), MsgServer},
		{"source fetch beats failed", errors.New("failed to download image from source"), MsgSourceFetch},
		{"network", errors.New("network request failed"), MsgNetwork},
		{"fallback", errors.New("boom"), MsgGeneric},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FriendlyMessage(tc.err))
		})
	}
}

func TestFilterCandidates(t *testing.T) {
	t.Parallel()

	got := FilterCandidates([]string{
		"https://cdn.example.com/a.jpg",
		"https://www.pinterest.com/pin.jpg",
		"https://lookaside.instagram.com/x.jpg",
		"ftp://example.com/b.jpg",
		"not a url",
		"https://cdn.example.com/a.jpg",
		"http://images.example.org/c.png",
	}, DefaultBlockedDomains)

	assert.Equal(t, []string{"https://cdn.example.com/a.jpg", "http://images.example.org/c.png"}, got)
}

func TestIsBlockedHost(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBlockedHost("x.com", DefaultBlockedDomains))
	assert.True(t, IsBlockedHost("m.facebook.com", DefaultBlockedDomains))
	assert.False(t, IsBlockedHost("box.com", DefaultBlockedDomains))
}
