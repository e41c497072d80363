package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"RecipeSwipe/internal/domain"
)

// Messages shown to the user after a failed image selection or delete.
const (
	MsgTimeout     = "The request timed out. Please try again."
	MsgNotFound    = "Recipe not found. It may have already been deleted."
	MsgInvalid     = "That image URL is not valid. Please pick another image."
	MsgServer      = "The server ran into a problem. Please try again later."
	MsgSourceFetch = "Could not download that image from its source. Please pick another one."
	MsgNetwork     = "Network error. Check your connection and try again."
	MsgGeneric     = "Something went wrong. Please try again."

	MsgSaving   = "Saving..."
	MsgDeleting = "Deleting..."
	MsgSaved    = "Image saved"
	MsgDeleted  = "Recipe deleted"
)

type messageRule struct {
	message  string
	match    func(err error) bool
	keywords []string
}

// Order matters: the specific categories must win over "failed"/"network".
var messageRules = []messageRule{
	{
		message: MsgTimeout,
		match: func(err error) bool {
			return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrPollTimeout)
		},
		keywords: []string{"timeout", "timed out"},
	},
	{
		message: MsgNotFound,
		match: func(err error) bool {
			return errors.Is(err, domain.ErrNotFound) || backendStatus(err) == http.StatusNotFound
		},
		keywords: []string{"not found", "404"},
	},
	{
		message: MsgInvalid,
		match: func(err error) bool {
			return backendStatus(err) == http.StatusBadRequest
		},
		keywords: []string{"invalid", "400"},
	},
	{
		message: MsgServer,
		match: func(err error) bool {
			return backendStatus(err) >= http.StatusInternalServerError
		},
		keywords: []string{"server error", "internal", "500", "502", "503"},
	},
	{
		message:  MsgSourceFetch,
		keywords: []string{"fetch image", "download", "source"},
	},
	{
		message:  MsgNetwork,
		keywords: []string{"network", "connection", "failed"},
	},
}

// FriendlyMessage maps a raw error to one of a fixed set of user messages.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	text := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		if rule.match != nil && rule.match(err) {
			return rule.message
		}
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.message
			}
		}
	}
	return MsgGeneric
}

func backendStatus(err error) int {
	var be *domain.BackendError
	if errors.As(err, &be) {
		return be.Status
	}
	return 0
}
