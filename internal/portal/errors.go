package portal

import (
	"errors"
	"fmt"
	"net/http"

	"slotwatch/internal/models"
)

// Kind classifies a portal failure. The set is closed and drives both
// the resulting item status and the operator-facing message.
type Kind string

const (
	KindClient Kind = "CLIENT_ERROR" // HTTP 4xx, 401 singled out
	KindServer Kind = "SERVER_ERROR" // HTTP 5xx, transient
	KindHTML   Kind = "HTML_ERROR"   // error/login page instead of content
)

// Error is the typed failure returned whenever a portal response was
// obtained but unusable. Transport-level failures (DNS, refused
// connection) stay plain wrapped errors.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("portal %s (http %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("portal %s: %s", e.Kind, e.Message)
}

// Unauthorized reports whether the failure means the portal session is
// gone.
func (e *Error) Unauthorized() bool {
	switch e.Kind {
	case KindHTML:
		return true
	case KindClient:
		return true
	default:
		return false
	}
}

// Classify maps a fetch failure onto an item status and message.
// A whole date group receives the same resolution.
func Classify(err error) (status, message string) {
	var perr *Error
	if errors.As(err, &perr) {
		switch {
		case perr.Kind == KindClient && perr.StatusCode == http.StatusUnauthorized:
			return models.StatusAuthError, models.MsgAuthLost
		case perr.Kind == KindClient:
			return models.StatusAuthError, models.MsgAuthLost
		case perr.Kind == KindHTML:
			return models.StatusAuthError, models.MsgAuthLost
		case perr.Kind == KindServer:
			return models.StatusNetwork, models.MsgServerError
		}
	}

	// Anything else: transport failure or unknown shape.
	msg := models.MsgNetworkError
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return models.StatusNetwork, msg
}

// SetsUnauthorizedFlag reports whether a failure must raise the global
// unauthorized flag (the signal the auth-restoration handler watches).
func SetsUnauthorizedFlag(err error) bool {
	var perr *Error
	if !errors.As(err, &perr) {
		return false
	}
	return perr.Kind == KindClient && perr.StatusCode == http.StatusUnauthorized
}
