package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"commit-reveal-voting/auth"
	"commit-reveal-voting/election"
	"commit-reveal-voting/models"
	"commit-reveal-voting/service"
)

var kindStatus = map[election.Kind]int{
	election.KindWrongPhase:         http.StatusConflict,
	election.KindTooEarly:           http.StatusConflict,
	election.KindAlreadyRegistered:  http.StatusConflict,
	election.KindAlreadyCommitted:   http.StatusConflict,
	election.KindAlreadyAnchored:    http.StatusConflict,
	election.KindAlreadyTallied:     http.StatusConflict,
	election.KindInvalidSignature:   http.StatusForbidden,
	election.KindNotRegistered:      http.StatusForbidden,
	election.KindUnauthorized:       http.StatusForbidden,
	election.KindCommitmentMismatch: http.StatusUnprocessableEntity,
	election.KindUnknownCandidate:   http.StatusUnprocessableEntity,
	election.KindNotCommitted:       http.StatusUnprocessableEntity,
	election.KindInvalidCandidate:   http.StatusUnprocessableEntity,
	election.KindInvalidWindow:      http.StatusBadRequest,
}

// classify maps err to an HTTP status and a kind string for the client.
func classify(err error) (int, string) {
	if kind := election.KindOf(err); kind != "" {
		if status, ok := kindStatus[kind]; ok {
			return status, string(kind)
		}
		return http.StatusBadRequest, string(kind)
	}
	switch {
	case errors.Is(err, models.ErrInvalidTransaction):
		return http.StatusBadRequest, "InvalidTransaction"
	case errors.Is(err, service.ErrQueueFull):
		return http.StatusServiceUnavailable, "QueueFull"
	case errors.Is(err, service.ErrStopped), errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable, "Unavailable"
	case errors.Is(err, auth.ErrAlreadyAuthorized):
		return http.StatusConflict, "AlreadyAuthorized"
	case errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest, "InvalidRequest"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "Timeout"
	}
	return http.StatusInternalServerError, "Internal"
}

func respondError(c *gin.Context, err error) {
	status, kind := classify(err)
	abortWithError(c, status, kind, err)
}

func abortWithError(c *gin.Context, status int, kind string, err error) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      err.Error(),
		"kind":       kind,
		"request_id": c.GetString("request_id"),
	})
}
