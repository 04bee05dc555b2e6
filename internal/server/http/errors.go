package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/backend"
	"github.com/roomiegr/roomie/internal/draft"
	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/wizard"
)

// errorBody is every non-2xx answer.
type errorBody struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Missing []string `json:"missing,omitempty"`
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{errs.ErrStepIncomplete, http.StatusUnprocessableEntity, "step_incomplete"},
	{errs.ErrReasonRequired, http.StatusUnprocessableEntity, "reason_required"},
	{errs.ErrValidation, http.StatusUnprocessableEntity, "validation"},
	{errs.ErrNotFound, http.StatusNotFound, "not_found"},
	{errs.ErrVersionConflict, http.StatusConflict, "version_conflict"},
	{errs.ErrAlreadyImpersonating, http.StatusConflict, "already_impersonating"},
	{errs.ErrNotImpersonating, http.StatusConflict, "not_impersonating"},
	{errs.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{errs.ErrDraftNotSaved, http.StatusConflict, "draft_not_saved"},
	{errs.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{errs.ErrForbidden, http.StatusForbidden, "forbidden"},
	{errs.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{draft.ErrClosed, http.StatusGone, "wizard_closed"},
}

// statusOf maps an error to an HTTP status and a stable code.
func statusOf(err error) (int, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	var be *backend.Error
	if errors.As(err, &be) {
		return http.StatusBadGateway, "backend"
	}
	return http.StatusInternalServerError, "internal"
}

// fail answers with the mapped error. Internal errors are logged and hidden from the client.
func (s *Server) fail(c *gin.Context, err error) {
	status, code := statusOf(err)
	body := errorBody{Error: err.Error(), Code: code}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("route", c.FullPath()), zap.String("code", code), zap.Error(err))
		if status == http.StatusInternalServerError {
			body.Error = "internal error"
		}
	}
	var inc *wizard.IncompleteError
	if errors.As(err, &inc) {
		body.Missing = inc.Labels
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: err.Error(), Code: "bad_request"})
}
