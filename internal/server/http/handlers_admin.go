package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"

	"github.com/roomiegr/roomie/internal/errs"
)

type impersonateRequest struct {
	TargetUserID uuid.UUID `json:"target_user_id" binding:"required"`
	Reason       string    `json:"reason"`
}

type exitResponse struct {
	ExpiresAt time.Time `json:"admin_session_expires_at"`
}

func (s *Server) startImpersonation(c *gin.Context) {
	var req impersonateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	caller := callerOf(c)
	sess, err := s.d.Impersonation.Start(c.Request.Context(), caller.Storage, caller.Identity, caller.Tokens, req.TargetUserID, req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) exitImpersonation(c *gin.Context) {
	t, err := s.d.Impersonation.Exit(c.Request.Context(), callerOf(c).Storage)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, exitResponse{ExpiresAt: t.ExpiresAt})
}

func (s *Server) impersonationBanner(c *gin.Context) {
	banner, err := s.d.Impersonation.Banner(c.Request.Context(), callerOf(c).Storage)
	if err != nil {
		s.fail(c, err)
		return
	}
	if banner == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": true, "session": banner})
}

type reasonRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

// optionalBody binds a JSON body when one was sent.
func optionalBody(c *gin.Context, out any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

func (s *Server) pendingListings(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		s.fail(c, err)
		return
	}
	items, err := s.d.Admin.PendingListings(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": items})
}

func (s *Server) moderateListing(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if !optionalBody(c, &req) {
		return
	}
	if err := s.d.Admin.Moderate(c.Request.Context(), callerOf(c).Identity.UserID, id, c.Param("action"), req.Reason); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) pendingVerifications(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		s.fail(c, err)
		return
	}
	items, err := s.d.Verifications.Pending(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verifications": items})
}

func (s *Server) decideVerification(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if !optionalBody(c, &req) {
		return
	}
	v, err := s.d.Verifications.Decide(c.Request.Context(), callerOf(c).Identity.UserID, id, c.Param("action"), req.Note)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) scanPhotos(c *gin.Context) {
	report, err := s.d.Admin.ScanPhotos(c.Request.Context(), callerOf(c).Identity.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) activity(c *gin.Context) {
	since := time.Now().Add(-7 * 24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.fail(c, fmt.Errorf("%w: since must be RFC 3339", errs.ErrValidation))
			return
		}
		since = t
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		s.fail(c, err)
		return
	}
	entries, err := s.d.Admin.Activity(c.Request.Context(), since, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
