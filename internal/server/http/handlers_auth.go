package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/authctx"
	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/search"
)

type signInRequest struct {
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token"`
}

type meResponse struct {
	Identity      model.Identity              `json:"identity"`
	Impersonation *model.ImpersonationSession `json:"impersonation,omitempty"`
}

func (s *Server) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	caller, err := s.d.Sessions.SignIn(c.Request.Context(), model.Tokens{AccessToken: req.AccessToken, RefreshToken: req.RefreshToken})
	if err != nil {
		s.fail(c, err)
		return
	}
	if s.d.Verifications != nil {
		ctx := authctx.WithIdentity(c.Request.Context(), caller.Identity)
		if err := s.d.Verifications.SyncEmail(ctx, caller.Identity); err != nil {
			s.log.Warn("email verification sync failed", zap.Stringer("user_id", caller.Identity.UserID), zap.Error(err))
		}
	}
	s.setCookie(c, caller.Storage.ID())
	c.JSON(http.StatusCreated, meResponse{Identity: caller.Identity})
}

func (s *Server) signOut(c *gin.Context) {
	if err := s.d.Sessions.SignOut(c.Request.Context(), callerOf(c).Storage.ID()); err != nil {
		s.fail(c, err)
		return
	}
	s.clearCookie(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) me(c *gin.Context) {
	caller := callerOf(c)
	resp := meResponse{Identity: caller.Identity}
	if s.d.Impersonation != nil {
		banner, err := s.d.Impersonation.Banner(c.Request.Context(), caller.Storage)
		if err != nil {
			s.fail(c, err)
			return
		}
		resp.Impersonation = banner
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) searchRooms(c *gin.Context) {
	f, err := search.ParseQuery(c.Request.URL.Query())
	if err != nil {
		s.fail(c, err)
		return
	}
	page, err := s.d.Search.Search(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param(name))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, errorBody{Error: fmt.Sprintf("bad %s", name), Code: "not_found"})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errs.ErrValidation, name)
	}
	return n, nil
}

func queryID(c *gin.Context, name string) (uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a message id", errs.ErrValidation, name)
	}
	return id, nil
}
