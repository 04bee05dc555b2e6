package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/profile"
	"github.com/roomiegr/roomie/internal/verification"
)

type profileResponse struct {
	Profile    *model.Profile `json:"profile"`
	Completion int            `json:"completion"`
	Missing    []string       `json:"missing"`
}

func profileView(p *model.Profile) profileResponse {
	return profileResponse{Profile: p, Completion: profile.Completion(p), Missing: profile.Missing(p)}
}

func (s *Server) getProfile(c *gin.Context) {
	p, err := s.d.Profiles.Get(c.Request.Context(), callerOf(c).Identity.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profileView(p))
}

func (s *Server) updateProfile(c *gin.Context) {
	var patch model.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	p, err := s.d.Profiles.Update(c.Request.Context(), callerOf(c).Identity.UserID, patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profileView(p))
}

func (s *Server) uploadAvatar(c *gin.Context) {
	fh, err := c.FormFile("avatar")
	if err != nil {
		badRequest(c, errors.New("avatar file is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()

	p, err := s.d.Profiles.UploadAvatar(c.Request.Context(), callerOf(c).Identity.UserID, fh.Header.Get("Content-Type"), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profileView(p))
}

type verificationsResponse struct {
	Items    []model.Verification `json:"items"`
	Identity model.IdentityStatus `json:"identity"`
}

func (s *Server) listVerifications(c *gin.Context) {
	vs, err := s.d.Verifications.List(c.Request.Context(), callerOf(c).Identity.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, verificationsResponse{Items: vs, Identity: verification.Identity(vs)})
}

func (s *Server) submitGovGR(c *gin.Context) {
	fh, err := c.FormFile("document")
	if err != nil {
		badRequest(c, errors.New("document file is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()

	v, err := s.d.Verifications.SubmitGovGR(c.Request.Context(), callerOf(c).Identity.UserID, c.Param("side"), fh.Header.Get("Content-Type"), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

type startPhoneRequest struct {
	Phone string `json:"phone" binding:"required"`
}

type startPhoneResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) startPhone(c *gin.Context) {
	var req startPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	exp, err := s.d.Verifications.StartPhone(c.Request.Context(), callerOf(c).Identity.UserID, req.Phone)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, startPhoneResponse{ExpiresAt: exp})
}

type confirmPhoneRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) confirmPhone(c *gin.Context) {
	var req confirmPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	v, err := s.d.Verifications.ConfirmPhone(c.Request.Context(), callerOf(c).Identity.UserID, req.Code, c.ClientIP())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
