package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/publish"
	"github.com/roomiegr/roomie/internal/wizard"
)

const wizardKey = "roomie.wizard"

type startWizardRequest struct {
	ListingID *uuid.UUID `json:"listing_id"`
}

type photoResponse struct {
	URL   string             `json:"url,omitempty"`
	Draft model.ListingDraft `json:"draft"`
}

func (s *Server) myListings(c *gin.Context) {
	items, err := s.d.Listings.ListDrafts(c.Request.Context(), callerOf(c).Identity.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": items})
}

func (s *Server) startWizard(c *gin.Context) {
	var req startWizardRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	w, err := s.d.Wizards.Start(c.Request.Context(), callerOf(c).Identity.UserID, req.ListingID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, w.State())
}

// loadWizard resolves :wid to a live wizard of the caller.
func (s *Server) loadWizard(c *gin.Context) {
	id, ok := pathID(c, "wid")
	if !ok {
		return
	}
	w, err := s.d.Wizards.Get(callerOf(c).Identity.UserID, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Set(wizardKey, w)
	c.Next()
}

func wizardOf(c *gin.Context) *wizard.Wizard { return c.MustGet(wizardKey).(*wizard.Wizard) }

func (s *Server) wizardState(c *gin.Context) {
	c.JSON(http.StatusOK, wizardOf(c).State())
}

func (s *Server) closeWizard(c *gin.Context) {
	if err := s.d.Wizards.Remove(c.Request.Context(), callerOf(c).Identity.UserID, wizardOf(c).ID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) updateDraft(c *gin.Context) {
	var patch model.DraftPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	w := wizardOf(c)
	w.Update(patch)
	c.JSON(http.StatusOK, w.State())
}

// move answers navigation calls with the new state. On error the wizard stays where Next,
// Prev or GoTo left it and the client fetches the state again.
func (s *Server) move(c *gin.Context, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wizardOf(c).State())
}

func (s *Server) nextStep(c *gin.Context) {
	_, err := wizardOf(c).Next(c.Request.Context())
	s.move(c, err)
}

func (s *Server) prevStep(c *gin.Context) {
	wizardOf(c).Prev()
	s.move(c, nil)
}

func (s *Server) gotoStep(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		badRequest(c, errors.New("step must be a number"))
		return
	}
	_, err = wizardOf(c).GoTo(wizard.Step(n))
	s.move(c, err)
}

func (s *Server) review(c *gin.Context) {
	c.JSON(http.StatusOK, wizardOf(c).Review())
}

func (s *Server) uploadPhoto(c *gin.Context) {
	fh, err := c.FormFile("photo")
	if err != nil {
		badRequest(c, errors.New("photo file is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()

	w := wizardOf(c)
	url, err := w.UploadPhoto(c.Request.Context(), s.d.Photos, fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, photoResponse{URL: url, Draft: w.Draft()})
}

func (s *Server) removePhoto(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		badRequest(c, errors.New("url is required"))
		return
	}
	c.JSON(http.StatusOK, photoResponse{Draft: wizardOf(c).RemovePhoto(url)})
}

// publish runs the gate. A gate that stops on a remediation is a 200 with the reason; a
// finished publish also retires the wizard.
func (s *Server) publish(c *gin.Context) {
	w := wizardOf(c)
	res, err := s.d.Publisher.Publish(c.Request.Context(), w)
	if err != nil {
		s.fail(c, err)
		return
	}
	if res.State == publish.Done {
		if err := s.d.Wizards.Remove(c.Request.Context(), callerOf(c).Identity.UserID, w.ID); err != nil {
			s.log.Warn("close published wizard", zap.Stringer("wizard_id", w.ID), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, res)
}
