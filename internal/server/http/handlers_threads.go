package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"

	"github.com/roomiegr/roomie/internal/messaging"
	"github.com/roomiegr/roomie/internal/model"
)

type openThreadRequest struct {
	ListingID uuid.UUID `json:"listing_id" binding:"required"`
	Message   string    `json:"message" binding:"required"`
}

type openThreadResponse struct {
	Thread  *model.Thread  `json:"thread"`
	Message *model.Message `json:"message"`
}

type messageRequest struct {
	Body string `json:"body" binding:"required"`
}

type respondRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

func (s *Server) listThreads(c *gin.Context) {
	ts, err := s.d.Threads.List(c.Request.Context(), callerOf(c).Identity.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": ts})
}

func (s *Server) openThread(c *gin.Context) {
	var req openThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, m, err := s.d.Threads.Open(c.Request.Context(), callerOf(c).Identity.UserID, req.ListingID, req.Message)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, openThreadResponse{Thread: t, Message: m})
}

// threadMessages serves the newest page by default; ?before=<id> pages back and
// ?after=<id> reads on from a message.
func (s *Server) threadMessages(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var (
		q   model.MessageQuery
		err error
	)
	if q.Limit, err = queryInt(c, "limit", messaging.DefaultPageSize); err != nil {
		s.fail(c, err)
		return
	}
	if q.Before, err = queryID(c, "before"); err != nil {
		s.fail(c, err)
		return
	}
	if q.After, err = queryID(c, "after"); err != nil {
		s.fail(c, err)
		return
	}
	page, err := s.d.Threads.Messages(c.Request.Context(), callerOf(c).Identity.UserID, id, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) sendMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := s.d.Threads.Send(c.Request.Context(), callerOf(c).Identity.UserID, id, req.Body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) respondThread(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := s.d.Threads.Respond(c.Request.Context(), callerOf(c).Identity.UserID, id, *req.Accept)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
