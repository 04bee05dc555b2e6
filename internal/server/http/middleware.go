package httpserver

import (
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/auth"
	"github.com/roomiegr/roomie/internal/authctx"
	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/session"
)

const callerKey = "roomie.caller"

// Logging logs one line per request. Bodies are never logged.
func Logging(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", c.ClientIP()),
		}
		if caller, ok := c.Get(callerKey); ok {
			fields = append(fields, zap.Stringer("user_id", caller.(*auth.Caller).Identity.UserID))
		}
		log.Info("http", fields...)
	}
}

// Recover turns a panic into a 500 and logs the stack.
func Recover(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("route", c.FullPath()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
			}
		}()
		c.Next()
	}
}

// authenticate resolves the session cookie. An expired impersonation is ended here, which
// puts the admin's own tokens back before the session is resolved again.
func (s *Server) authenticate(c *gin.Context) {
	sid, err := c.Cookie(session.CookieName)
	if err != nil || sid == "" {
		s.fail(c, errs.ErrUnauthorized)
		return
	}
	ctx := c.Request.Context()
	caller, err := s.d.Sessions.Resolve(ctx, sid)
	if err != nil && caller != nil && caller.Storage != nil && s.d.Impersonation != nil {
		if ended, xerr := s.d.Impersonation.ExpireIfDue(ctx, caller.Storage); xerr != nil {
			s.log.Warn("impersonation expiry failed", zap.Error(xerr))
		} else if ended {
			caller, err = s.d.Sessions.Resolve(ctx, sid)
		}
	}
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			s.clearCookie(c)
		}
		s.fail(c, err)
		return
	}

	ctx = authctx.WithIdentity(ctx, caller.Identity)
	ctx = authctx.WithTokens(ctx, caller.Tokens)
	c.Request = c.Request.WithContext(ctx)
	c.Set(callerKey, caller)
	c.Next()
}

// authorize applies the casbin policy to the matched route.
func (s *Server) authorize(c *gin.Context) {
	caller := callerOf(c)
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	ok, err := s.d.Authz.Allowed(caller.Identity.Role, path, c.Request.Method)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		s.fail(c, errs.ErrForbidden)
		return
	}
	c.Next()
}

func callerOf(c *gin.Context) *auth.Caller {
	return c.MustGet(callerKey).(*auth.Caller)
}

func (s *Server) setCookie(c *gin.Context, sid string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(session.CookieName, sid, int(s.opts.SessionTTL/time.Second), "/", "", s.opts.SecureCookies, true)
}

func (s *Server) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(session.CookieName, "", -1, "/", "", s.opts.SecureCookies, true)
}
