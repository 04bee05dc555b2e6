// Package httpserver exposes the application tier as a JSON API over gin.
package httpserver

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/admin"
	"github.com/roomiegr/roomie/internal/auth"
	"github.com/roomiegr/roomie/internal/impersonation"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/publish"
	"github.com/roomiegr/roomie/internal/wizard"
)

// Sessions binds browser sessions to verified tokens.
type Sessions interface {
	SignIn(ctx context.Context, t model.Tokens) (*auth.Caller, error)
	SignOut(ctx context.Context, sid string) error
	Resolve(ctx context.Context, sid string) (*auth.Caller, error)
}

// Wizards keeps live listing wizards.
type Wizards interface {
	Start(ctx context.Context, ownerID uuid.UUID, listingID *uuid.UUID) (*wizard.Wizard, error)
	Get(ownerID, id uuid.UUID) (*wizard.Wizard, error)
	Remove(ctx context.Context, ownerID, id uuid.UUID) error
}

// Listings lists a user's own listings.
type Listings interface {
	ListDrafts(ctx context.Context, ownerID uuid.UUID) ([]model.ListingDraft, error)
}

// Publisher runs the publish gate.
type Publisher interface {
	Publish(ctx context.Context, d publish.Draft) (*publish.Result, error)
}

// Profiles reads and edits profiles.
type Profiles interface {
	Get(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	Update(ctx context.Context, userID uuid.UUID, patch model.ProfilePatch) (*model.Profile, error)
	UploadAvatar(ctx context.Context, userID uuid.UUID, contentType string, body io.Reader) (*model.Profile, error)
}

// Verifications runs the verification flows.
type Verifications interface {
	List(ctx context.Context, userID uuid.UUID) ([]model.Verification, error)
	SubmitGovGR(ctx context.Context, userID uuid.UUID, side, contentType string, body io.Reader) (*model.Verification, error)
	StartPhone(ctx context.Context, userID uuid.UUID, phone string) (time.Time, error)
	ConfirmPhone(ctx context.Context, userID uuid.UUID, code, clientIP string) (*model.Verification, error)
	SyncEmail(ctx context.Context, id model.Identity) error
	Pending(ctx context.Context, limit int) ([]model.Verification, error)
	Decide(ctx context.Context, reviewer, id uuid.UUID, action, note string) (*model.Verification, error)
}

// Threads runs seeker/lister messaging.
type Threads interface {
	Open(ctx context.Context, seeker, listingID uuid.UUID, body string) (*model.Thread, *model.Message, error)
	Send(ctx context.Context, sender, threadID uuid.UUID, body string) (*model.Message, error)
	Respond(ctx context.Context, lister, threadID uuid.UUID, accept bool) (*model.Thread, error)
	List(ctx context.Context, userID uuid.UUID) ([]model.Thread, error)
	Messages(ctx context.Context, userID, threadID uuid.UUID, q model.MessageQuery) (*model.MessagePage, error)
}

// Searcher answers room searches.
type Searcher interface {
	Search(ctx context.Context, f model.SearchFilters) (*model.SearchPage, error)
}

// Impersonator runs the admin impersonation flow.
type Impersonator interface {
	Start(ctx context.Context, st impersonation.Storage, admin model.Identity, adminTokens model.Tokens, target uuid.UUID, reason string) (*model.ImpersonationSession, error)
	Exit(ctx context.Context, st impersonation.Storage) (model.Tokens, error)
	Banner(ctx context.Context, st impersonation.Storage) (*model.ImpersonationSession, error)
	ExpireIfDue(ctx context.Context, st impersonation.Storage) (bool, error)
}

// BackOffice runs moderation and maintenance.
type BackOffice interface {
	PendingListings(ctx context.Context, limit int) ([]model.ModerationItem, error)
	Moderate(ctx context.Context, actor, roomID uuid.UUID, action, reason string) error
	ScanPhotos(ctx context.Context, actor uuid.UUID) (*model.PhotoHealthReport, error)
	Activity(ctx context.Context, since time.Time, limit int) ([]model.ActivityEntry, error)
}

// Authorizer decides access to back-office routes.
type Authorizer interface {
	Allowed(role, path, method string) (bool, error)
}

var (
	_ BackOffice   = (*admin.Service)(nil)
	_ Impersonator = (*impersonation.Service)(nil)
)

// Deps are the services behind the API.
type Deps struct {
	Sessions      Sessions
	Wizards       Wizards
	Listings      Listings
	Publisher     Publisher
	Photos        wizard.Uploader
	Profiles      Profiles
	Verifications Verifications
	Threads       Threads
	Search        Searcher
	Impersonation Impersonator
	Admin         BackOffice
	Authz         Authorizer
}

// Options tune the HTTP layer.
type Options struct {
	SecureCookies  bool
	SessionTTL     time.Duration
	MaxUploadBytes int64
	TrustedProxies []string
}

// Server is the JSON API.
type Server struct {
	d    Deps
	opts Options
	log  *zap.Logger
}

// New constructs a Server.
func New(d Deps, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &Server{d: d, opts: opts, log: log}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.MaxMultipartMemory = s.opts.MaxUploadBytes
	if err := r.SetTrustedProxies(s.opts.TrustedProxies); err != nil {
		s.log.Warn("trusted proxies ignored", zap.Error(err))
	}
	r.Use(Recover(s.log), Logging(s.log))

	r.POST("/auth/session", s.signIn)
	r.GET("/search/rooms", s.searchRooms)

	authed := r.Group("/", s.authenticate)
	authed.DELETE("/auth/session", s.signOut)
	authed.GET("/auth/me", s.me)

	authed.GET("/listings", s.myListings)
	authed.POST("/wizard", s.startWizard)
	w := authed.Group("/wizard/:wid", s.loadWizard)
	w.GET("", s.wizardState)
	w.DELETE("", s.closeWizard)
	w.PATCH("/draft", s.updateDraft)
	w.POST("/next", s.nextStep)
	w.POST("/prev", s.prevStep)
	w.POST("/goto/:step", s.gotoStep)
	w.GET("/review", s.review)
	w.POST("/photos", s.uploadPhoto)
	w.DELETE("/photos", s.removePhoto)
	w.POST("/publish", s.publish)

	authed.GET("/profile", s.getProfile)
	authed.PATCH("/profile", s.updateProfile)
	authed.POST("/profile/avatar", s.uploadAvatar)

	authed.GET("/verifications", s.listVerifications)
	authed.POST("/verifications/govgr/:side", s.submitGovGR)
	authed.POST("/verifications/phone/start", s.startPhone)
	authed.POST("/verifications/phone/confirm", s.confirmPhone)

	authed.GET("/threads", s.listThreads)
	authed.POST("/threads", s.openThread)
	authed.GET("/threads/:id/messages", s.threadMessages)
	authed.POST("/threads/:id/messages", s.sendMessage)
	authed.POST("/threads/:id/respond", s.respondThread)

	authed.GET("/session/impersonation", s.impersonationBanner)
	// Exit is reachable by the impersonated identity, which is never staff.
	authed.DELETE("/admin/impersonation", s.exitImpersonation)

	staff := authed.Group("/admin", s.authorize)
	staff.POST("/impersonation", s.startImpersonation)
	staff.GET("/listings/pending", s.pendingListings)
	staff.POST("/listings/:id/:action", s.moderateListing)
	staff.GET("/verifications/pending", s.pendingVerifications)
	staff.POST("/verifications/:id/:action", s.decideVerification)
	staff.POST("/photos/scan", s.scanPhotos)
	staff.GET("/activity", s.activity)

	return r
}
