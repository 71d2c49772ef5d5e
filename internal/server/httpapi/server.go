// Package httpapi exposes the recipebook service over HTTP. Routing uses the
// standard library mux with method patterns; cross-cutting concerns (auth,
// rate limiting, metrics, timeouts) are middleware.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ovenbird/recipebook/internal/logging"
	"github.com/ovenbird/recipebook/internal/server/auth"
	"github.com/ovenbird/recipebook/internal/server/config"
	"github.com/ovenbird/recipebook/internal/server/models"
	"github.com/ovenbird/recipebook/internal/server/services"
)

// userService is the slice of the user service the HTTP layer consumes.
type userService interface {
	UpsertFromClaim(ctx context.Context, claim *auth.Claim) (*models.User, bool, error)
	GetByClaim(ctx context.Context, claim *auth.Claim) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	PublicProfile(ctx context.Context, id string) (*models.User, []*models.Recipe, error)
	Update(ctx context.Context, id string, fields map[string]json.RawMessage) (*models.User, error)
	DeleteCascade(ctx context.Context, id string) error
}

type recipeService interface {
	Create(ctx context.Context, owner *models.User, input *services.RecipeInput) (*models.Recipe, error)
	ListOwn(ctx context.Context, ownerID string) ([]*models.Recipe, error)
	Get(ctx context.Context, userID string, recipeID string) (*models.Recipe, error)
	GetPublic(ctx context.Context, viewerID string, recipeID string) (*services.PublicRecipe, error)
	Update(ctx context.Context, userID string, recipeID string, fields map[string]json.RawMessage) (*models.Recipe, error)
	Delete(ctx context.Context, userID string, recipeID string) error
	Subscribe(ctx context.Context, userID string, recipeID string) error
	Unsubscribe(ctx context.Context, userID string, recipeID string) error
	ListSubscriptions(ctx context.Context, userID string) ([]*models.Recipe, error)
}

type imageService interface {
	AttachUserImage(ctx context.Context, user *models.User, filename string, data []byte) (string, error)
	RemoveUserImage(ctx context.Context, user *models.User) error
	UserImage(ctx context.Context, userID string) ([]byte, error)
	AttachRecipeImage(ctx context.Context, userID string, recipeID string, filename string, data []byte) (string, error)
	RecipeImage(ctx context.Context, recipeID string) ([]byte, error)
}

// pinger reports whether the backing database is reachable; satisfied by
// *sql.DB.
type pinger interface {
	PingContext(ctx context.Context) error
}

// Server is the HTTP front of the recipebook service.
type Server struct {
	config   *config.Config
	logger   logging.Logger
	verifier auth.Verifier
	users    userService
	recipes  recipeService
	images   imageService
	db       pinger

	limiter    *rate.Limiter
	httpServer *http.Server
}

func NewServer(
	cfg *config.Config,
	logger logging.Logger,
	verifier auth.Verifier,
	users userService,
	recipes recipeService,
	images imageService,
	db pinger,
) *Server {

	s := &Server{
		config:   cfg,
		logger:   logger.With("module", "httpapi"),
		verifier: verifier,
		users:    users,
		recipes:  recipes,
		images:   images,
		db:       db,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
	}

	s.httpServer = &http.Server{
		Addr:         cfg.EndpointAddr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// system endpoints bypass authentication and rate limiting
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /user", s.common(s.authStrict(s.handleUserUpsert)))
	mux.HandleFunc("GET /user", s.common(s.authStrict(s.handleUserGet)))
	mux.HandleFunc("PATCH /user", s.common(s.authStrict(s.handleUserUpdate)))
	mux.HandleFunc("DELETE /user", s.common(s.authStrict(s.handleUserDelete)))
	mux.HandleFunc("POST /user/image", s.common(s.authStrict(s.handleUserImageUpload)))
	mux.HandleFunc("DELETE /user/image", s.common(s.authStrict(s.handleUserImageDelete)))
	mux.HandleFunc("GET /user/{id}", s.common(s.handleUserProfile))
	mux.HandleFunc("GET /user/{id}/image", s.common(s.handleUserImage))

	mux.HandleFunc("POST /recipe", s.common(s.authStrict(s.handleRecipeCreate)))
	mux.HandleFunc("GET /recipe", s.common(s.authStrict(s.handleRecipeList)))
	mux.HandleFunc("GET /recipe/{id}", s.common(s.authStrict(s.handleRecipeGet)))
	mux.HandleFunc("PATCH /recipe/{id}", s.common(s.authStrict(s.handleRecipeUpdate)))
	mux.HandleFunc("DELETE /recipe/{id}", s.common(s.authStrict(s.handleRecipeDelete)))
	mux.HandleFunc("POST /recipe/{id}/image", s.common(s.authStrict(s.handleRecipeImageUpload)))
	mux.HandleFunc("POST /recipe/public/{id}/subscribe", s.common(s.authStrict(s.handleSubscribe)))
	mux.HandleFunc("POST /recipe/public/{id}/unsubscribe", s.common(s.authStrict(s.handleUnsubscribe)))
	mux.HandleFunc("GET /subscriptions", s.common(s.authStrict(s.handleSubscriptions)))

	// GET /recipe/public/{id} and GET /recipe/{id}/image overlap on the
	// literal path /recipe/public/image, which the mux refuses to register.
	// One wildcard pattern dispatches both shapes instead.
	mux.HandleFunc("GET /recipe/{first}/{second}", s.common(s.authObserve(s.handleRecipeSubpath)))

	return mux
}

// handleRecipeSubpath splits the two-segment GET shapes under /recipe/:
// /recipe/public/{id} serves the public projection, /recipe/{id}/image
// serves the image.
func (s *Server) handleRecipeSubpath(w http.ResponseWriter, r *http.Request) {
	first, second := r.PathValue("first"), r.PathValue("second")
	switch {
	case first == "public":
		s.handleRecipePublic(w, r, second)
	case second == "image":
		s.handleRecipeImage(w, r, first)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Run serves until ctx is cancelled, then drains connections within the
// configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info(ctx, "shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler exposes the routed handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
