package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"backlog/internal/auth"
	"backlog/internal/backlog"
	"backlog/internal/games"
	"backlog/internal/guest"
	"backlog/internal/metadata"
	"backlog/internal/users"
)

const sessionContextKey = "backlog_session"

var (
	errMissingAccounts      = errors.New("accounts service dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingSelector      = errors.New("store selector dependency required")
	errMissingMigrator      = errors.New("migrator dependency required")
	errMissingSearcher      = errors.New("searcher dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates backend session tokens.
type TokenManager interface {
	IssueToken(ctx context.Context, accountID, email string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP surface to the application services.
type Dependencies struct {
	Accounts     *users.Service
	TokenManager TokenManager
	Selector     *backlog.Selector
	Migrator     *backlog.Migrator
	Searcher     *metadata.Searcher
	Logger       *zap.Logger
}

// NewHTTPHandler builds the API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Accounts == nil {
		return nil, errMissingAccounts
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Selector == nil {
		return nil, errMissingSelector
	}
	if deps.Migrator == nil {
		return nil, errMissingMigrator
	}
	if deps.Searcher == nil {
		return nil, errMissingSearcher
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		accounts: deps.Accounts,
		tokens:   deps.TokenManager,
		selector: deps.Selector,
		migrator: deps.Migrator,
		searcher: deps.Searcher,
		logger:   logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/auth/signup", handler.handleSignUp)
	router.POST("/auth/signin", handler.handleSignIn)
	router.GET("/search", handler.handleSearch)

	collection := router.Group("/games")
	collection.Use(handler.resolveSession)
	collection.GET("", handler.handleList)
	collection.POST("", handler.handleCreate)
	collection.PATCH("/:id", handler.handleUpdate)
	collection.POST("/:id/advance", handler.handleAdvance)
	collection.DELETE("/:id", handler.handleDelete)

	return router, nil
}

type httpHandler struct {
	accounts *users.Service
	tokens   TokenManager
	selector *backlog.Selector
	migrator *backlog.Migrator
	searcher *metadata.Searcher
	logger   *zap.Logger
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type migrationPayload struct {
	Migrated int    `json:"migrated"`
	Dropped  int    `json:"dropped,omitempty"`
	Failed   bool   `json:"failed,omitempty"`
	Batch    *int   `json:"batch,omitempty"`
	Error    string `json:"error,omitempty"`
}

type authResponsePayload struct {
	AccessToken string            `json:"access_token"`
	ExpiresIn   int64             `json:"expires_in"`
	TokenType   string            `json:"token_type"`
	Migration   *migrationPayload `json:"migration,omitempty"`
}

func (h *httpHandler) handleSignUp(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	account, err := h.accounts.SignUp(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondSignUpError(c, err)
		return
	}
	h.respondWithSession(c, account)
}

func (h *httpHandler) handleSignIn(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	account, err := h.accounts.SignIn(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		h.logger.Error("sign-in failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signin_failed"})
		return
	}
	h.respondWithSession(c, account)
}

func (h *httpHandler) respondSignUpError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, users.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
	case errors.Is(err, users.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email"})
	case errors.Is(err, auth.ErrPasswordTooShort):
		c.JSON(http.StatusBadRequest, gin.H{"error": "password_too_short"})
	default:
		h.logger.Error("sign-up failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signup_failed"})
	}
}

// respondWithSession issues the backend token and performs the one-shot
// guest migration. Migration failure does not fail authentication; the
// outcome travels in the response so the client can notify the user and
// keep its local data.
func (h *httpHandler) respondWithSession(c *gin.Context, account users.Account) {
	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), account.ID, account.Email)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	response := authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	}

	owner, err := games.NewOwnerID(account.ID)
	if err == nil {
		response.Migration = h.runMigration(c.Request.Context(), owner)
	}

	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) runMigration(ctx context.Context, owner games.OwnerID) *migrationPayload {
	result, err := h.migrator.Run(ctx, owner)
	if errors.Is(err, backlog.ErrMigrationInFlight) {
		return nil
	}
	if err != nil {
		payload := &migrationPayload{
			Migrated: result.Migrated,
			Dropped:  result.Dropped,
			Failed:   true,
			Error:    "migration_failed",
		}
		var batchErr *backlog.BatchError
		if errors.As(err, &batchErr) {
			payload.Batch = &batchErr.Batch
		}
		return payload
	}
	if result.Migrated == 0 && result.Dropped == 0 {
		return nil
	}
	return &migrationPayload{Migrated: result.Migrated, Dropped: result.Dropped}
}

// resolveSession derives the session from the Authorization header. A
// missing header is a guest session; a malformed or invalid token is
// rejected rather than silently downgraded.
func (h *httpHandler) resolveSession(c *gin.Context) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		c.Set(sessionContextKey, backlog.Session{})
		c.Next()
		return
	}
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionContextKey, backlog.Session{OwnerID: subject})
	c.Next()
}

func (h *httpHandler) sessionStore(c *gin.Context) (backlog.Store, bool) {
	value, _ := c.Get(sessionContextKey)
	session, _ := value.(backlog.Session)
	store, err := h.selector.Select(session)
	if err != nil {
		h.logger.Error("store selection failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store_unavailable"})
		return nil, false
	}
	return store, true
}

func (h *httpHandler) handleList(c *gin.Context) {
	store, ok := h.sessionStore(c)
	if !ok {
		return
	}
	entries, err := store.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	if entries == nil {
		entries = []backlog.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"games": entries})
}

type createPayload struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Image    string `json:"image"`
	Status   string `json:"status"`
}

func (h *httpHandler) handleCreate(c *gin.Context) {
	var request createPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	store, ok := h.sessionStore(c)
	if !ok {
		return
	}

	entry, err := store.Add(c.Request.Context(), backlog.NewEntry{
		Name:     request.Name,
		Platform: request.Platform,
		ImageURL: request.Image,
		Status:   games.ParseStatus(request.Status),
	})
	if err != nil {
		h.respondStoreError(c, "create", err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

type updatePayload struct {
	Name     *string `json:"name"`
	Platform *string `json:"platform"`
	Image    *string `json:"image"`
	Status   *string `json:"status"`
}

func (h *httpHandler) handleUpdate(c *gin.Context) {
	var request updatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	store, ok := h.sessionStore(c)
	if !ok {
		return
	}

	edits := games.FieldEdits{
		Name:     request.Name,
		Platform: request.Platform,
		ImageURL: request.Image,
	}
	if request.Status != nil {
		status := games.ParseStatus(*request.Status)
		edits.Status = &status
	}

	entry, err := store.Update(c.Request.Context(), c.Param("id"), edits)
	if err != nil {
		h.respondStoreError(c, "update", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *httpHandler) handleAdvance(c *gin.Context) {
	store, ok := h.sessionStore(c)
	if !ok {
		return
	}
	entry, err := store.AdvanceStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondStoreError(c, "advance", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *httpHandler) handleDelete(c *gin.Context) {
	store, ok := h.sessionStore(c)
	if !ok {
		return
	}
	if err := store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondStoreError(c, "delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) respondStoreError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, backlog.ErrCollectionFull):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "collection_full"})
	case errors.Is(err, games.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name"})
	case errors.Is(err, games.ErrGameNotFound), errors.Is(err, guest.ErrEntryNotFound), errors.Is(err, games.ErrInvalidGameID):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		h.logger.Error("store operation failed", zap.String("operation", operation), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": operation + "_failed"})
	}
}

func (h *httpHandler) handleSearch(c *gin.Context) {
	query := c.Query("query")
	results := h.searcher.Search(c.Request.Context(), query)
	if results == nil {
		results = []metadata.Candidate{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
