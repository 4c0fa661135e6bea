package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backlog/internal/auth"
	"backlog/internal/backlog"
	"backlog/internal/database"
	"backlog/internal/games"
	"backlog/internal/guest"
	"backlog/internal/metadata"
	"backlog/internal/users"
)

var routerDatabaseSequence atomic.Int64

type routerFixture struct {
	handler   http.Handler
	guestPath string
	service   *games.Service
	accounts  *users.Service
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", routerDatabaseSequence.Add(1))
	db, err := database.OpenSQLite(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	service, err := games.NewService(games.ServiceConfig{
		Database:   db,
		IDProvider: games.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build games service: %v", err)
	}

	accounts, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: games.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build accounts service: %v", err)
	}

	guestPath := filepath.Join(t.TempDir(), "guest.json")
	guestStore, err := guest.NewStore(guest.StoreConfig{Path: guestPath})
	if err != nil {
		t.Fatalf("failed to build guest store: %v", err)
	}

	selector, err := backlog.NewSelector(guestStore, service, backlog.CapacityLimit)
	if err != nil {
		t.Fatalf("failed to build selector: %v", err)
	}

	migrator, err := backlog.NewMigrator(backlog.MigratorConfig{
		Local:  guestStore,
		Remote: service,
	})
	if err != nil {
		t.Fatalf("failed to build migrator: %v", err)
	}

	searcher := metadata.NewSearcher(
		metadata.NewCatalogClient(metadata.CatalogConfig{}),
		metadata.NewArtworkClient(metadata.ArtworkConfig{}),
		zap.NewNop(),
	)

	handler, err := NewHTTPHandler(Dependencies{
		Accounts:     accounts,
		TokenManager: auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte("router-test-secret")}),
		Selector:     selector,
		Migrator:     migrator,
		Searcher:     searcher,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &routerFixture{
		handler:   handler,
		guestPath: guestPath,
		service:   service,
		accounts:  accounts,
	}
}

func (f *routerFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeJSON(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func (f *routerFixture) signUp(t *testing.T, email, password string) string {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	recorder := f.do(t, http.MethodPost, "/auth/signup", "", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("sign-up failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeJSON(t, recorder)
	token, _ := payload["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access token in response, got %s", recorder.Body.String())
	}
	return token
}

func TestHealthEndpoint(t *testing.T) {
	fixture := newRouterFixture(t)
	recorder := fixture.do(t, http.MethodGet, "/healthz", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestGuestCollectionLifecycle(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := fixture.do(t, http.MethodPost, "/games", "", `{"name":"Hades","platform":"","status":"playing"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	created := decodeJSON(t, recorder)
	id, _ := created["id"].(string)
	if !strings.HasPrefix(id, "local-") {
		t.Fatalf("expected a local identifier, got %q", id)
	}
	if created["platform"] != "Steam" {
		t.Fatalf("expected blank platform to default to Steam, got %v", created["platform"])
	}

	recorder = fixture.do(t, http.MethodGet, "/games", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("list failed with status %d", recorder.Code)
	}
	listed := decodeJSON(t, recorder)
	entries, _ := listed["games"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected one guest entry, got %d", len(entries))
	}

	recorder = fixture.do(t, http.MethodPatch, "/games/"+id, "", `{"name":"Hades II"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("update failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	if decodeJSON(t, recorder)["name"] != "Hades II" {
		t.Fatalf("expected renamed entry, got %s", recorder.Body.String())
	}

	recorder = fixture.do(t, http.MethodPost, "/games/"+id+"/advance", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("advance failed with status %d", recorder.Code)
	}
	if decodeJSON(t, recorder)["status"] != "completed" {
		t.Fatalf("expected playing to advance to completed, got %s", recorder.Body.String())
	}

	recorder = fixture.do(t, http.MethodDelete, "/games/"+id, "", "")
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("delete failed with status %d", recorder.Code)
	}

	recorder = fixture.do(t, http.MethodGet, "/games", "", "")
	listed = decodeJSON(t, recorder)
	if entries, _ := listed["games"].([]any); len(entries) != 0 {
		t.Fatalf("expected empty collection after delete, got %d entries", len(entries))
	}
}

func TestCreateRejectsBlankName(t *testing.T) {
	fixture := newRouterFixture(t)
	recorder := fixture.do(t, http.MethodPost, "/games", "", `{"name":"   "}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", recorder.Code)
	}
}

func TestMalformedAuthorizationHeaderRejected(t *testing.T) {
	fixture := newRouterFixture(t)

	request := httptest.NewRequest(http.MethodGet, "/games", http.NoBody)
	request.Header.Set("Authorization", "Token abc")
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected malformed scheme to be rejected, got %d", recorder.Code)
	}

	recorder = fixture.do(t, http.MethodGet, "/games", "not-a-jwt", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected invalid token to be rejected, got %d", recorder.Code)
	}
}

func TestSignUpValidationErrors(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := fixture.do(t, http.MethodPost, "/auth/signup", "", `{"email":"not-an-email","password":"secret1"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid email rejection, got %d", recorder.Code)
	}

	recorder = fixture.do(t, http.MethodPost, "/auth/signup", "", `{"email":"player@example.com","password":"short"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected weak password rejection, got %d", recorder.Code)
	}
	if decodeJSON(t, recorder)["error"] != "password_too_short" {
		t.Fatalf("unexpected error code: %s", recorder.Body.String())
	}

	fixture.signUp(t, "player@example.com", "secret1")
	recorder = fixture.do(t, http.MethodPost, "/auth/signup", "", `{"email":"Player@Example.com","password":"secret1"}`)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected duplicate email conflict, got %d", recorder.Code)
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	fixture := newRouterFixture(t)
	fixture.signUp(t, "player@example.com", "secret1")

	recorder := fixture.do(t, http.MethodPost, "/auth/signin", "", `{"email":"player@example.com","password":"wrong-1"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected invalid credentials rejection, got %d", recorder.Code)
	}
	if decodeJSON(t, recorder)["error"] != "invalid_credentials" {
		t.Fatalf("unexpected error code: %s", recorder.Body.String())
	}
}

func TestAuthenticatedCollectionIsIsolatedFromGuest(t *testing.T) {
	fixture := newRouterFixture(t)
	token := fixture.signUp(t, "player@example.com", "secret1")

	recorder := fixture.do(t, http.MethodPost, "/games", token, `{"name":"Celeste"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("authenticated create failed: %d %s", recorder.Code, recorder.Body.String())
	}
	created := decodeJSON(t, recorder)
	if id, _ := created["id"].(string); strings.HasPrefix(id, "local-") {
		t.Fatalf("authenticated entries must carry server identifiers, got %q", created["id"])
	}

	recorder = fixture.do(t, http.MethodGet, "/games", "", "")
	guestView := decodeJSON(t, recorder)
	if entries, _ := guestView["games"].([]any); len(entries) != 0 {
		t.Fatalf("guest view must not see authenticated entries, got %d", len(entries))
	}

	recorder = fixture.do(t, http.MethodGet, "/games", token, "")
	ownerView := decodeJSON(t, recorder)
	if entries, _ := ownerView["games"].([]any); len(entries) != 1 {
		t.Fatalf("expected one authenticated entry, got %d", len(entries))
	}
}

func TestSignUpMigratesGuestCollection(t *testing.T) {
	fixture := newRouterFixture(t)

	for i := 0; i < 3; i++ {
		body := fmt.Sprintf(`{"name":"Game %d"}`, i)
		if recorder := fixture.do(t, http.MethodPost, "/games", "", body); recorder.Code != http.StatusCreated {
			t.Fatalf("guest seed failed: %d", recorder.Code)
		}
	}

	recorder := fixture.do(t, http.MethodPost, "/auth/signup", "", `{"email":"player@example.com","password":"secret1"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("sign-up failed: %d %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeJSON(t, recorder)
	migration, _ := payload["migration"].(map[string]any)
	if migration == nil {
		t.Fatalf("expected migration outcome in response, got %s", recorder.Body.String())
	}
	if migrated, _ := migration["migrated"].(float64); int(migrated) != 3 {
		t.Fatalf("expected 3 migrated entries, got %v", migration["migrated"])
	}

	token, _ := payload["access_token"].(string)
	recorder = fixture.do(t, http.MethodGet, "/games", token, "")
	ownerView := decodeJSON(t, recorder)
	if entries, _ := ownerView["games"].([]any); len(entries) != 3 {
		t.Fatalf("expected migrated entries in remote collection, got %d", len(entries))
	}

	if _, err := os.Stat(fixture.guestPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected guest slot cleared after migration, stat err: %v", err)
	}
}

func TestSignInWithEmptyGuestSlotOmitsMigration(t *testing.T) {
	fixture := newRouterFixture(t)
	fixture.signUp(t, "player@example.com", "secret1")

	recorder := fixture.do(t, http.MethodPost, "/auth/signin", "", `{"email":"player@example.com","password":"secret1"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("sign-in failed: %d", recorder.Code)
	}
	payload := decodeJSON(t, recorder)
	if _, present := payload["migration"]; present {
		t.Fatalf("expected no migration outcome for empty slot, got %s", recorder.Body.String())
	}
}

func TestCreateRejectedAtCapacity(t *testing.T) {
	fixture := newRouterFixture(t)
	token := fixture.signUp(t, "player@example.com", "secret1")

	account, err := fixture.accounts.SignIn(context.Background(), "player@example.com", "secret1")
	if err != nil {
		t.Fatalf("failed to resolve account: %v", err)
	}
	owner, err := games.NewOwnerID(account.ID)
	if err != nil {
		t.Fatalf("failed to build owner id: %v", err)
	}

	payloads := make([]games.NewGame, 0, backlog.CapacityLimit)
	for i := 0; i < backlog.CapacityLimit; i++ {
		payloads = append(payloads, games.NewGame{Name: fmt.Sprintf("Game %d", i), Status: games.StatusPending})
	}
	if _, err := fixture.service.InsertBatch(context.Background(), owner, payloads); err != nil {
		t.Fatalf("failed to seed collection: %v", err)
	}

	recorder := fixture.do(t, http.MethodPost, "/games", token, `{"name":"One Too Many"}`)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected capacity rejection, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if decodeJSON(t, recorder)["error"] != "collection_full" {
		t.Fatalf("unexpected error code: %s", recorder.Body.String())
	}
}

func TestUpdateUnknownEntryReturnsNotFound(t *testing.T) {
	fixture := newRouterFixture(t)
	recorder := fixture.do(t, http.MethodPatch, "/games/local-999", "", `{"name":"Renamed"}`)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", recorder.Code)
	}
}

func TestSearchWithoutProvidersReturnsEmptyResults(t *testing.T) {
	fixture := newRouterFixture(t)
	recorder := fixture.do(t, http.MethodGet, "/search?query=hollow+knight", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	expected := `{"results":[]}`
	if recorder.Body.String() != expected {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestSignUpReportsMigrationFailure(t *testing.T) {
	fixture := newRouterFixture(t)

	seed := make([]guest.StoredEntry, 0, 60)
	for i := 0; i < 60; i++ {
		seed = append(seed, guest.StoredEntry{
			ID:        fmt.Sprintf("local-%d", i),
			Name:      fmt.Sprintf("Game %d", i),
			Platform:  "Steam",
			Status:    "pending",
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		})
	}
	raw, err := json.Marshal(seed)
	if err != nil {
		t.Fatalf("failed to encode seed: %v", err)
	}
	if err := os.WriteFile(fixture.guestPath, raw, 0o600); err != nil {
		t.Fatalf("failed to write guest slot: %v", err)
	}

	guestStore, err := guest.NewStore(guest.StoreConfig{Path: fixture.guestPath})
	if err != nil {
		t.Fatalf("failed to build guest store: %v", err)
	}
	migrator, err := backlog.NewMigrator(backlog.MigratorConfig{
		Local:  guestStore,
		Remote: &failingInserter{failAt: 2},
	})
	if err != nil {
		t.Fatalf("failed to build migrator: %v", err)
	}

	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/auth/signup", http.NoBody)

	handler := &httpHandler{
		tokens:   auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte("router-test-secret")}),
		migrator: migrator,
		logger:   zap.NewNop(),
	}
	handler.respondWithSession(ctx, users.Account{ID: "account-1", Email: "player@example.com"})

	if recorder.Code != http.StatusOK {
		t.Fatalf("authentication must succeed despite migration failure, got %d", recorder.Code)
	}
	payload := decodeJSON(t, recorder)
	migration, _ := payload["migration"].(map[string]any)
	if migration == nil {
		t.Fatalf("expected migration outcome, got %s", recorder.Body.String())
	}
	if failed, _ := migration["failed"].(bool); !failed {
		t.Fatalf("expected failed migration outcome, got %v", migration)
	}
	if batch, _ := migration["batch"].(float64); int(batch) != 1 {
		t.Fatalf("expected failing batch index 1, got %v", migration["batch"])
	}
	if migrated, _ := migration["migrated"].(float64); int(migrated) != 50 {
		t.Fatalf("expected 50 entries persisted before failure, got %v", migration["migrated"])
	}

	stored, err := guestStore.Load(context.Background())
	if err != nil {
		t.Fatalf("failed to reload slot: %v", err)
	}
	if len(stored) != 60 {
		t.Fatalf("guest slot must be preserved on failure, got %d entries", len(stored))
	}
}

// failingInserter accepts batches until failAt, then refuses.
type failingInserter struct {
	calls  atomic.Int32
	failAt int32
}

func (f *failingInserter) InsertBatch(_ context.Context, _ games.OwnerID, payloads []games.NewGame) ([]games.Game, error) {
	if f.calls.Add(1) >= f.failAt {
		return nil, errors.New("remote collection unavailable")
	}
	return make([]games.Game, len(payloads)), nil
}
