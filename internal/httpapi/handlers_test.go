package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Siwa-Docsecure/base/internal/audit"
	"github.com/Siwa-Docsecure/base/internal/auth"
	"github.com/Siwa-Docsecure/base/internal/ids"
	"github.com/Siwa-Docsecure/base/internal/obs"
	"github.com/Siwa-Docsecure/base/internal/records"
	"github.com/Siwa-Docsecure/base/internal/store/memory"
)

const testPassword = "s3cret-pass"

type harness struct {
	t      *testing.T
	store  *memory.Store
	tokens *auth.TokenService
	engine *records.Engine
	srv    http.Handler
}

func newHarness(t *testing.T, tweak ...func(*Deps)) *harness {
	t.Helper()
	t.Cleanup(obs.SetLogOutput(io.Discard))

	store := memory.New()
	rec := audit.NewRecorder(store)
	tokens, err := auth.NewTokenService(store, store,
		auth.WithSigningSecret("test-access-secret"),
		auth.WithRefreshSecret("test-refresh-secret"),
	)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	engine := records.NewEngine(store, records.WithRecorder(rec))
	accounts, err := auth.NewAccounts(auth.AccountsConfig{
		Users:    store,
		Perms:    store,
		Tokens:   tokens,
		Tenants:  engine,
		Recorder: rec,
	})
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	deps := Deps{
		Tokens:     tokens,
		Accounts:   accounts,
		Guard:      auth.NewGuard(store, nil),
		Engine:     engine,
		Version:    "test",
		RateBurst:  1000,
		RatePerSec: 1000,
		LoginBurst: 100,
	}
	for _, fn := range tweak {
		fn(&deps)
	}
	api, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{t: t, store: store, tokens: tokens, engine: engine, srv: api.Handler()}
}

// seedUser writes a user directly to the store with a cheap password hash.
func (h *harness) seedUser(username string, role auth.Role, clientID string) auth.User {
	h.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		h.t.Fatalf("hash: %v", err)
	}
	now := time.Now().UTC()
	u := auth.User{
		ID:           ids.New(),
		Username:     username,
		Email:        username + "@example.com",
		Role:         role,
		ClientID:     clientID,
		Active:       true,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.CreateUser(context.Background(), u, auth.DefaultPermissions(role)); err != nil {
		h.t.Fatalf("seed user: %v", err)
	}
	return u
}

func (h *harness) token(u auth.User) string {
	h.t.Helper()
	pair, err := h.tokens.Issue(u)
	if err != nil {
		h.t.Fatalf("issue: %v", err)
	}
	return pair.AccessToken
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.srv.ServeHTTP(rr, req)
	return rr
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) map[string]any {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body=%s", rr.Code, want, rr.Body.String())
	}
	out := map[string]any{}
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode body %q: %v", rr.Body.String(), err)
		}
	}
	return out
}

// world is a populated tenant setup shared by the end-to-end tests.
type world struct {
	*harness
	admin, staff       auth.User
	adminTok, staffTok string
	clientA, clientB   string
	boxA, boxB         string
}

func newWorld(t *testing.T) *world {
	t.Helper()
	h := newHarness(t)
	w := &world{harness: h}
	w.admin = h.seedUser("admin", auth.RoleAdmin, "")
	w.staff = h.seedUser("staff", auth.RoleStaff, "")
	w.adminTok, w.staffTok = h.token(w.admin), h.token(w.staff)

	w.clientA = expectStatus(t, h.do(http.MethodPost, "/api/clients", w.adminTok,
		map[string]any{"client_code": "acme", "client_name": "Acme Ltd"}), http.StatusCreated)["id"].(string)
	w.clientB = expectStatus(t, h.do(http.MethodPost, "/api/clients", w.adminTok,
		map[string]any{"client_code": "globex", "client_name": "Globex"}), http.StatusCreated)["id"].(string)
	w.boxA = w.createBox(w.clientA, "001")
	w.boxB = w.createBox(w.clientB, "001")
	return w
}

func (w *world) createBox(clientID, index string) string {
	w.t.Helper()
	body := expectStatus(w.t, w.do(http.MethodPost, "/api/boxes", w.staffTok, map[string]any{
		"client_id":     clientID,
		"box_index":     index,
		"date_received": "2021-04-01",
	}), http.StatusCreated)
	return body["id"].(string)
}

func (w *world) createRetrieval(clientID, boxID string) string {
	w.t.Helper()
	body := expectStatus(w.t, w.do(http.MethodPost, "/api/retrievals", w.staffTok, map[string]any{
		"client_id":      clientID,
		"box_id":         boxID,
		"retrieval_date": "2024-05-02",
		"retrieved_by":   "J. Smith",
	}), http.StatusCreated)
	return body["id"].(string)
}

func (w *world) boxStatus(boxID string) string {
	w.t.Helper()
	return expectStatus(w.t, w.do(http.MethodGet, "/api/boxes/"+boxID, w.staffTok, nil), http.StatusOK)["status"].(string)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	body := expectStatus(t, h.do(http.MethodGet, "/healthz", "", nil), http.StatusOK)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("unexpected body %v", body)
	}
	expectStatus(t, h.do(http.MethodGet, "/readyz", "", nil), http.StatusOK)
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/api/auth/profile", "", nil)
	body := expectStatus(t, rr, http.StatusUnauthorized)
	if body["error"] != "authentication failed" {
		t.Fatalf("error = %v", body["error"])
	}
	if body["request_id"] == "" || rr.Header().Get(requestIDHeader) == "" {
		t.Fatalf("request id missing: %v", body)
	}

	expectStatus(t, h.do(http.MethodGet, "/api/auth/profile", "not-a-jwt", nil), http.StatusUnauthorized)
}

func TestLoginAndProfile(t *testing.T) {
	h := newHarness(t)
	u := h.seedUser("alice", auth.RoleStaff, "")

	body := expectStatus(t, h.do(http.MethodPost, "/api/auth/login", "",
		map[string]any{"username": "alice@example.com", "password": testPassword}), http.StatusOK)
	access, _ := body["access_token"].(string)
	if access == "" || body["refresh_token"] == "" || body["token_type"] != "Bearer" {
		t.Fatalf("unexpected login body %v", body)
	}
	perms := body["permissions"].(map[string]any)
	if perms["can_create_boxes"] != true || perms["can_delete_boxes"] != false {
		t.Fatalf("unexpected permissions %v", perms)
	}

	profile := expectStatus(t, h.do(http.MethodGet, "/api/auth/profile", access, nil), http.StatusOK)
	if profile["user"].(map[string]any)["id"] != u.ID {
		t.Fatalf("profile = %v", profile)
	}

	bad := expectStatus(t, h.do(http.MethodPost, "/api/auth/login", "",
		map[string]any{"username": "alice", "password": "wrong-pass"}), http.StatusUnauthorized)
	if bad["error"] != "invalid credentials" {
		t.Fatalf("error = %v", bad["error"])
	}
}

func TestRefreshAndVerifyToken(t *testing.T) {
	h := newHarness(t)
	u := h.seedUser("bob", auth.RoleStaff, "")
	pair, err := h.tokens.Issue(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	body := expectStatus(t, h.do(http.MethodPost, "/api/auth/refresh", "",
		map[string]any{"refresh_token": pair.RefreshToken}), http.StatusOK)
	fresh, _ := body["access_token"].(string)
	if fresh == "" {
		t.Fatalf("no access token in %v", body)
	}
	expectStatus(t, h.do(http.MethodGet, "/api/auth/profile", fresh, nil), http.StatusOK)

	// An access token is not a refresh token.
	expectStatus(t, h.do(http.MethodPost, "/api/auth/refresh", "",
		map[string]any{"refresh_token": pair.AccessToken}), http.StatusUnauthorized)

	verified := expectStatus(t, h.do(http.MethodPost, "/api/auth/verify-token", "",
		map[string]any{"token": pair.AccessToken}), http.StatusOK)
	if verified["valid"] != true || verified["user"].(map[string]any)["user_id"] != u.ID {
		t.Fatalf("verify = %v", verified)
	}
	expectStatus(t, h.do(http.MethodPost, "/api/auth/verify-token", "",
		map[string]any{"token": "garbage"}), http.StatusUnauthorized)
}

func TestLogoutRevokesToken(t *testing.T) {
	h := newHarness(t)
	u := h.seedUser("carol", auth.RoleStaff, "")
	tok := h.token(u)

	expectStatus(t, h.do(http.MethodPost, "/api/auth/logout", tok, nil), http.StatusOK)
	expectStatus(t, h.do(http.MethodGet, "/api/auth/profile", tok, nil), http.StatusUnauthorized)

	var logouts int
	for _, e := range h.store.AuditEntries() {
		if e.Action == audit.ActionLogout && e.ActorID == u.ID {
			logouts++
			if e.RequestID == "" {
				t.Fatal("logout entry has no request id")
			}
		}
	}
	if logouts != 1 {
		t.Fatalf("logout entries = %d, want 1", logouts)
	}
}

func TestDeactivationRejectsIssuedToken(t *testing.T) {
	h := newHarness(t)
	admin := h.seedUser("root", auth.RoleAdmin, "")
	staff := h.seedUser("dave", auth.RoleStaff, "")
	staffTok := h.token(staff)
	expectStatus(t, h.do(http.MethodGet, "/api/auth/profile", staffTok, nil), http.StatusOK)

	expectStatus(t, h.do(http.MethodPatch, "/api/users/"+staff.ID+"/deactivate", h.token(admin), nil), http.StatusOK)
	expectStatus(t, h.do(http.MethodGet, "/api/auth/profile", staffTok, nil), http.StatusUnauthorized)
}

func TestAdminCreatesStaffWithTemplate(t *testing.T) {
	h := newHarness(t)
	admin := h.seedUser("root", auth.RoleAdmin, "")

	body := expectStatus(t, h.do(http.MethodPost, "/api/users", h.token(admin), map[string]any{
		"username": "erin",
		"email":    "erin@example.com",
		"password": "longenough",
		"role":     "staff",
	}), http.StatusCreated)
	perms := body["permissions"].(map[string]any)
	if perms["can_create_boxes"] != true || perms["can_edit_boxes"] != true || perms["can_delete_boxes"] != false {
		t.Fatalf("template not applied: %v", perms)
	}
	user := body["user"].(map[string]any)
	if _, ok := user["client_id"]; ok {
		t.Fatalf("staff user has tenant: %v", user)
	}

	bad := expectStatus(t, h.do(http.MethodPost, "/api/users", h.token(admin), map[string]any{
		"username": "frank", "email": "frank@example.com", "password": "longenough", "role": "client",
	}), http.StatusBadRequest)
	if bad["error"] != "client_id is required for client role" {
		t.Fatalf("error = %v", bad["error"])
	}
}

func TestSelfDeactivationRejected(t *testing.T) {
	h := newHarness(t)
	admin := h.seedUser("root", auth.RoleAdmin, "")

	expectStatus(t, h.do(http.MethodPatch, "/api/users/"+admin.ID+"/deactivate", h.token(admin), nil), http.StatusBadRequest)
	u, err := h.store.FindUser(context.Background(), admin.ID)
	if err != nil || !u.Active {
		t.Fatalf("admin should remain active: %+v, %v", u, err)
	}
}

func TestUserRoutesAreAdminOnly(t *testing.T) {
	h := newHarness(t)
	staff := h.seedUser("gina", auth.RoleStaff, "")
	body := expectStatus(t, h.do(http.MethodGet, "/api/users/"+staff.ID, h.token(staff), nil), http.StatusForbidden)
	if body["error"] != "access denied" {
		t.Fatalf("error = %v", body["error"])
	}
	admin := h.seedUser("root", auth.RoleAdmin, "")
	expectStatus(t, h.do(http.MethodGet, "/api/users/"+ids.New(), h.token(admin), nil), http.StatusNotFound)
}

func TestPermissionEndpoints(t *testing.T) {
	h := newHarness(t)
	admin := h.seedUser("root", auth.RoleAdmin, "")
	staff := h.seedUser("hank", auth.RoleStaff, "")
	tok := h.token(admin)
	path := "/api/users/" + staff.ID + "/permissions"

	body := expectStatus(t, h.do(http.MethodPost, path+"/grant", tok, map[string]any{"permission": "canDeleteBoxes"}), http.StatusOK)
	if body["permissions"].(map[string]any)["can_delete_boxes"] != true {
		t.Fatalf("grant = %v", body)
	}
	body = expectStatus(t, h.do(http.MethodPut, path, tok, map[string]any{
		"permissions": map[string]bool{"can_create_boxes": false},
	}), http.StatusOK)
	if body["permissions"].(map[string]any)["can_create_boxes"] != false {
		t.Fatalf("put = %v", body)
	}
	expectStatus(t, h.do(http.MethodPost, path+"/revoke", tok, map[string]any{"permission": "can_fly"}), http.StatusBadRequest)

	// The revoked capability now blocks the route.
	expectStatus(t, h.do(http.MethodPost, "/api/boxes", h.token(staff), map[string]any{
		"client_id": "x", "box_index": "1", "date_received": "2024-01-01",
	}), http.StatusForbidden)
}

func TestMissingPermissionRowDenies(t *testing.T) {
	w := newWorld(t)
	w.store.DeletePermissions(w.staff.ID)
	expectStatus(t, w.do(http.MethodPost, "/api/boxes", w.staffTok, map[string]any{
		"client_id": w.clientA, "box_index": "002", "date_received": "2024-01-01",
	}), http.StatusForbidden)
}

func TestClientCrossTenantForbidden(t *testing.T) {
	w := newWorld(t)
	clientUser := w.seedUser("acme-user", auth.RoleClient, w.clientA)
	tok := w.token(clientUser)
	retB := w.createRetrieval(w.clientB, w.boxB)

	cases := []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/api/clients/" + w.clientB, nil},
		{http.MethodGet, "/api/boxes/" + w.boxB, nil},
		{http.MethodGet, "/api/retrievals?client_id=" + w.clientB, nil},
		{http.MethodGet, "/api/retrievals/" + retB, nil},
		{http.MethodPatch, "/api/retrievals/" + retB + "/signatures", map[string]any{"client_signature": "sig"}},
		{http.MethodPost, "/api/retrievals", map[string]any{"client_id": w.clientB, "box_id": w.boxB, "retrieval_date": "2024-01-01"}},
		{http.MethodPatch, "/api/boxes/" + w.boxB + "/status", map[string]any{"status": "destroyed"}},
		{http.MethodPatch, "/api/retrievals/" + retB + "/pdf", map[string]any{"pdf_path": "/tmp/x.pdf"}},
		{http.MethodDelete, "/api/retrievals/" + retB, nil},
	}
	for _, tc := range cases {
		rr := w.do(tc.method, tc.path, tok, tc.body)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s %s = %d, want 403; body=%s", tc.method, tc.path, rr.Code, rr.Body.String())
		}
	}

	// Own tenant works and the listing is pinned to it.
	expectStatus(t, w.do(http.MethodGet, "/api/clients/"+w.clientA, tok, nil), http.StatusOK)
	expectStatus(t, w.do(http.MethodGet, "/api/boxes/"+w.boxA, tok, nil), http.StatusOK)
	page := expectStatus(t, w.do(http.MethodGet, "/api/retrievals", tok, nil), http.StatusOK)
	if page["total"].(float64) != 0 {
		t.Fatalf("client sees foreign retrievals: %v", page)
	}
	if w.boxStatus(w.boxB) != "stored" {
		t.Fatal("foreign box status changed")
	}
}

func TestRetrievalOfDestroyedBoxConflicts(t *testing.T) {
	w := newWorld(t)
	expectStatus(t, w.do(http.MethodPatch, "/api/boxes/"+w.boxA+"/status", w.staffTok,
		map[string]any{"status": "destroyed"}), http.StatusOK)

	rr := w.do(http.MethodPost, "/api/retrievals", w.staffTok, map[string]any{
		"client_id": w.clientA, "box_id": w.boxA, "retrieval_date": "2024-05-02",
	})
	expectStatus(t, rr, http.StatusConflict)
	if w.boxStatus(w.boxA) != "destroyed" {
		t.Fatal("box status changed")
	}
	page := expectStatus(t, w.do(http.MethodGet, "/api/retrievals?box_id="+w.boxA, w.staffTok, nil), http.StatusOK)
	if page["total"].(float64) != 0 {
		t.Fatalf("retrieval row created: %v", page)
	}
}

func TestBoxOfOtherTenantConflicts(t *testing.T) {
	w := newWorld(t)
	expectStatus(t, w.do(http.MethodPost, "/api/retrievals", w.staffTok, map[string]any{
		"client_id": w.clientA, "box_id": w.boxB, "retrieval_date": "2024-05-02",
	}), http.StatusConflict)
}

func TestTwoPartySignature(t *testing.T) {
	w := newWorld(t)
	clientUser := w.seedUser("acme-user", auth.RoleClient, w.clientA)
	clientTok := w.token(clientUser)
	retID := w.createRetrieval(w.clientA, w.boxA)
	if w.boxStatus(w.boxA) != "stored" {
		t.Fatal("creating a retrieval changed the box")
	}

	path := "/api/retrievals/" + retID + "/signatures"
	res := expectStatus(t, w.do(http.MethodPatch, path, w.staffTok, map[string]any{"staff_signature": "staff-sig"}), http.StatusOK)
	if res["box_status_changed"] != false || w.boxStatus(w.boxA) != "stored" {
		t.Fatalf("staff signature moved the box: %v", res)
	}

	// Clients may only write their own slot.
	expectStatus(t, w.do(http.MethodPatch, path, clientTok, map[string]any{"staff_signature": "forged"}), http.StatusBadRequest)

	res = expectStatus(t, w.do(http.MethodPatch, path, clientTok, map[string]any{"client_signature": "client-sig"}), http.StatusOK)
	if res["box_status_changed"] != true || res["box_status"] != "retrieved" || res["retrieval_completed"] != true {
		t.Fatalf("client signature result %v", res)
	}
	res = expectStatus(t, w.do(http.MethodPatch, path, clientTok, map[string]any{"client_signature": "client-sig-2"}), http.StatusOK)
	if res["box_status_changed"] != false {
		t.Fatalf("second client signature moved the box: %v", res)
	}

	var transitions int
	for _, e := range w.store.AuditEntries() {
		if e.Action == audit.ActionBoxStatusChangeOnRetrieval && e.SubjectID == w.boxA {
			transitions++
		}
	}
	if transitions != 1 {
		t.Fatalf("transition entries = %d, want 1", transitions)
	}
}

func TestRetrievalEndDateIncludesWholeDay(t *testing.T) {
	w := newWorld(t)
	expectStatus(t, w.do(http.MethodPost, "/api/retrievals", w.staffTok, map[string]any{
		"client_id": w.clientA, "box_id": w.boxA, "retrieval_date": "2024-05-02T14:30:00Z",
	}), http.StatusCreated)

	page := expectStatus(t, w.do(http.MethodGet, "/api/retrievals?start_date=2024-05-02&end_date=2024-05-02", w.staffTok, nil), http.StatusOK)
	if page["total"].(float64) != 1 {
		t.Fatalf("same-day page = %v", page)
	}
	page = expectStatus(t, w.do(http.MethodGet, "/api/retrievals?end_date=2024-05-01", w.staffTok, nil), http.StatusOK)
	if page["total"].(float64) != 0 {
		t.Fatalf("earlier end_date page = %v", page)
	}
}

func TestPendingRetrievals(t *testing.T) {
	w := newWorld(t)
	clientUser := w.seedUser("acme-user", auth.RoleClient, w.clientA)
	clientTok := w.token(clientUser)

	signed := w.createRetrieval(w.clientA, w.boxA)
	open := w.createRetrieval(w.clientA, w.createBox(w.clientA, "002"))
	w.createRetrieval(w.clientB, w.boxB)
	expectStatus(t, w.do(http.MethodPatch, "/api/retrievals/"+signed+"/signatures", clientTok,
		map[string]any{"client_signature": "client-sig"}), http.StatusOK)

	total := func(path, tok string) float64 {
		t.Helper()
		return expectStatus(t, w.do(http.MethodGet, path, tok, nil), http.StatusOK)["total"].(float64)
	}
	if n := total("/api/retrievals/pending", w.staffTok); n != 2 {
		t.Fatalf("staff pending = %v, want 2", n)
	}
	if n := total("/api/retrievals/pending?client_id="+w.clientA, w.staffTok); n != 1 {
		t.Fatalf("staff pending for tenant = %v, want 1", n)
	}
	if n := total("/api/retrievals?pending=true", w.staffTok); n != 2 {
		t.Fatalf("pending query flag = %v, want 2", n)
	}

	mine := expectStatus(t, w.do(http.MethodGet, "/api/retrievals/pending/my", clientTok, nil), http.StatusOK)
	items := mine["items"].([]any)
	if mine["total"].(float64) != 1 || items[0].(map[string]any)["id"] != open {
		t.Fatalf("client pending = %v", mine)
	}

	expectStatus(t, w.do(http.MethodGet, "/api/retrievals/pending/my?client_id="+w.clientB, clientTok, nil), http.StatusForbidden)
	expectStatus(t, w.do(http.MethodGet, "/api/retrievals/pending", clientTok, nil), http.StatusForbidden)
	expectStatus(t, w.do(http.MethodGet, "/api/retrievals/pending/my", w.staffTok, nil), http.StatusForbidden)
}

func TestRetrievalArtifactListAndDelete(t *testing.T) {
	w := newWorld(t)
	retID := w.createRetrieval(w.clientA, w.boxA)

	expectStatus(t, w.do(http.MethodPatch, "/api/retrievals/"+retID+"/pdf", w.staffTok,
		map[string]any{"pdf_path": "/docs/r.pdf"}), http.StatusOK)
	got := expectStatus(t, w.do(http.MethodGet, "/api/retrievals/"+retID, w.staffTok, nil), http.StatusOK)
	if got["pdf_path"] != "/docs/r.pdf" {
		t.Fatalf("pdf path = %v", got["pdf_path"])
	}

	page := expectStatus(t, w.do(http.MethodGet, "/api/retrievals?client_id="+w.clientA+"&sort_by=created_at&sort_order=asc", w.staffTok, nil), http.StatusOK)
	if page["total"].(float64) != 1 {
		t.Fatalf("page = %v", page)
	}
	expectStatus(t, w.do(http.MethodGet, "/api/retrievals?sort_by=box_number", w.staffTok, nil), http.StatusBadRequest)

	// Only admins delete.
	expectStatus(t, w.do(http.MethodDelete, "/api/retrievals/"+retID, w.staffTok, nil), http.StatusForbidden)
	rr := w.do(http.MethodDelete, "/api/retrievals/"+retID, w.adminTok, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rr.Code)
	}
	body := expectStatus(t, w.do(http.MethodGet, "/api/retrievals/"+retID, w.staffTok, nil), http.StatusNotFound)
	if body["error"] != "retrieval not found" {
		t.Fatalf("error = %v", body["error"])
	}
	if w.boxStatus(w.boxA) != "stored" {
		t.Fatal("delete changed the box")
	}
}

func TestManualMarkRetrieved(t *testing.T) {
	w := newWorld(t)
	body := expectStatus(t, w.do(http.MethodPatch, "/api/retrievals/box/"+w.boxA+"/mark-retrieved", w.staffTok, nil), http.StatusOK)
	if body["new_status"] != "retrieved" || body["old_status"] != "stored" {
		t.Fatalf("mark retrieved = %v", body)
	}
	expectStatus(t, w.do(http.MethodPatch, "/api/retrievals/box/"+w.boxA+"/mark-retrieved", w.staffTok, nil), http.StatusConflict)
}

func TestCreateBoxValidation(t *testing.T) {
	w := newWorld(t)
	expectStatus(t, w.do(http.MethodPost, "/api/boxes", w.staffTok, map[string]any{
		"client_id": w.clientA, "box_index": "001", "date_received": "2021-04-01",
	}), http.StatusConflict)
	expectStatus(t, w.do(http.MethodPost, "/api/boxes", w.staffTok, map[string]any{
		"client_id": w.clientA, "box_index": "009", "date_received": "yesterday",
	}), http.StatusBadRequest)
	body := expectStatus(t, w.do(http.MethodPost, "/api/boxes", w.staffTok, map[string]any{
		"client_id": ids.New(), "box_index": "009", "date_received": "2021-04-01",
	}), http.StatusNotFound)
	if body["error"] != "client not found" {
		t.Fatalf("error = %v", body["error"])
	}
	expectStatus(t, w.do(http.MethodPost, "/api/boxes", w.staffTok, map[string]any{
		"client_id": w.clientA, "box_index": "009", "unknown": true,
	}), http.StatusBadRequest)
}
