package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	"github.com/spec-kit/helpdesk/internal/storage"
)

type harness struct {
	t   *testing.T
	app *App
}

type response struct {
	status int
	header http.Header
	raw    []byte
	body   map[string]any
}

func (r response) data() map[string]any {
	data, _ := r.body["data"].(map[string]any)
	return data
}

func (r response) errorCode() string {
	errBody, _ := r.body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	blobs, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	cfg := config.Config{
		App:        config.AppConfig{Name: "helpdesk-test", Version: "test"},
		Auth:       config.AuthConfig{JWTSecret: "app-test-secret", AccessTokenTTLMinutes: 60, BcryptCost: bcrypt.MinCost},
		Attachment: config.AttachmentConfig{MaxBytes: 1 << 20},
	}
	return &harness{t: t, app: New(Dependencies{
		Config:      cfg,
		Repos:       memory.NewStore().Set(),
		Blobs:       blobs,
		Revocations: auth.NewMemoryRevocationStore(),
	})}
}

func (h *harness) send(req *http.Request) response {
	h.t.Helper()
	resp, err := h.app.Fiber.Test(req, -1)
	if err != nil {
		h.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read body: %v", err)
	}
	out := response{status: resp.StatusCode, header: resp.Header, raw: raw}
	if len(raw) > 0 && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		if err := json.Unmarshal(raw, &out.body); err != nil {
			h.t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return out
}

func (h *harness) do(method, path, token string, body any) response {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			encoded, err := json.Marshal(b)
			if err != nil {
				h.t.Fatalf("encode: %v", err)
			}
			reader = bytes.NewReader(encoded)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return h.send(req)
}

func (h *harness) register(name string) (string, string) {
	h.t.Helper()
	resp := h.do(http.MethodPost, "/auth/register", "", map[string]string{
		"name":     name,
		"email":    name + "@example.com",
		"password": "password-" + name,
	})
	if resp.status != http.StatusCreated {
		h.t.Fatalf("register %s: %d %s", name, resp.status, resp.raw)
	}
	user := resp.data()["user"].(map[string]any)
	return resp.data()["token"].(string), user["id"].(string)
}

// staff creates an agent or admin directly and logs in over HTTP.
func (h *harness) staff(name string, role domain.Role) (string, string) {
	h.t.Helper()
	user, err := h.app.Auth.CreateUser(context.Background(), name, name+"@example.com", "password-"+name, role)
	if err != nil {
		h.t.Fatalf("create %s: %v", name, err)
	}
	resp := h.do(http.MethodPost, "/auth/login", "", map[string]string{"email": name + "@example.com", "password": "password-" + name})
	if resp.status != http.StatusOK {
		h.t.Fatalf("login %s: %d %s", name, resp.status, resp.raw)
	}
	return resp.data()["token"].(string), user.ID
}

func (h *harness) createTicket(token, title string) string {
	h.t.Helper()
	resp := h.do(http.MethodPost, "/tickets", token, map[string]string{
		"title":       title,
		"description": "details for " + title,
		"category":    "technical",
		"priority":    "high",
	})
	if resp.status != http.StatusCreated {
		h.t.Fatalf("create ticket: %d %s", resp.status, resp.raw)
	}
	return resp.data()["id"].(string)
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	h := newHarness(t)

	resp := h.do(http.MethodGet, "/health/live", "", nil)
	if resp.status != http.StatusOK || resp.body["status"] != "alive" {
		t.Fatalf("live: %d %s", resp.status, resp.raw)
	}
	resp = h.do(http.MethodGet, "/health/ready", "", nil)
	if resp.status != http.StatusOK {
		t.Fatalf("ready without checks should pass: %d %s", resp.status, resp.raw)
	}

	resp = h.do(http.MethodGet, "/does-not-exist", "", nil)
	if resp.status != http.StatusNotFound || resp.errorCode() != "NOT_FOUND" {
		t.Fatalf("unknown route: %d %s", resp.status, resp.raw)
	}
	if resp.header.Get("X-Request-ID") == "" {
		t.Fatalf("responses should carry a request id")
	}
}

func TestAuthSession(t *testing.T) {
	h := newHarness(t)

	resp := h.do(http.MethodGet, "/auth/me", "", nil)
	if resp.status != http.StatusUnauthorized || resp.errorCode() != "UNAUTHORIZED" {
		t.Fatalf("me without token: %d %s", resp.status, resp.raw)
	}

	token, id := h.register("ana")
	resp = h.do(http.MethodGet, "/auth/me", token, nil)
	if resp.status != http.StatusOK || resp.data()["id"] != id || resp.data()["role"] != "user" {
		t.Fatalf("me: %d %s", resp.status, resp.raw)
	}

	resp = h.do(http.MethodPost, "/auth/register", "", map[string]string{"name": "ana", "email": "ANA@example.com", "password": "whatever1"})
	if resp.status != http.StatusConflict || resp.errorCode() != "CONFLICT" {
		t.Fatalf("duplicate register: %d %s", resp.status, resp.raw)
	}

	resp = h.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@example.com", "password": "nope-nope"})
	if resp.status != http.StatusUnauthorized {
		t.Fatalf("bad login: %d %s", resp.status, resp.raw)
	}

	resp = h.do(http.MethodPost, "/auth/logout", token, nil)
	if resp.status != http.StatusOK {
		t.Fatalf("logout: %d %s", resp.status, resp.raw)
	}
	resp = h.do(http.MethodGet, "/auth/me", token, nil)
	if resp.status != http.StatusUnauthorized {
		t.Fatalf("revoked token should be rejected: %d %s", resp.status, resp.raw)
	}
}

func TestRegisterValidationEnvelope(t *testing.T) {
	h := newHarness(t)

	resp := h.do(http.MethodPost, "/auth/register", "", map[string]string{"name": "", "email": "bad", "password": "short"})
	if resp.status != http.StatusUnprocessableEntity || resp.errorCode() != "VALIDATION_FAILED" {
		t.Fatalf("register validation: %d %s", resp.status, resp.raw)
	}
	details := resp.body["error"].(map[string]any)["details"].(map[string]any)
	for _, field := range []string{"name", "email", "password"} {
		if _, ok := details[field]; !ok {
			t.Errorf("missing detail for %s: %v", field, details)
		}
	}

	resp = h.do(http.MethodPost, "/auth/register", "", "{not json")
	if resp.status != http.StatusUnprocessableEntity {
		t.Fatalf("malformed body: %d %s", resp.status, resp.raw)
	}
}

func TestTicketWorkflow(t *testing.T) {
	h := newHarness(t)
	userToken, userID := h.register("ben")
	agentToken, agentID := h.staff("agent", domain.RoleAgent)
	ticketID := h.createTicket(userToken, "Screen is black")

	resp := h.do(http.MethodPost, "/tickets", agentToken, map[string]string{"title": "Agent ticket", "description": "y", "category": "general", "priority": "low"})
	if resp.status != http.StatusForbidden {
		t.Fatalf("agents cannot open tickets: %d %s", resp.status, resp.raw)
	}

	resp = h.do(http.MethodPost, "/tickets/"+ticketID+"/assign", userToken, map[string]string{"agent_id": agentID})
	if resp.status != http.StatusForbidden || resp.errorCode() != "FORBIDDEN" {
		t.Fatalf("user assign: %d %s", resp.status, resp.raw)
	}

	resp = h.do(http.MethodPost, "/tickets/"+ticketID+"/assign", agentToken, map[string]string{"agent_id": agentID})
	if resp.status != http.StatusOK || resp.data()["status"] != "in_progress" || resp.data()["assigned_to"] != agentID {
		t.Fatalf("assign: %d %s", resp.status, resp.raw)
	}
	if agent, _ := resp.data()["assigned_agent"].(map[string]any); agent["id"] != agentID || agent["name"] != "agent" {
		t.Fatalf("assign should resolve the assignee: %s", resp.raw)
	}

	resp = h.do(http.MethodPatch, "/tickets/"+ticketID, agentToken, map[string]string{"status": "open"})
	if resp.status != http.StatusUnprocessableEntity || resp.errorCode() != "INVALID_TRANSITION" {
		t.Fatalf("illegal transition: %d %s", resp.status, resp.raw)
	}

	resp = h.do(http.MethodPatch, "/tickets/"+ticketID, agentToken, map[string]string{"status": "resolved"})
	if resp.status != http.StatusOK || resp.data()["status"] != "resolved" {
		t.Fatalf("resolve: %d %s", resp.status, resp.raw)
	}
	transitions, _ := resp.data()["allowed_transitions"].([]any)
	if len(transitions) != 1 || transitions[0] != "closed" {
		t.Fatalf("allowed_transitions = %v", transitions)
	}

	resp = h.do(http.MethodGet, "/tickets/"+ticketID, userToken, nil)
	if resp.status != http.StatusOK {
		t.Fatalf("owner get: %d %s", resp.status, resp.raw)
	}
	if agent, _ := resp.data()["assigned_agent"].(map[string]any); agent["id"] != agentID {
		t.Fatalf("assigned_agent = %v", resp.data()["assigned_agent"])
	}
	if creator, _ := resp.data()["user"].(map[string]any); creator["id"] != userID {
		t.Fatalf("user = %v", resp.data()["user"])
	}

	resp = h.do(http.MethodGet, "/tickets/"+ticketID+"/history", userToken, nil)
	if history, _ := resp.body["data"].([]any); resp.status != http.StatusOK || len(history) != 3 {
		t.Fatalf("history: %d %s", resp.status, resp.raw)
	}
}

func TestAssignmentResponsesResolveUsers(t *testing.T) {
	h := newHarness(t)
	userToken, userID := h.register("kim")
	adminToken, adminID := h.staff("admin", domain.RoleAdmin)
	ticketID := h.createTicket(userToken, "Laptop fan")

	resp := h.do(http.MethodPost, "/tickets/"+ticketID+"/auto-assign", adminToken, nil)
	if resp.status != http.StatusOK {
		t.Fatalf("auto-assign: %d %s", resp.status, resp.raw)
	}
	if agent, _ := resp.data()["assigned_agent"].(map[string]any); agent["id"] != adminID {
		t.Fatalf("auto-assign should resolve the assignee: %s", resp.raw)
	}
	if creator, _ := resp.data()["user"].(map[string]any); creator["id"] != userID {
		t.Fatalf("auto-assign should resolve the creator: %s", resp.raw)
	}

	resp = h.do(http.MethodPost, "/tickets/"+ticketID+"/unassign", adminToken, nil)
	if resp.status != http.StatusOK || resp.data()["status"] != "open" {
		t.Fatalf("unassign: %d %s", resp.status, resp.raw)
	}
	if resp.data()["assigned_agent"] != nil {
		t.Fatalf("unassigned ticket should have no agent: %s", resp.raw)
	}
	if creator, _ := resp.data()["user"].(map[string]any); creator["id"] != userID {
		t.Fatalf("unassign should resolve the creator: %s", resp.raw)
	}
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	h := newHarness(t)
	userToken, _ := h.register("lou")
	adminToken, _ := h.staff("admin", domain.RoleAdmin)
	ticketID := h.createTicket(userToken, "Ids")

	cases := []struct {
		method, path, token string
		body                any
	}{
		{http.MethodGet, "/tickets/not-a-uuid", userToken, nil},
		{http.MethodGet, "/tickets/not-a-uuid/history", userToken, nil},
		{http.MethodPost, "/tickets/" + ticketID + "/assign", adminToken, map[string]string{"agent_id": "not-a-uuid"}},
		{http.MethodPut, "/tickets/" + ticketID + "/comments/not-a-uuid", userToken, map[string]string{"comment_text": "x"}},
		{http.MethodGet, "/attachments/not-a-uuid/download", userToken, nil},
	}
	for _, tc := range cases {
		resp := h.do(tc.method, tc.path, tc.token, tc.body)
		if resp.status != http.StatusNotFound || resp.errorCode() != "NOT_FOUND" {
			t.Errorf("%s %s: %d %s", tc.method, tc.path, resp.status, resp.raw)
		}
	}
}

func TestTicketListing(t *testing.T) {
	h := newHarness(t)
	userToken, _ := h.register("cleo")
	otherToken, _ := h.register("dora")
	for i := 0; i < 3; i++ {
		h.createTicket(userToken, fmt.Sprintf("Mine %d", i))
	}
	h.createTicket(otherToken, "Not mine")

	resp := h.do(http.MethodGet, "/tickets?per_page=2&page=2", userToken, nil)
	if resp.status != http.StatusOK {
		t.Fatalf("list: %d %s", resp.status, resp.raw)
	}
	items, _ := resp.body["data"].([]any)
	meta, _ := resp.body["meta"].(map[string]any)
	if len(items) != 1 || meta["total"] != float64(3) || meta["last_page"] != float64(2) || meta["current_page"] != float64(2) {
		t.Fatalf("unexpected page: %s", resp.raw)
	}

	resp = h.do(http.MethodGet, "/tickets?status=bogus", userToken, nil)
	if resp.status != http.StatusUnprocessableEntity || resp.errorCode() != "VALIDATION_FAILED" {
		t.Fatalf("bad filter: %d %s", resp.status, resp.raw)
	}

	resp = h.do(http.MethodGet, "/tickets?page=abc&search=mine%201", userToken, nil)
	if items, _ := resp.body["data"].([]any); resp.status != http.StatusOK || len(items) != 1 {
		t.Fatalf("search with bad page: %d %s", resp.status, resp.raw)
	}

	resp = h.do(http.MethodGet, "/tickets", "", nil)
	if resp.status != http.StatusUnauthorized {
		t.Fatalf("list without token: %d", resp.status)
	}
}

func TestCommentsOverHTTP(t *testing.T) {
	h := newHarness(t)
	ownerToken, _ := h.register("eli")
	strangerToken, _ := h.register("fay")
	ticketID := h.createTicket(ownerToken, "Comments")
	path := "/tickets/" + ticketID + "/comments"

	resp := h.do(http.MethodPost, path, strangerToken, map[string]string{"comment_text": "hi"})
	if resp.status != http.StatusForbidden {
		t.Fatalf("stranger comment: %d %s", resp.status, resp.raw)
	}

	resp = h.do(http.MethodPost, path, ownerToken, map[string]string{"comment_text": "first"})
	if resp.status != http.StatusCreated {
		t.Fatalf("comment: %d %s", resp.status, resp.raw)
	}
	commentID := resp.data()["id"].(string)

	resp = h.do(http.MethodPut, path+"/"+commentID, ownerToken, map[string]string{"comment_text": "edited"})
	if resp.status != http.StatusOK {
		t.Fatalf("edit: %d %s", resp.status, resp.raw)
	}

	resp = h.do(http.MethodDelete, path+"/"+commentID, ownerToken, nil)
	if resp.status != http.StatusNoContent {
		t.Fatalf("delete: %d %s", resp.status, resp.raw)
	}

	resp = h.do(http.MethodGet, path, ownerToken, nil)
	if items, _ := resp.body["data"].([]any); resp.status != http.StatusOK || len(items) != 0 {
		t.Fatalf("list after delete: %d %s", resp.status, resp.raw)
	}
}

func TestAttachmentDownload(t *testing.T) {
	h := newHarness(t)
	ownerToken, _ := h.register("gus")
	strangerToken, _ := h.register("hal")
	ticketID := h.createTicket(ownerToken, "Attachments")

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", `form-data; name="file"; filename="notes.txt"`)
	partHeader.Set("Content-Type", "text/plain")
	part, err := form.CreatePart(partHeader)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	content := "steps to reproduce"
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/tickets/"+ticketID+"/attachments", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	resp := h.send(req)
	if resp.status != http.StatusCreated {
		t.Fatalf("upload: %d %s", resp.status, resp.raw)
	}
	attachmentID := resp.data()["id"].(string)
	checksum := resp.data()["checksum"].(string)

	resp = h.do(http.MethodGet, "/attachments/"+attachmentID+"/download", ownerToken, nil)
	if resp.status != http.StatusOK || string(resp.raw) != content {
		t.Fatalf("download: %d %q", resp.status, resp.raw)
	}
	etag := resp.header.Get("ETag")
	if etag != `"`+checksum+`"` {
		t.Fatalf("etag = %s, want quoted checksum", etag)
	}

	req = httptest.NewRequest(http.MethodGet, "/attachments/"+attachmentID+"/download", nil)
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	req.Header.Set("If-None-Match", etag)
	if resp = h.send(req); resp.status != http.StatusNotModified {
		t.Fatalf("conditional download: %d", resp.status)
	}

	resp = h.do(http.MethodGet, "/attachments/"+attachmentID+"/download", strangerToken, nil)
	if resp.status != http.StatusForbidden {
		t.Fatalf("stranger download: %d", resp.status)
	}

	resp = h.do(http.MethodDelete, "/attachments/"+attachmentID, ownerToken, nil)
	if resp.status != http.StatusNoContent {
		t.Fatalf("delete: %d %s", resp.status, resp.raw)
	}
	resp = h.do(http.MethodGet, "/attachments/"+attachmentID+"/download", ownerToken, nil)
	if resp.status != http.StatusNotFound {
		t.Fatalf("download after delete: %d", resp.status)
	}
}

func TestDashboardOverHTTP(t *testing.T) {
	h := newHarness(t)
	userToken, _ := h.register("ida")
	adminToken, _ := h.staff("admin", domain.RoleAdmin)
	h.createTicket(userToken, "Counted")

	resp := h.do(http.MethodGet, "/stats/dashboard", adminToken, nil)
	if resp.status != http.StatusOK || resp.data()["role"] != "admin" {
		t.Fatalf("dashboard: %d %s", resp.status, resp.raw)
	}
	admin, _ := resp.data()["admin"].(map[string]any)
	if admin["total_tickets"] != float64(1) || admin["unassigned_open"] != float64(1) {
		t.Fatalf("admin stats: %s", resp.raw)
	}

	resp = h.do(http.MethodGet, "/stats/dashboard", userToken, nil)
	if user, _ := resp.data()["user"].(map[string]any); user["my_tickets"] != float64(1) {
		t.Fatalf("user stats: %s", resp.raw)
	}
}
