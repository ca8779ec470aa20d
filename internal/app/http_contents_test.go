package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cadence/api/internal/store"
)

func signInAs(t *testing.T, server *HTTPServer, fs *fakeStore, id, email, name, role string) string {
	t.Helper()
	addVerifiedUser(t, fs, id, email, name, "hunter2hunter2", role)
	rr := postJSON(t, server, "/api/auth/signin",
		fmt.Sprintf(`{"email":%q,"password":"hunter2hunter2"}`, email), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("sign in %s: status %d body=%s", email, rr.Code, rr.Body.String())
	}
	token, _ := parseJSON(t, rr)["token"].(string)
	if token == "" {
		t.Fatalf("sign in %s: no token", email)
	}
	return token
}

func setupContentServer(t *testing.T) (*HTTPServer, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	seedBoardItems(fs)
	svc := newTestService(t, fs)
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return NewHTTPServer(svc, "*"), fs
}

func getJSON(t *testing.T, server *HTTPServer, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func authed(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestCreateContentStaffBecomesPIC(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	rr := postJSON(t, server, "/api/contents",
		`{"title":"Aftermovie cut","platform":"Reels","deadline":"2026-09-20","picEmail":"someone-else@example.com"}`,
		authed(token))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	content, _ := parseJSON(t, rr)["content"].(map[string]any)
	if content["picEmail"] != "rina@example.com" {
		t.Fatalf("staff-created item must belong to the creator, got PIC %v", content["picEmail"])
	}
	if content["status"] != store.StatusNotStarted {
		t.Fatalf("new items start in Not Started, got %v", content["status"])
	}
	if id, _ := content["id"].(string); !strings.HasPrefix(id, "cnt_") {
		t.Fatalf("unexpected id %v", content["id"])
	}
}

func TestCreateContentAdminAssignsPIC(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_ad", "lead@example.com", "Lead", "admin")

	rr := postJSON(t, server, "/api/contents",
		`{"title":"Sponsor bumper","platform":"TikTok","deadline":"2026-09-22","picEmail":"dimas@example.com"}`,
		authed(token))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	content, _ := parseJSON(t, rr)["content"].(map[string]any)
	if content["picEmail"] != "dimas@example.com" {
		t.Fatalf("admin PIC assignment ignored, got %v", content["picEmail"])
	}
}

func TestCreateContentRejectsUnknownPlatform(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	rr := postJSON(t, server, "/api/contents",
		`{"title":"Broadcast spot","platform":"Cable TV","deadline":"2026-09-20"}`, authed(token))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := parseJSON(t, rr); payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", payload["code"])
	}
}

func TestListContentsFiltersByStatus(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	rr := getJSON(t, server, "/api/contents?status=In+Progress", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	contents, _ := parseJSON(t, rr)["contents"].([]any)
	if len(contents) != 2 {
		t.Fatalf("expected 2 In Progress items, got %d", len(contents))
	}

	bogus := getJSON(t, server, "/api/contents?status=Shipped", token)
	if bogus.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for unknown status, got %d", bogus.Code)
	}
}

func TestBoardViewGroupsColumns(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	rr := getJSON(t, server, "/api/contents?view=board", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	columns, _ := parseJSON(t, rr)["columns"].(map[string]any)
	for _, status := range []string{store.StatusNotStarted, store.StatusInProgress, store.StatusComplete} {
		if _, ok := columns[status]; !ok {
			t.Fatalf("board is missing the %q column", status)
		}
	}
	inProgress, _ := columns[store.StatusInProgress].([]any)
	if len(inProgress) != 2 {
		t.Fatalf("expected 2 items in In Progress, got %d", len(inProgress))
	}
}

func TestPatchForeignItemForbiddenForStaff(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	req := httptest.NewRequest(http.MethodPatch, "/api/contents/cnt_2",
		strings.NewReader(`{"title":"Hijacked"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestPatchOwnItem(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	req := httptest.NewRequest(http.MethodPatch, "/api/contents/cnt_1",
		strings.NewReader(`{"brief":"Use the drone footage from day two."}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	content, _ := parseJSON(t, rr)["content"].(map[string]any)
	if content["brief"] != "Use the drone footage from day two." {
		t.Fatalf("brief not updated, got %v", content["brief"])
	}
}

func TestPatchCompleteWithoutLinkRejected(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	req := httptest.NewRequest(http.MethodPatch, "/api/contents/cnt_1",
		strings.NewReader(fmt.Sprintf(`{"status":%q}`, store.StatusComplete)))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseJSON(t, rr)
	details, _ := payload["details"].(map[string]any)
	if details["field"] != "final_drive_link" {
		t.Fatalf("expected final_drive_link validation, got %v", payload)
	}
}

func TestTransitionNeedsFinalLink(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	rr := postJSON(t, server, "/api/contents/cnt_1/transition",
		fmt.Sprintf(`{"status":%q}`, store.StatusComplete), authed(token))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseJSON(t, rr)
	if payload["code"] != "NEEDS_FINAL_LINK" {
		t.Fatalf("expected NEEDS_FINAL_LINK, got %v", payload["code"])
	}
	details, _ := payload["details"].(map[string]any)
	content, _ := details["content"].(map[string]any)
	if content["id"] != "cnt_1" {
		t.Fatalf("expected the rejected item in details, got %v", payload["details"])
	}

	// Nothing moved.
	item, err := fs.GetContent(context.Background(), "cnt_1")
	if err != nil || item.Status != store.StatusNotStarted {
		t.Fatalf("item changed on rejected transition: %+v err=%v", item, err)
	}
}

func TestTransitionApplied(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	rr := postJSON(t, server, "/api/contents/cnt_1/transition",
		fmt.Sprintf(`{"status":%q}`, store.StatusInProgress), authed(token))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseJSON(t, rr)
	if payload["applied"] != true {
		t.Fatalf("expected applied=true, got %v", payload)
	}
	item, err := fs.GetContent(context.Background(), "cnt_1")
	if err != nil || item.Status != store.StatusInProgress {
		t.Fatalf("store not updated: %+v err=%v", item, err)
	}
}

func TestTransitionNoOpIsDropped(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	rr := postJSON(t, server, "/api/contents/cnt_1/transition",
		fmt.Sprintf(`{"status":%q}`, store.StatusNotStarted), authed(token))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if payload := parseJSON(t, rr); payload["applied"] != false {
		t.Fatalf("expected applied=false for a no-op move, got %v", payload)
	}
}

func TestTransitionForeignItemForbiddenForStaff(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	rr := postJSON(t, server, "/api/contents/cnt_2/transition",
		fmt.Sprintf(`{"status":%q}`, store.StatusNotStarted), authed(token))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestTransitionUnknownItem(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	rr := postJSON(t, server, "/api/contents/cnt_missing/transition",
		fmt.Sprintf(`{"status":%q}`, store.StatusInProgress), authed(token))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestAuditEndpoint(t *testing.T) {
	server, fs := setupContentServer(t)
	fs.mu.Lock()
	fs.audit = []store.AuditLogEntry{
		{ID: 1, ContentID: "cnt_1", ChangedAt: time.Now(), ChangedBy: "rina@example.com", Field: "status", OldValue: store.StatusNotStarted, NewValue: store.StatusInProgress},
	}
	fs.mu.Unlock()
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	rr := getJSON(t, server, "/api/contents/cnt_1/audit", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	entries, _ := parseJSON(t, rr)["audit"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(entries))
	}
	first, _ := entries[0].(map[string]any)
	if first["changedBy"] != "rina@example.com" || first["field"] != "status" {
		t.Fatalf("unexpected audit row %v", first)
	}
}

func TestCalendarEndpoint(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	rr := getJSON(t, server, "/api/calendar?month=2026-09", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseJSON(t, rr)
	if payload["year"] != float64(2026) || payload["month"] != float64(9) {
		t.Fatalf("unexpected month payload %v", payload)
	}
	weeks, _ := payload["weeks"].([]any)
	if len(weeks) == 0 {
		t.Fatal("expected week rows")
	}

	bad := getJSON(t, server, "/api/calendar?month=September", token)
	if bad.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for malformed month, got %d", bad.Code)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	rr := getJSON(t, server, "/api/summary", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	payload := parseJSON(t, rr)
	if payload["total"] != float64(3) || payload["inProgress"] != float64(2) {
		t.Fatalf("unexpected summary %v", payload)
	}
}

func TestExportEndpointReturnsHTMLReport(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	rr := postJSON(t, server, "/api/export",
		`{"title":"Weekly report","format":"html"}`, authed(token))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected HTML content type, got %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "Festival teaser") {
		t.Fatal("report body missing board item")
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "Weekly-report.html") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
}

func TestSearchEndpointWithoutBackend(t *testing.T) {
	server, fs := setupContentServer(t)
	token := signInAs(t, server, fs, "usr_rina", "rina@example.com", "Rina", "staff")

	rr := getJSON(t, server, "/api/search?q=teaser", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	results, ok := parseJSON(t, rr)["results"].([]any)
	if !ok || len(results) != 0 {
		t.Fatalf("expected empty result list without a backend, got %v", results)
	}
}
