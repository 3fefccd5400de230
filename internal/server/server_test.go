package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"minishelf/internal/admintoken"
	"minishelf/internal/app"
	"minishelf/internal/auth"
	"minishelf/internal/store"
	"minishelf/pkg/domain"
)

type fakeLookup struct {
	hits map[string]domain.BookMetadata
}

func (f *fakeLookup) ByISBN(_ context.Context, isbn string) (domain.BookMetadata, bool) {
	meta, ok := f.hits[isbn]
	return meta, ok
}

type testServer struct {
	srv *httptest.Server
	mem *store.MemoryStore
}

func newTestServer(t *testing.T, hits map[string]domain.BookMetadata, loginLimit int) *testServer {
	t.Helper()
	mem := store.NewMemoryStore()
	a, err := app.New(app.Config{Store: mem, Lookup: &fakeLookup{hits: hits}})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	redisSrv := miniredis.RunT(t)
	tokens, err := admintoken.New("test-admin-secret", time.Hour)
	if err != nil {
		t.Fatalf("admintoken.New: %v", err)
	}
	s, err := New(Config{
		App:                          a,
		AdminPasswordHash:            auth.HashPassword("open sesame"),
		AdminTokens:                  tokens,
		RedisAddr:                    redisSrv.Addr(),
		AdminLoginRateLimitPerMinute: loginLimit,
		ScanConfirmReads:             3,
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, mem: mem}
}

func (ts *testServer) seedBook(t *testing.T, id, title string) {
	t.Helper()
	book := domain.Book{
		ID:        id,
		Title:     title,
		Author:    "Test Author",
		Status:    domain.StatusAvailable,
		CreatedAt: time.Now().UTC(),
	}
	if err := ts.mem.CreateBook(book); err != nil {
		t.Fatalf("seed book %s: %v", id, err)
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var parsed map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&parsed)
	}
	return resp, parsed
}

func (ts *testServer) login(t *testing.T, password string) (int, string) {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{"password": password})
	token, _ := body["token"].(string)
	return resp.StatusCode, token
}

func TestBorrowReturnFlow(t *testing.T) {
	ts := newTestServer(t, nil, 100)
	ts.seedBook(t, "9780000000001", "Concurrency in Practice")

	resp, body := ts.do(t, http.MethodPost, "/api/loans", "", map[string]any{
		"bookId": "9780000000001", "borrowerName": "Alice", "durationDays": 14,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("alice borrow: status %d body %v", resp.StatusCode, body)
	}
	loanID, _ := body["id"].(string)
	if loanID == "" {
		t.Fatalf("alice borrow: no loan id in %v", body)
	}

	resp, _ = ts.do(t, http.MethodPost, "/api/loans", "", map[string]any{
		"bookId": "9780000000001", "borrowerName": "Bob", "durationDays": 7,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("bob borrow while loaned: status %d, want 409", resp.StatusCode)
	}

	resp, body = ts.do(t, http.MethodGet, "/api/loans?borrower=Alice", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("alice loans: status %d", resp.StatusCode)
	}
	if count, _ := body["count"].(float64); count != 1 {
		t.Fatalf("alice loans: count %v, want 1", body["count"])
	}

	resp, _ = ts.do(t, http.MethodPost, "/api/returns", "", map[string]any{
		"loanId": loanID, "rating": 5, "comment": "great read",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("alice return: status %d, want 204", resp.StatusCode)
	}

	resp, _ = ts.do(t, http.MethodPost, "/api/returns", "", map[string]any{
		"loanId": loanID, "rating": 4, "comment": "again",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double return: status %d, want 409", resp.StatusCode)
	}

	resp, _ = ts.do(t, http.MethodPost, "/api/loans", "", map[string]any{
		"bookId": "9780000000001", "borrowerName": "Bob", "durationDays": 7,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("bob borrow after return: status %d, want 201", resp.StatusCode)
	}

	resp, body = ts.do(t, http.MethodGet, "/api/books/9780000000001", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("book detail: status %d", resp.StatusCode)
	}
	if body["activeLoan"] == nil {
		t.Fatalf("book detail: expected active loan, got %v", body)
	}
	reviews, _ := body["reviews"].([]any)
	if len(reviews) != 1 {
		t.Fatalf("book detail: %d reviews, want 1", len(reviews))
	}
}

func TestBorrowValidation(t *testing.T) {
	ts := newTestServer(t, nil, 100)
	ts.seedBook(t, "9780000000001", "A Book")

	cases := []struct {
		name string
		body map[string]any
	}{
		{"blank borrower", map[string]any{"bookId": "9780000000001", "borrowerName": "  ", "durationDays": 7}},
		{"bad duration", map[string]any{"bookId": "9780000000001", "borrowerName": "Alice", "durationDays": 10}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := ts.do(t, http.MethodPost, "/api/loans", "", tc.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status %d, want 400", resp.StatusCode)
			}
		})
	}

	resp, _ := ts.do(t, http.MethodPost, "/api/returns", "", map[string]any{
		"loanId": "nope", "rating": 6, "comment": "x",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad rating: status %d, want 400", resp.StatusCode)
	}
}

func TestAdminLoginAndRegister(t *testing.T) {
	isbn := "9784873119038"
	ts := newTestServer(t, map[string]domain.BookMetadata{
		isbn: {Title: "Some Manual", Author: "An Author"},
	}, 100)

	resp, _ := ts.do(t, http.MethodPost, "/api/admin/books", "", map[string]string{"isbn": isbn})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("register without token: status %d, want 401", resp.StatusCode)
	}

	if code, _ := ts.login(t, "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("login with wrong password: status %d, want 401", code)
	}
	code, token := ts.login(t, "open sesame")
	if code != http.StatusOK || token == "" {
		t.Fatalf("login: status %d token %q", code, token)
	}

	resp, body := ts.do(t, http.MethodPost, "/api/admin/books", token, map[string]string{
		"isbn": isbn, "donorComment": "from my shelf",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d body %v", resp.StatusCode, body)
	}
	if body["title"] != "Some Manual" {
		t.Fatalf("register: title %v", body["title"])
	}

	resp, _ = ts.do(t, http.MethodPost, "/api/admin/books", token, map[string]string{"isbn": isbn})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register: status %d, want 409", resp.StatusCode)
	}

	resp, _ = ts.do(t, http.MethodPost, "/api/admin/books", token, map[string]string{"isbn": "9791234567896"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown isbn register: status %d, want 404", resp.StatusCode)
	}

	resp, _ = ts.do(t, http.MethodPost, "/api/admin/books", "not-a-token", map[string]string{"isbn": isbn})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("register with bad token: status %d, want 401", resp.StatusCode)
	}
}

func TestAdminLoginRateLimited(t *testing.T) {
	ts := newTestServer(t, nil, 2)

	if code, _ := ts.login(t, "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("first attempt: status %d", code)
	}
	if code, _ := ts.login(t, "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("second attempt: status %d", code)
	}
	if code, _ := ts.login(t, "open sesame"); code != http.StatusTooManyRequests {
		t.Fatalf("third attempt: status %d, want 429", code)
	}
}

func TestAdminLoansAndReviewModeration(t *testing.T) {
	ts := newTestServer(t, nil, 100)
	ts.seedBook(t, "9780000000001", "A Book")
	_, token := ts.login(t, "open sesame")

	resp, _ := ts.do(t, http.MethodPost, "/api/loans", "", map[string]any{
		"bookId": "9780000000001", "borrowerName": "Carol", "durationDays": 7,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("borrow: status %d", resp.StatusCode)
	}

	resp, body := ts.do(t, http.MethodGet, "/api/admin/loans", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin loans: status %d", resp.StatusCode)
	}
	if count, _ := body["count"].(float64); count != 1 {
		t.Fatalf("admin loans: count %v, want 1", body["count"])
	}

	resp, body = ts.do(t, http.MethodPost, "/api/reviews", "", map[string]any{
		"bookId": "9780000000001", "reviewerName": "Dave", "rating": 2, "comment": "not my genre",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("review: status %d", resp.StatusCode)
	}
	reviewID, _ := body["id"].(string)

	resp, _ = ts.do(t, http.MethodDelete, "/api/admin/reviews/"+reviewID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete review: status %d", resp.StatusCode)
	}

	resp, body = ts.do(t, http.MethodGet, "/api/books/9780000000001", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detail: status %d", resp.StatusCode)
	}
	if reviews, _ := body["reviews"].([]any); len(reviews) != 0 {
		t.Fatalf("detail after moderation: %d reviews, want 0", len(reviews))
	}
}

func TestScanDebounce(t *testing.T) {
	ts := newTestServer(t, nil, 100)
	isbn := "9784873119038"

	resp, body := ts.do(t, http.MethodPost, "/api/scan", "", map[string]any{
		"codes": []string{isbn, isbn},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scan: status %d", resp.StatusCode)
	}
	if confirmed, _ := body["confirmed"].(bool); confirmed {
		t.Fatalf("two reads confirmed, want unconfirmed below threshold")
	}

	resp, body = ts.do(t, http.MethodPost, "/api/scan", "", map[string]any{
		"codes": []string{isbn, "1920093600001", isbn, isbn, isbn},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scan: status %d", resp.StatusCode)
	}
	if confirmed, _ := body["confirmed"].(bool); !confirmed {
		t.Fatalf("stable reads not confirmed: %v", body)
	}
	if body["isbn"] != isbn {
		t.Fatalf("confirmed isbn %v, want %s", body["isbn"], isbn)
	}
}

func TestBooksListAndDelete(t *testing.T) {
	ts := newTestServer(t, nil, 100)
	ts.seedBook(t, "9780000000001", "Zebra Stories")
	ts.seedBook(t, "9780000000002", "Ant Colonies")
	_, token := ts.login(t, "open sesame")

	resp, body := ts.do(t, http.MethodGet, "/api/books", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d", resp.StatusCode)
	}
	items, _ := body["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("list: %d items, want 2", len(items))
	}
	first, _ := items[0].(map[string]any)
	if first["title"] != "Ant Colonies" {
		t.Fatalf("list order: first title %v, want Ant Colonies", first["title"])
	}

	resp, _ = ts.do(t, http.MethodDelete, "/api/admin/books/9780000000002", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
	resp, _ = ts.do(t, http.MethodGet, "/api/books/9780000000002", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted book detail: status %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil, 100)
	for _, path := range []string{"/api/returns", "/api/reviews", "/api/scan", "/api/admin/login"} {
		resp, _ := ts.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("GET %s: status %d, want 405", path, resp.StatusCode)
		}
	}
}

func TestUnknownLoanReturns404(t *testing.T) {
	ts := newTestServer(t, nil, 100)
	resp, _ := ts.do(t, http.MethodPost, "/api/returns", "", map[string]any{
		"loanId": fmt.Sprintf("loan-%d", time.Now().UnixNano()), "rating": 3, "comment": "ok",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown loan: status %d, want 404", resp.StatusCode)
	}
}
