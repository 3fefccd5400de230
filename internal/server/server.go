package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"minishelf/internal/admintoken"
	"minishelf/internal/app"
	"minishelf/internal/auth"
	"minishelf/internal/barcode"
	"minishelf/internal/ratelimit"
	"minishelf/internal/store"
	"minishelf/internal/util"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                          *app.App
	AdminPasswordHash            string
	AdminTokens                  *admintoken.Manager
	RedisAddr                    string
	RedisPassword                string
	AdminLoginRateLimitPerMinute int
	ScanConfirmReads             int
	TrustedProxyCIDRs            []string
}

// Server exposes the HTTP endpoints of the library.
type Server struct {
	app               *app.App
	adminPasswordHash string
	adminTokens       *admintoken.Manager
	mux               *http.ServeMux
	loginLimiter      *ratelimit.FixedWindowLimiter
	scanConfirmReads  int
	trustedProxies    *util.TrustedProxies
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	loginLimit := cfg.AdminLoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	loginLimiter, err := ratelimit.NewRedisFixedWindowLimiter(
		cfg.RedisAddr, cfg.RedisPassword, "minishelf:ratelimit:admin-login", loginLimit, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init login limiter: %w", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	scanReads := cfg.ScanConfirmReads
	if scanReads <= 0 {
		scanReads = barcode.DefaultConfirmReads
	}
	s := &Server{
		app:               cfg.App,
		adminPasswordHash: cfg.AdminPasswordHash,
		adminTokens:       cfg.AdminTokens,
		mux:               http.NewServeMux(),
		loginLimiter:      loginLimiter,
		scanConfirmReads:  scanReads,
		trustedProxies:    trusted,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// shelf
	s.mux.HandleFunc("/api/books", s.handleBooks)
	s.mux.HandleFunc("/api/books/", s.handleBookByID)
	s.mux.HandleFunc("/api/loans", s.handleLoans)
	s.mux.HandleFunc("/api/returns", s.handleReturns)
	s.mux.HandleFunc("/api/reviews", s.handleReviews)
	s.mux.HandleFunc("/api/scan", s.handleScan)

	// admin
	s.mux.HandleFunc("/api/admin/login", s.handleAdminLogin)
	s.mux.Handle("/api/admin/books", s.adminOnly(s.handleAdminBooks))
	s.mux.Handle("/api/admin/books/", s.adminOnly(s.handleAdminBookByID))
	s.mux.Handle("/api/admin/loans", s.adminOnly(s.handleAdminLoans))
	s.mux.Handle("/api/admin/reviews/", s.adminOnly(s.handleAdminReviewByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/books lists the shelf, ordered by title.
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.ListBooks()
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": books,
		"count": len(books),
	})
}

// GET /api/books/{id} returns book detail with active loan and reviews.
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/books/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	detail, ok, err := s.app.GetBookDetail(id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type borrowRequest struct {
	BookID       string `json:"bookId"`
	BorrowerName string `json:"borrowerName"`
	DurationDays int    `json:"durationDays"`
}

// POST /api/loans borrows; GET /api/loans?borrower=X lists open loans.
func (s *Server) handleLoans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req borrowRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		loan, err := s.app.BorrowBook(r.Context(), req.BookID, req.BorrowerName, req.DurationDays)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, loan)
	case http.MethodGet:
		borrower := strings.TrimSpace(r.URL.Query().Get("borrower"))
		loans, err := s.app.ActiveLoansFor(borrower)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": loans,
			"count": len(loans),
		})
	default:
		methodNotAllowed(w)
	}
}

type returnRequest struct {
	LoanID  string `json:"loanId"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// POST /api/returns returns a borrowed book with a bundled review.
func (s *Server) handleReturns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req returnRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.ReturnBook(r.Context(), req.LoanID, req.Rating, req.Comment); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reviewRequest struct {
	BookID       string `json:"bookId"`
	ReviewerName string `json:"reviewerName"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment"`
}

// POST /api/reviews records a review without borrowing.
func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	review, err := s.app.SubmitReview(req.BookID, req.ReviewerName, req.Rating, req.Comment)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

type scanRequest struct {
	Codes []string `json:"codes"`
}

type scanResponse struct {
	Confirmed bool   `json:"confirmed"`
	ISBN      string `json:"isbn,omitempty"`
}

// POST /api/scan feeds a batch of decoded barcode values through the
// ISBN filter and debounce; the client keeps posting until one reading
// is confirmed, then stops its camera session.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req scanRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	deb := barcode.NewDebouncer(s.scanConfirmReads)
	for _, code := range req.Codes {
		if isbn, ok := deb.Observe(code); ok {
			writeJSON(w, http.StatusOK, scanResponse{Confirmed: true, ISBN: isbn})
			return
		}
	}
	writeJSON(w, http.StatusOK, scanResponse{Confirmed: false})
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

// POST /api/admin/login checks the shared secret, rate limited per client IP.
func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.loginLimiter.Allow(s.clientIP(r)) {
		s.audit(r, "admin.login", "rate_limited")
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}
	var req adminLoginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !auth.CheckPassword(req.Password, s.adminPasswordHash) {
		s.audit(r, "admin.login", "fail")
		writeError(w, http.StatusUnauthorized, "wrong password")
		return
	}
	token, err := s.adminTokens.Issue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	s.audit(r, "admin.login", "success")
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) adminOnly(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := admintoken.BearerToken(r)
		if !ok {
			s.audit(r, "admin.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if err := s.adminTokens.Verify(token); err != nil {
			s.audit(r, "admin.authorize", "fail", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

type registerRequest struct {
	ISBN         string `json:"isbn"`
	DonorComment string `json:"donorComment"`
}

// POST /api/admin/books registers a scanned or typed ISBN.
func (s *Server) handleAdminBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	book, err := s.app.RegisterBook(r.Context(), req.ISBN, req.DonorComment)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// DELETE /api/admin/books/{id}
func (s *Server) handleAdminBookByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/books/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.RemoveBook(id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /api/admin/loans lists every open loan with its book.
func (s *Server) handleAdminLoans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	loans, err := s.app.BorrowedBooks()
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": loans,
		"count": len(loans),
	})
}

// DELETE /api/admin/reviews/{id}
func (s *Server) handleAdminReviewByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/reviews/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.DeleteReview(id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps app and store failures onto user-actionable HTTP
// responses. Every conflict path reads the same to the user whether it
// was detected up front or lost a commit race.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrNameRequired),
		errors.Is(err, app.ErrCommentRequired),
		errors.Is(err, app.ErrInvalidDuration),
		errors.Is(err, app.ErrInvalidRating),
		errors.Is(err, app.ErrInvalidISBN):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrBookNotFound),
		errors.Is(err, store.ErrLoanNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrBookNotInCatalogs):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrBookBorrowed):
		writeError(w, http.StatusConflict, "someone else may have already borrowed this book")
	case errors.Is(err, store.ErrLoanReturned):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrDuplicateBook):
		writeError(w, http.StatusConflict, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("storage error", "err", err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
	}
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trustedProxies)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", s.clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}
