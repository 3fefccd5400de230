package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"minishelf/internal/barcode"
	"minishelf/internal/store"
	"minishelf/pkg/domain"
)

// MetadataLookup resolves an ISBN against an external book catalog.
type MetadataLookup interface {
	ByISBN(ctx context.Context, isbn string) (domain.BookMetadata, bool)
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Lookup      MetadataLookup
}

// App wires the store and the lookup gateway together and owns every
// state transition on books and loans.
type App struct {
	store  store.Store
	lookup MetadataLookup
}

// New constructs the application. When no Store is injected it opens a
// Postgres-backed one from DatabaseURL.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	if cfg.Lookup == nil {
		return nil, fmt.Errorf("metadata lookup required")
	}
	return &App{store: dataStore, lookup: cfg.Lookup}, nil
}

// BorrowBook opens a loan for the named borrower. The store transaction
// guarantees at most one open loan per book: of two racing borrowers one
// gets the loan and the other store.ErrBookBorrowed.
func (a *App) BorrowBook(ctx context.Context, bookID, borrowerName string, durationDays int) (domain.Loan, error) {
	borrowerName = strings.TrimSpace(borrowerName)
	if borrowerName == "" {
		return domain.Loan{}, ErrNameRequired
	}
	if !validDuration(durationDays) {
		return domain.Loan{}, ErrInvalidDuration
	}
	return a.store.Borrow(ctx, bookID, borrowerName, durationDays)
}

// ReturnBook closes the loan, frees the book, and records the borrower's
// review in one atomic unit. There is no window where the book shows
// available but the review is missing.
func (a *App) ReturnBook(ctx context.Context, loanID string, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	if strings.TrimSpace(comment) == "" {
		return ErrCommentRequired
	}
	_, err := a.store.Return(ctx, loanID, rating, comment)
	return err
}

// ActiveLoansFor lists the borrower's open loans joined with their books.
// Advisory only: ReturnBook re-validates against fresh state.
func (a *App) ActiveLoansFor(borrowerName string) ([]domain.LoanWithBook, error) {
	borrowerName = strings.TrimSpace(borrowerName)
	if borrowerName == "" {
		return nil, ErrNameRequired
	}
	return a.store.OpenLoansByBorrower(borrowerName)
}

// RegisterBook catalogs a new physical copy by its ISBN. The duplicate
// check runs before the metadata lookup so an already-shelved book is
// reported without a network round trip.
func (a *App) RegisterBook(ctx context.Context, isbn, donorComment string) (domain.Book, error) {
	isbn = strings.TrimSpace(isbn)
	if !barcode.IsCandidateISBN(isbn) {
		return domain.Book{}, ErrInvalidISBN
	}
	if _, exists, err := a.store.GetBook(isbn); err != nil {
		return domain.Book{}, fmt.Errorf("check existing book: %w", err)
	} else if exists {
		return domain.Book{}, store.ErrDuplicateBook
	}
	meta, found := a.lookup.ByISBN(ctx, isbn)
	if !found {
		return domain.Book{}, ErrBookNotInCatalogs
	}
	book := domain.Book{
		ID:           isbn,
		Title:        meta.Title,
		Author:       meta.Author,
		Thumbnail:    meta.Thumbnail,
		Description:  meta.Description,
		DonorComment: strings.TrimSpace(donorComment),
		Status:       domain.StatusAvailable,
		CreatedAt:    time.Now().UTC(),
	}
	// CreateBook re-checks the id atomically; a racing registration of
	// the same ISBN still yields exactly one catalog entry.
	if err := a.store.CreateBook(book); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// RemoveBook deletes a catalog entry. Loans and reviews that reference
// it remain as history; read paths skip the dangling references.
func (a *App) RemoveBook(id string) error {
	return a.store.DeleteBook(id)
}

// ListBooks returns the shelf ordered by title.
func (a *App) ListBooks() ([]domain.Book, error) {
	return a.store.ListBooks()
}

// BookDetail is the book page payload: the book, its active loan when
// borrowed, and its reviews newest first.
type BookDetail struct {
	Book       domain.Book     `json:"book"`
	ActiveLoan *domain.Loan    `json:"activeLoan,omitempty"`
	Reviews    []domain.Review `json:"reviews"`
}

// GetBookDetail assembles the book page payload.
func (a *App) GetBookDetail(id string) (BookDetail, bool, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil || !ok {
		return BookDetail{}, ok, err
	}
	detail := BookDetail{Book: book}
	if book.Status == domain.StatusBorrowed && book.CurrentLoanID != "" {
		if loan, found, err := a.store.GetLoan(book.CurrentLoanID); err != nil {
			return BookDetail{}, false, err
		} else if found {
			detail.ActiveLoan = &loan
		}
	}
	reviews, err := a.store.ReviewsByBook(id)
	if err != nil {
		return BookDetail{}, false, err
	}
	detail.Reviews = reviews
	return detail, true, nil
}

// SubmitReview appends a standalone review, the path for readers who
// want to comment without having borrowed. Same validation as the
// bundled return path.
func (a *App) SubmitReview(bookID, reviewerName string, rating int, comment string) (domain.Review, error) {
	reviewerName = strings.TrimSpace(reviewerName)
	if reviewerName == "" {
		return domain.Review{}, ErrNameRequired
	}
	if rating < 1 || rating > 5 {
		return domain.Review{}, ErrInvalidRating
	}
	if strings.TrimSpace(comment) == "" {
		return domain.Review{}, ErrCommentRequired
	}
	if _, exists, err := a.store.GetBook(bookID); err != nil {
		return domain.Review{}, err
	} else if !exists {
		return domain.Review{}, store.ErrBookNotFound
	}
	review := domain.Review{
		ID:           uuid.NewString(),
		BookID:       bookID,
		ReviewerName: reviewerName,
		Rating:       rating,
		Comment:      comment,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.AddReview(review); err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

// DeleteReview removes a review (admin action).
func (a *App) DeleteReview(id string) error {
	return a.store.DeleteReview(id)
}

// BorrowedBooks lists every open loan joined with its book (admin view).
func (a *App) BorrowedBooks() ([]domain.LoanWithBook, error) {
	return a.store.OpenLoans()
}

func validDuration(days int) bool {
	for _, d := range domain.LoanDurations {
		if days == d {
			return true
		}
	}
	return false
}
