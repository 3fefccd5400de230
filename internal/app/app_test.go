package app

import (
	"context"
	"errors"
	"testing"
	"time"

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

func newTestApp(t *testing.T, hits map[string]domain.BookMetadata) (*App, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	a, err := New(Config{Store: mem, Lookup: &fakeLookup{hits: hits}})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, mem
}

func seedBook(t *testing.T, mem *store.MemoryStore, id string) {
	t.Helper()
	err := mem.CreateBook(domain.Book{
		ID:        id,
		Title:     "Seeded Book",
		Author:    "Author",
		Status:    domain.StatusAvailable,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed book: %v", err)
	}
}

func TestBorrowValidationRunsBeforeStore(t *testing.T) {
	a, mem := newTestApp(t, nil)
	seedBook(t, mem, "9780000000001")
	ctx := context.Background()

	if _, err := a.BorrowBook(ctx, "9780000000001", "  ", 7); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("empty name: got %v", err)
	}
	if _, err := a.BorrowBook(ctx, "9780000000001", "Alice", 10); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("bad duration: got %v", err)
	}
	// No side effects from rejected calls.
	book, _, _ := mem.GetBook("9780000000001")
	if book.Status != domain.StatusAvailable {
		t.Fatalf("rejected borrow mutated the book: %s", book.Status)
	}
}

func TestBorrowReturnScenario(t *testing.T) {
	a, mem := newTestApp(t, nil)
	seedBook(t, mem, "9780000000001")
	ctx := context.Background()

	loan, err := a.BorrowBook(ctx, "9780000000001", "Alice", 7)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	book, _, _ := mem.GetBook("9780000000001")
	if book.Status != domain.StatusBorrowed || book.CurrentLoanID != loan.ID {
		t.Fatalf("book after borrow: %+v", book)
	}

	if _, err := a.BorrowBook(ctx, "9780000000001", "Bob", 7); !errors.Is(err, store.ErrBookBorrowed) {
		t.Fatalf("Bob should be rejected, got %v", err)
	}

	if err := a.ReturnBook(ctx, loan.ID, 4, "good"); err != nil {
		t.Fatalf("return: %v", err)
	}
	book, _, _ = mem.GetBook("9780000000001")
	if book.Status != domain.StatusAvailable || book.CurrentLoanID != "" {
		t.Fatalf("book after return: %+v", book)
	}
	got, _, _ := mem.GetLoan(loan.ID)
	if !got.Returned {
		t.Fatalf("loan not closed")
	}
	reviews, _ := mem.ReviewsByBook("9780000000001")
	if len(reviews) != 1 || reviews[0].Rating != 4 || reviews[0].ReviewerName != "Alice" {
		t.Fatalf("review after return: %+v", reviews)
	}

	if err := a.ReturnBook(ctx, loan.ID, 4, "again"); !errors.Is(err, store.ErrLoanReturned) {
		t.Fatalf("second return: got %v", err)
	}
}

func TestReturnValidatesBeforeStore(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()
	if err := a.ReturnBook(ctx, "whatever", 0, "fine"); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("rating 0: got %v", err)
	}
	if err := a.ReturnBook(ctx, "whatever", 6, "fine"); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("rating 6: got %v", err)
	}
	if err := a.ReturnBook(ctx, "whatever", 3, "   "); !errors.Is(err, ErrCommentRequired) {
		t.Fatalf("blank comment: got %v", err)
	}
	if err := a.ReturnBook(ctx, "no-such-loan", 3, "fine"); !errors.Is(err, store.ErrLoanNotFound) {
		t.Fatalf("missing loan: got %v", err)
	}
}

func TestRegisterBookStrictDuplicateCheck(t *testing.T) {
	lookupCalls := 0
	mem := store.NewMemoryStore()
	a, err := New(Config{Store: mem, Lookup: lookupFunc(func(isbn string) (domain.BookMetadata, bool) {
		lookupCalls++
		return domain.BookMetadata{Title: "Found", Author: "Someone"}, true
	})})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ctx := context.Background()

	book, err := a.RegisterBook(ctx, "9784873119038", "enjoy")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if book.Status != domain.StatusAvailable || book.Title != "Found" || book.DonorComment != "enjoy" {
		t.Fatalf("registered book: %+v", book)
	}

	// Duplicate is rejected before the lookup fires again.
	if _, err := a.RegisterBook(ctx, "9784873119038", ""); !errors.Is(err, store.ErrDuplicateBook) {
		t.Fatalf("duplicate: got %v", err)
	}
	if lookupCalls != 1 {
		t.Fatalf("lookup called %d times, want 1 (duplicates rejected early)", lookupCalls)
	}
	got, _, _ := mem.GetBook("9784873119038")
	if got.DonorComment != "enjoy" {
		t.Fatalf("existing record changed by duplicate registration: %+v", got)
	}
}

type lookupFunc func(isbn string) (domain.BookMetadata, bool)

func (f lookupFunc) ByISBN(_ context.Context, isbn string) (domain.BookMetadata, bool) {
	return f(isbn)
}

func TestRegisterBookRejectsBadISBNAndMisses(t *testing.T) {
	a, _ := newTestApp(t, map[string]domain.BookMetadata{})
	ctx := context.Background()

	for _, isbn := range []string{"", "abc", "1920093600001", "9784873119039"} {
		if _, err := a.RegisterBook(ctx, isbn, ""); !errors.Is(err, ErrInvalidISBN) {
			t.Errorf("isbn %q: got %v, want ErrInvalidISBN", isbn, err)
		}
	}
	// Valid ISBN, but nothing in the catalogs.
	if _, err := a.RegisterBook(ctx, "9784873119038", ""); !errors.Is(err, ErrBookNotInCatalogs) {
		t.Fatalf("lookup miss: got %v", err)
	}
}

func TestSubmitReviewStandalone(t *testing.T) {
	a, mem := newTestApp(t, nil)
	seedBook(t, mem, "9780000000001")

	if _, err := a.SubmitReview("9780000000001", "", 4, "nice"); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("empty name: got %v", err)
	}
	if _, err := a.SubmitReview("9780000000001", "Carol", 9, "nice"); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("bad rating: got %v", err)
	}
	if _, err := a.SubmitReview("9780000000009", "Carol", 4, "nice"); !errors.Is(err, store.ErrBookNotFound) {
		t.Fatalf("missing book: got %v", err)
	}

	review, err := a.SubmitReview("9780000000001", "Carol", 4, "nice")
	if err != nil {
		t.Fatalf("submit review: %v", err)
	}
	if review.ReviewerName != "Carol" || review.BookID != "9780000000001" {
		t.Fatalf("review: %+v", review)
	}
	// Reviewing again is allowed; no uniqueness constraint.
	if _, err := a.SubmitReview("9780000000001", "Carol", 5, "even better on reread"); err != nil {
		t.Fatalf("repeat review: %v", err)
	}
	reviews, _ := mem.ReviewsByBook("9780000000001")
	if len(reviews) != 2 {
		t.Fatalf("expected 2 reviews, got %d", len(reviews))
	}
}

func TestGetBookDetailJoinsActiveLoanAndReviews(t *testing.T) {
	a, mem := newTestApp(t, nil)
	seedBook(t, mem, "9780000000001")
	ctx := context.Background()

	detail, ok, err := a.GetBookDetail("9780000000001")
	if err != nil || !ok {
		t.Fatalf("detail: ok=%v err=%v", ok, err)
	}
	if detail.ActiveLoan != nil {
		t.Fatalf("available book must have no active loan")
	}

	loan, err := a.BorrowBook(ctx, "9780000000001", "Alice", 14)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	detail, _, err = a.GetBookDetail("9780000000001")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.ActiveLoan == nil || detail.ActiveLoan.ID != loan.ID {
		t.Fatalf("active loan not joined: %+v", detail.ActiveLoan)
	}

	if _, _, err = a.GetBookDetail("9780000000099"); err != nil {
		t.Fatalf("unknown id must not error: %v", err)
	}
	if _, ok, _ := a.GetBookDetail("9780000000099"); ok {
		t.Fatalf("unknown id reported found")
	}
}
