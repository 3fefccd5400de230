package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"minishelf/pkg/domain"
)

// MemoryStore keeps all records in-process. A single mutex is the
// transaction primitive: Borrow and Return run entirely under it, which
// gives the same exactly-one-winner guarantee as the Postgres row lock.
// Used by tests and local runs without a database.
type MemoryStore struct {
	mu      sync.Mutex
	books   map[string]domain.Book
	loans   map[string]domain.Loan
	reviews map[string]domain.Review
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:   make(map[string]domain.Book),
		loans:   make(map[string]domain.Loan),
		reviews: make(map[string]domain.Review),
	}
}

// CreateBook registers a catalog entry, rejecting duplicate ISBNs.
func (m *MemoryStore) CreateBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[b.ID]; exists {
		return ErrDuplicateBook
	}
	m.books[b.ID] = b
	return nil
}

// GetBook retrieves a book by ISBN.
func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// ListBooks returns the shelf ordered by title.
func (m *MemoryStore) ListBooks() ([]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.Book, 0, len(m.books))
	for _, b := range m.books {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Title < res[j].Title })
	return res, nil
}

// DeleteBook removes a catalog entry.
func (m *MemoryStore) DeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, id)
	return nil
}

// GetLoan retrieves a loan by id.
func (m *MemoryStore) GetLoan(id string) (domain.Loan, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	return l, ok, nil
}

// OpenLoansByBorrower returns the borrower's open loans joined with books.
func (m *MemoryStore) OpenLoansByBorrower(name string) ([]domain.LoanWithBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLoansLocked(func(l domain.Loan) bool { return l.BorrowerName == name }), nil
}

// OpenLoans returns every open loan joined with its book.
func (m *MemoryStore) OpenLoans() ([]domain.LoanWithBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLoansLocked(func(domain.Loan) bool { return true }), nil
}

func (m *MemoryStore) openLoansLocked(match func(domain.Loan) bool) []domain.LoanWithBook {
	res := make([]domain.LoanWithBook, 0)
	for _, l := range m.loans {
		if l.Returned || !match(l) {
			continue
		}
		book, ok := m.books[l.BookID]
		if !ok {
			continue
		}
		res = append(res, domain.LoanWithBook{Loan: l, Book: book})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Loan.StartDate.Before(res[j].Loan.StartDate) })
	return res
}

// AddReview appends a standalone review.
func (m *MemoryStore) AddReview(r domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[r.ID] = r
	return nil
}

// ReviewsByBook returns a book's reviews, newest first.
func (m *MemoryStore) ReviewsByBook(bookID string) ([]domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.Review, 0)
	for _, r := range m.reviews {
		if r.BookID == bookID {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

// DeleteReview removes a review.
func (m *MemoryStore) DeleteReview(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reviews, id)
	return nil
}

// Borrow creates an open loan and marks the book borrowed atomically.
func (m *MemoryStore) Borrow(_ context.Context, bookID, borrowerName string, durationDays int) (domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[bookID]
	if !ok {
		return domain.Loan{}, ErrBookNotFound
	}
	if book.Status != domain.StatusAvailable {
		return domain.Loan{}, ErrBookBorrowed
	}
	now := time.Now().UTC()
	loan := domain.Loan{
		ID:           uuid.NewString(),
		BookID:       bookID,
		BorrowerName: borrowerName,
		StartDate:    now,
		DueDate:      now.Add(time.Duration(durationDays) * 24 * time.Hour),
		Returned:     false,
	}
	m.loans[loan.ID] = loan
	book.Status = domain.StatusBorrowed
	book.CurrentLoanID = loan.ID
	m.books[bookID] = book
	return loan, nil
}

// Return closes the loan, frees the book, and appends the review atomically.
func (m *MemoryStore) Return(_ context.Context, loanID string, rating int, comment string) (domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loan, ok := m.loans[loanID]
	if !ok {
		return domain.Review{}, ErrLoanNotFound
	}
	if loan.Returned {
		return domain.Review{}, ErrLoanReturned
	}
	loan.Returned = true
	m.loans[loanID] = loan
	if book, ok := m.books[loan.BookID]; ok {
		book.Status = domain.StatusAvailable
		book.CurrentLoanID = ""
		m.books[loan.BookID] = book
	}
	review := domain.Review{
		ID:           uuid.NewString(),
		BookID:       loan.BookID,
		ReviewerName: loan.BorrowerName,
		Rating:       rating,
		Comment:      comment,
		CreatedAt:    time.Now().UTC(),
	}
	m.reviews[review.ID] = review
	return review, nil
}
