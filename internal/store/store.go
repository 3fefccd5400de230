package store

import (
	"context"
	"errors"

	"minishelf/pkg/domain"
)

// Precondition conflicts detected inside a store transaction. The
// transaction aborts with no partial write before any of these surface.
var (
	ErrDuplicateBook = errors.New("book already registered")
	ErrBookNotFound  = errors.New("book not found")
	ErrBookBorrowed  = errors.New("book already borrowed")
	ErrLoanNotFound  = errors.New("loan not found")
	ErrLoanReturned  = errors.New("loan already returned")
)

// Store defines persistence for books, loans, and reviews.
//
// Borrow and Return are the only writers of Book.Status, Book.CurrentLoanID
// and Loan.Returned, and each executes as one atomic unit: either every
// write in the operation is visible afterwards, or none is. Two callers
// racing Borrow on the same book see exactly one success; the loser gets
// ErrBookBorrowed.
type Store interface {
	// books
	CreateBook(b domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks() ([]domain.Book, error)
	DeleteBook(id string) error

	// loans
	GetLoan(id string) (domain.Loan, bool, error)
	OpenLoansByBorrower(name string) ([]domain.LoanWithBook, error)
	OpenLoans() ([]domain.LoanWithBook, error)

	// reviews
	AddReview(r domain.Review) error
	ReviewsByBook(bookID string) ([]domain.Review, error)
	DeleteReview(id string) error

	// transactions
	Borrow(ctx context.Context, bookID, borrowerName string, durationDays int) (domain.Loan, error)
	Return(ctx context.Context, loanID string, rating int, comment string) (domain.Review, error)
}
