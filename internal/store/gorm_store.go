package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"minishelf/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
//
// Borrow and Return run inside gorm transactions with the contended book
// or loan row locked FOR UPDATE, so concurrent borrowers serialize on a
// single row and at most one can observe the book as available.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&BookModel{}, &LoanModel{}, &ReviewModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateBook registers a new catalog entry. The id is the physical copy's
// ISBN; registering an id that already exists fails with ErrDuplicateBook
// and leaves the existing record untouched.
func (s *GormStore) CreateBook(b domain.Book) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing BookModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&existing, "id = ?", b.ID).Error
		if err == nil {
			return ErrDuplicateBook
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		model := bookToModel(b)
		return translateCreateError(tx.Create(&model).Error)
	})
}

// translateCreateError maps the unique violation onto ErrDuplicateBook.
// Locking a nonexistent row is a no-op in Postgres, so two racing
// registrations of the same ISBN can both pass the existence check; the
// loser's insert then hits the primary key constraint.
func translateCreateError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateBook
	}
	return err
}

// GetBook retrieves a book by ISBN.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooks returns the whole shelf ordered by title.
func (s *GormStore) ListBooks() ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.Order("title ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// DeleteBook removes a catalog entry. Historical loans and reviews keep
// their book_id as a dangling reference; read paths tolerate that.
func (s *GormStore) DeleteBook(id string) error {
	return s.db.Delete(&BookModel{}, "id = ?", id).Error
}

// GetLoan retrieves a loan by id.
func (s *GormStore) GetLoan(id string) (domain.Loan, bool, error) {
	var model LoanModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Loan{}, false, nil
		}
		return domain.Loan{}, false, err
	}
	return loanFromModel(model), true, nil
}

// OpenLoansByBorrower returns the borrower's open loans joined with books.
func (s *GormStore) OpenLoansByBorrower(name string) ([]domain.LoanWithBook, error) {
	return s.openLoans("borrower_name = ? AND returned = ?", name, false)
}

// OpenLoans returns every open loan joined with its book.
func (s *GormStore) OpenLoans() ([]domain.LoanWithBook, error) {
	return s.openLoans("returned = ?", false)
}

func (s *GormStore) openLoans(cond string, args ...any) ([]domain.LoanWithBook, error) {
	var loans []LoanModel
	if err := s.db.Where(cond, args...).Order("start_date ASC").Find(&loans).Error; err != nil {
		return nil, err
	}
	res := make([]domain.LoanWithBook, 0, len(loans))
	for _, lm := range loans {
		var bm BookModel
		if err := s.db.First(&bm, "id = ?", lm.BookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Book was removed by an admin; skip the dangling loan.
				continue
			}
			return nil, err
		}
		res = append(res, domain.LoanWithBook{Loan: loanFromModel(lm), Book: bookFromModel(bm)})
	}
	return res, nil
}

// AddReview appends a standalone review.
func (s *GormStore) AddReview(r domain.Review) error {
	model := reviewToModel(r)
	return s.db.Create(&model).Error
}

// ReviewsByBook returns a book's reviews, newest first.
func (s *GormStore) ReviewsByBook(bookID string) ([]domain.Review, error) {
	var models []ReviewModel
	if err := s.db.Where("book_id = ?", bookID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Review, 0, len(models))
	for _, m := range models {
		res = append(res, reviewFromModel(m))
	}
	return res, nil
}

// DeleteReview removes a review.
func (s *GormStore) DeleteReview(id string) error {
	return s.db.Delete(&ReviewModel{}, "id = ?", id).Error
}

// Borrow creates an open loan and marks the book borrowed in one
// transaction. The book row is locked for the duration, so of two racing
// borrowers exactly one commits; the other fails with ErrBookBorrowed.
func (s *GormStore) Borrow(ctx context.Context, bookID, borrowerName string, durationDays int) (domain.Loan, error) {
	var loan domain.Loan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book BookModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&book, "id = ?", bookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		if book.Status != string(domain.StatusAvailable) {
			return ErrBookBorrowed
		}
		now := time.Now().UTC()
		model := LoanModel{
			ID:           uuid.NewString(),
			BookID:       bookID,
			BorrowerName: borrowerName,
			StartDate:    now,
			DueDate:      now.Add(time.Duration(durationDays) * 24 * time.Hour),
			Returned:     false,
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if err := tx.Model(&BookModel{}).Where("id = ?", bookID).Updates(map[string]any{
			"status":          string(domain.StatusBorrowed),
			"current_loan_id": model.ID,
		}).Error; err != nil {
			return err
		}
		loan = loanFromModel(model)
		return nil
	})
	if err != nil {
		return domain.Loan{}, err
	}
	return loan, nil
}

// Return closes the loan, frees the book, and appends the borrower's
// review as one unit. A loan that is already returned fails with
// ErrLoanReturned and nothing changes.
func (s *GormStore) Return(ctx context.Context, loanID string, rating int, comment string) (domain.Review, error) {
	var review domain.Review
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var loan LoanModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&loan, "id = ?", loanID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLoanNotFound
			}
			return err
		}
		if loan.Returned {
			return ErrLoanReturned
		}
		if err := tx.Model(&LoanModel{}).Where("id = ?", loanID).Update("returned", true).Error; err != nil {
			return err
		}
		if err := tx.Model(&BookModel{}).Where("id = ?", loan.BookID).Updates(map[string]any{
			"status":          string(domain.StatusAvailable),
			"current_loan_id": "",
		}).Error; err != nil {
			return err
		}
		model := ReviewModel{
			ID:           uuid.NewString(),
			BookID:       loan.BookID,
			ReviewerName: loan.BorrowerName,
			Rating:       rating,
			Comment:      comment,
			CreatedAt:    time.Now().UTC(),
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		review = reviewFromModel(model)
		return nil
	})
	if err != nil {
		return domain.Review{}, err
	}
	return review, nil
}
