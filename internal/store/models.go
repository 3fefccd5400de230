package store

import (
	"time"

	"minishelf/pkg/domain"
)

// GORM models used for persistence.
type BookModel struct {
	ID            string `gorm:"primaryKey"`
	Title         string `gorm:"not null"`
	Author        string `gorm:"not null"`
	Thumbnail     string
	Description   string
	DonorComment  string
	Status        string `gorm:"not null;index"`
	CurrentLoanID string
	CreatedAt     time.Time `gorm:"not null"`
}

type LoanModel struct {
	ID           string    `gorm:"primaryKey"`
	BookID       string    `gorm:"not null;index"`
	BorrowerName string    `gorm:"not null;index"`
	StartDate    time.Time `gorm:"not null"`
	DueDate      time.Time `gorm:"not null"`
	Returned     bool      `gorm:"not null;index"`
}

type ReviewModel struct {
	ID           string `gorm:"primaryKey"`
	BookID       string `gorm:"not null;index"`
	ReviewerName string `gorm:"not null"`
	Rating       int    `gorm:"not null"`
	Comment      string
	CreatedAt    time.Time `gorm:"not null;index"`
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:            b.ID,
		Title:         b.Title,
		Author:        b.Author,
		Thumbnail:     b.Thumbnail,
		Description:   b.Description,
		DonorComment:  b.DonorComment,
		Status:        string(b.Status),
		CurrentLoanID: b.CurrentLoanID,
		CreatedAt:     b.CreatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:            m.ID,
		Title:         m.Title,
		Author:        m.Author,
		Thumbnail:     m.Thumbnail,
		Description:   m.Description,
		DonorComment:  m.DonorComment,
		Status:        domain.BookStatus(m.Status),
		CurrentLoanID: m.CurrentLoanID,
		CreatedAt:     m.CreatedAt,
	}
}

func loanFromModel(m LoanModel) domain.Loan {
	return domain.Loan{
		ID:           m.ID,
		BookID:       m.BookID,
		BorrowerName: m.BorrowerName,
		StartDate:    m.StartDate,
		DueDate:      m.DueDate,
		Returned:     m.Returned,
	}
}

func reviewToModel(r domain.Review) ReviewModel {
	return ReviewModel{
		ID:           r.ID,
		BookID:       r.BookID,
		ReviewerName: r.ReviewerName,
		Rating:       r.Rating,
		Comment:      r.Comment,
		CreatedAt:    r.CreatedAt,
	}
}

func reviewFromModel(m ReviewModel) domain.Review {
	return domain.Review{
		ID:           m.ID,
		BookID:       m.BookID,
		ReviewerName: m.ReviewerName,
		Rating:       m.Rating,
		Comment:      m.Comment,
		CreatedAt:    m.CreatedAt,
	}
}
