package domain

import "time"

type BookStatus string

const (
	StatusAvailable BookStatus = "available"
	StatusBorrowed  BookStatus = "borrowed"
)

// LoanDurations are the borrow periods offered at loan time, in days.
var LoanDurations = []int{7, 14}

// Book is a single physical copy on the shelf, keyed by its ISBN-13.
// CurrentLoanID is set exactly while Status is borrowed.
type Book struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Author        string     `json:"author"`
	Thumbnail     string     `json:"thumbnail,omitempty"`
	Description   string     `json:"description,omitempty"`
	DonorComment  string     `json:"donorComment,omitempty"`
	Status        BookStatus `json:"status"`
	CurrentLoanID string     `json:"currentLoanId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Loan is one borrow-to-return episode for a book. Once Returned flips
// true the record is terminal history and never mutated again.
type Loan struct {
	ID           string    `json:"id"`
	BookID       string    `json:"bookId"`
	BorrowerName string    `json:"borrowerName"`
	StartDate    time.Time `json:"startDate"`
	DueDate      time.Time `json:"dueDate"`
	Returned     bool      `json:"returned"`
}

// Review is a star-rated comment on a book. Reviews reference books
// loosely; a book's status changes independently of its reviews.
type Review struct {
	ID           string    `json:"id"`
	BookID       string    `json:"bookId"`
	ReviewerName string    `json:"reviewerName"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"createdAt"`
}

// LoanWithBook joins an open loan with the book it references, for the
// "what do I have out" and admin borrowed-list views.
type LoanWithBook struct {
	Loan Loan `json:"loan"`
	Book Book `json:"book"`
}

// BookMetadata is what the external lookup service resolves for an ISBN.
type BookMetadata struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Thumbnail   string `json:"thumbnail"`
	Description string `json:"description"`
}
