package app

import "errors"

// Validation errors, rejected before any store call.
var (
	ErrNameRequired    = errors.New("name is required")
	ErrCommentRequired = errors.New("comment is required")
	ErrInvalidDuration = errors.New("loan duration must be 7 or 14 days")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrInvalidISBN     = errors.New("not a valid ISBN-13")
)

// ErrBookNotInCatalogs indicates the lookup service found nothing for an
// ISBN. Lookup outages surface the same way; the caller cannot tell them
// apart and should not need to.
var ErrBookNotInCatalogs = errors.New("no metadata found for this ISBN")
