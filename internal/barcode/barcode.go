// Package barcode consumes the stream of decoded symbol strings produced
// by a live camera decoder. Shelf barcodes carry a second, non-ISBN price
// code in the same EAN-13 symbology, so candidates are filtered to the
// ISBN namespace before anything downstream sees them, and a reading is
// only confirmed after several consecutive identical decodes.
package barcode

import (
	"context"
	"errors"
)

// DefaultConfirmReads is the consecutive-identical-read threshold. It is
// a noise-filtering heuristic, not a contract; callers may tune it.
const DefaultConfirmReads = 3

var ErrStreamClosed = errors.New("barcode stream closed")

// IsCandidateISBN reports whether a decoded EAN-13 symbol can be an
// ISBN-13: 13 digits, bookland prefix (978/979), valid check digit.
func IsCandidateISBN(code string) bool {
	if len(code) != 13 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	if code[:3] != "978" && code[:3] != "979" {
		return false
	}
	return checkDigit(code[:12]) == int(code[12]-'0')
}

// checkDigit computes the EAN-13 check digit for the first 12 digits.
func checkDigit(digits string) int {
	sum := 0
	for i, c := range digits {
		d := int(c - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return (10 - sum%10) % 10
}

// Debouncer accepts raw decoded values one at a time and reports a value
// as confirmed once it has been seen n times in a row. Non-candidate
// codes reset the run so a stray price code between two book reads does
// not inflate the count.
type Debouncer struct {
	n    int
	last string
	seen int
}

// NewDebouncer creates a debouncer requiring n consecutive identical
// reads. n below 1 falls back to DefaultConfirmReads.
func NewDebouncer(n int) *Debouncer {
	if n < 1 {
		n = DefaultConfirmReads
	}
	return &Debouncer{n: n}
}

// Observe feeds one decoded value. It returns the confirmed ISBN and
// true when the threshold is reached, at which point the debouncer
// resets itself so the same shelf session can scan another book.
func (d *Debouncer) Observe(code string) (string, bool) {
	if !IsCandidateISBN(code) {
		d.last, d.seen = "", 0
		return "", false
	}
	if code != d.last {
		d.last, d.seen = code, 1
	} else {
		d.seen++
	}
	if d.seen < d.n {
		return "", false
	}
	d.last, d.seen = "", 0
	return code, true
}

// Confirm consumes decoded values until one ISBN is confirmed, the
// stream closes, or ctx is canceled (camera teardown). It stops reading
// as soon as a value is confirmed so a lingering decoder cannot trigger
// the same action twice.
func Confirm(ctx context.Context, decoded <-chan string, n int) (string, error) {
	deb := NewDebouncer(n)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case code, ok := <-decoded:
			if !ok {
				return "", ErrStreamClosed
			}
			if isbn, confirmed := deb.Observe(code); confirmed {
				return isbn, nil
			}
		}
	}
}
