package sampler

import (
	"context"
	"fmt"
)

// Page is one page of raw increment events, ordered oldest first.
type Page struct {
	// Events holds the event timestamps in Unix milliseconds
	Events []int64

	// TotalPages is the page count reported by the source. 0 means the
	// entity has no pages at all; UnknownPages means the source did not say.
	TotalPages int
}

// UnknownPages marks a page whose source did not report a page count.
const UnknownPages = -1

// PageSource fetches pages of increment events for an entity.
type PageSource interface {
	FetchPage(ctx context.Context, entity string, page int) (Page, error)
}

// TotalSource returns the current value of an entity's counter.
type TotalSource interface {
	CurrentTotal(ctx context.Context, entity string) (int64, error)
}

// FetchError wraps any failure to read from a PageSource or TotalSource.
// Page is 0 when the current total could not be fetched.
type FetchError struct {
	Entity string
	Page   int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Page == 0 {
		return fmt.Sprintf("fetch total for %s: %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("fetch page %d for %s: %v", e.Page, e.Entity, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
