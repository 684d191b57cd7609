package shopcache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoBackend = errors.New("shopcache: backend is required")
	ErrEmptyID   = errors.New("shopcache: empty product id")
	// ErrPlaceholderID is returned when an update targets NewProductID.
	ErrPlaceholderID = errors.New("shopcache: cannot update placeholder product " + NewProductID)
	// ErrInvalidProduct matches every ValidationErrors via errors.Is.
	ErrInvalidProduct = errors.New("shopcache: invalid product")
)

type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationErrors is returned by ProductInput.Validate and by writes whose
// payload failed validation. No network call was made.
type ValidationErrors []*FieldError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return "shopcache: invalid product: " + strings.Join(msgs, "; ")
}

func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidProduct
}

func (e ValidationErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, fe := range e {
		errs[i] = fe
	}
	return errs
}
