package cart

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fjod/storefront-cart/internal/credential"
	"github.com/fjod/storefront-cart/internal/remote"
)

var (
	ErrUnauthenticated = errors.New("not signed in")
	ErrTransport       = errors.New("cart service unreachable")
	ErrRejected        = errors.New("cart service rejected the request")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrInvalidProduct  = errors.New("product id is required")
	ErrLineNotFound    = errors.New("line not found in cart")
	ErrLinePending     = errors.New("line is still being saved")
)

// classify maps collaborator errors onto the manager's taxonomy. Errors that
// are already classified pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrUnauthenticated, ErrTransport, ErrRejected, ErrInvalidQuantity, ErrInvalidProduct, ErrLineNotFound, ErrLinePending} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, credential.ErrNoCredential) {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	var se *remote.StatusError
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// identityRejected reports whether err means the API no longer accepts the
// credential used to resolve the member.
func identityRejected(err error) bool {
	var se *remote.StatusError
	return errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden)
}
