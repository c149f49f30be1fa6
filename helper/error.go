package helper

import "fmt"

// NewError wraps an error with the operation that failed.
// The wrapped error stays reachable through errors.Is/errors.As.
func NewError(operation string, err error) error {
	return fmt.Errorf("failed to %s: %w", operation, err)
}
