package lib

import "fmt"

// WrapError attaches child to a sentinel parent so that errors.Is matches the parent
// while the message keeps the underlying cause
func WrapError(parent error, child error) error {
	return fmt.Errorf("%w: %w", parent, child)
}
