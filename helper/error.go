package helper

import "fmt"

// NewError wraps an error with the action that failed, so call sites read
// like "failed load chunks sql: ...".
func NewError(action string, err error) error {
	return fmt.Errorf("failed %s: %w", action, err)
}
