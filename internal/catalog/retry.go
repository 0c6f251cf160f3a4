package catalog

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/pagewarden/dispatch/internal/model"
)

// maxRetries is the number of times a write is re-attempted after a
// transient conflict before it is surfaced as CatalogUnavailable (§4.1).
const maxRetries = 3

// IsTransient reports whether err represents a retryable write conflict.
// The original implementation this module is based on matched the raised
// error's text against "Deadlock found" / "Lock wait"; this module
// re-architects that as a typed predicate over mongo's own transaction
// error labels instead of string matching at call sites (spec.md §9).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		if cmdErr.HasErrorLabel("TransientTransactionError") ||
			cmdErr.HasErrorLabel("UnknownTransactionCommitResult") {
			return true
		}
	}
	var deadlock *model.DeadlockError
	return errors.As(err, &deadlock)
}

// withRetry runs fn up to maxRetries+1 times, retrying only on a
// transient conflict. Any other error aborts immediately. Exhausting
// retries surfaces model.ErrCatalogUnavailable wrapping the last error.
func withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = &model.DeadlockError{Attempt: attempt, Err: err}
	}
	return errors.Join(model.ErrCatalogUnavailable, lastErr)
}
