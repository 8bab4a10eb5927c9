package projector

import (
	"errors"

	ferrors "fanride/internal/errors"
)

// retryableOnly limits upsertWithRetry's backoff to the store's
// Throttled/Transient kinds; any other error is treated as persistent and
// fails the batch immediately so the change feed redelivers it.
func retryableOnly(err error) bool {
	return ferrors.Is(err, ferrors.KindThrottled) || ferrors.Is(err, ferrors.KindTransient)
}

func isNotFound(err error) bool {
	return errors.Is(err, ferrors.ErrNotFound)
}
