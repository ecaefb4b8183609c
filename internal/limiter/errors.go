package limiter

import (
	"errors"

	"github.com/SmitUplenchwar2687/quota/internal/storage"
)

var (
	// ErrQuotaExceeded accompanies the Result of a rejected call.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrEmptyIdentifier is returned when Consume or Check is called with an empty id.
	ErrEmptyIdentifier = errors.New("identifier must not be empty")

	ErrInvalidAmount = errors.New("amount must not be negative")
	ErrInvalidPoints = errors.New("points override must not be negative")

	// ErrCorruptRecord is returned when a persisted bucket log cannot be decoded.
	ErrCorruptRecord = storage.ErrCorruptRecord
)
