package domain

import "errors"

var (
	// ErrProviderUnavailable marks a single partition call that failed; callers skip the partition.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrProviderCredentialMissing is fatal to a whole fetch: no partition can succeed.
	ErrProviderCredentialMissing = errors.New("provider credential missing")
	// ErrStoreUnavailable wraps failures of the record store engine.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNormalizationSkipped marks a raw record dropped during normalization.
	ErrNormalizationSkipped = errors.New("normalization skipped")
)
