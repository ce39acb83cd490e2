package domain

import "errors"

// Failures surfaced by the feed engine. Callers match them with errors.Is.
var (
	ErrInvalidQuiz     = errors.New("invalid quiz")
	ErrInvalidReaction = errors.New("invalid reaction")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidWeights  = errors.New("invalid weight overrides")
	ErrItemNotFound    = errors.New("item not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidState    = errors.New("session is completed")
	ErrStoreFailure    = errors.New("store failure")
)

// IsClientError reports failures caused by the request rather than by the store.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrInvalidQuiz, ErrInvalidReaction, ErrInvalidQuantity, ErrInvalidWeights,
		ErrItemNotFound, ErrSessionNotFound, ErrInvalidState,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
