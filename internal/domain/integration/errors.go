package integration

import "errors"

var (
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("integration: invalid request")
	// ErrInvalidState indicates an unknown, already-consumed, or foreign state token.
	ErrInvalidState = errors.New("integration: invalid state")
	// ErrExpiredState indicates the state token outlived its TTL.
	ErrExpiredState = errors.New("integration: expired state")
	// ErrNotConfigured indicates a missing or malformed configuration value
	// required by an integration flow (OAuth client id, encryption key).
	ErrNotConfigured = errors.New("integration: not configured")
	// ErrNotConnected indicates no stored credentials for the org/provider pair.
	ErrNotConnected = errors.New("integration: not connected")
	// ErrNotDecryptable indicates a credentials envelope that failed structural
	// validation or authentication. The payload must not be trusted.
	ErrNotDecryptable = errors.New("integration: credentials not decryptable")
	// ErrExchangeFailed indicates the provider rejected the code exchange.
	ErrExchangeFailed = errors.New("integration: token exchange failed")
)
