package txmanager

import "errors"

var (
	// ErrConfigMismatch marks a deployment misconfiguration, e.g. the
	// factory's configured relayer is not this process's signing address.
	// Never retried; an operator has to fix the deployment.
	ErrConfigMismatch = errors.New("relayer configuration mismatch")

	// ErrNotFound marks a claim against a hashlock no registered swap has.
	ErrNotFound = errors.New("swap not found")

	// ErrSecretMismatch marks a claim whose secret does not hash to the
	// swap's hashlock.
	ErrSecretMismatch = errors.New("secret does not match hashlock")

	// ErrNotAsker marks a claim from an address other than the swap's asker.
	ErrNotAsker = errors.New("claimer is not the asker")

	// ErrClaimPending marks a duplicate claim while one is being processed.
	ErrClaimPending = errors.New("claim already in progress")
)
