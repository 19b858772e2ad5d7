package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPhase is returned when a command is issued outside the phase
	// that accepts it.
	ErrInvalidPhase = errors.New("invalid phase")

	// ErrIncomplete is returned when a summary is requested while units are
	// still unassigned.
	ErrIncomplete = fmt.Errorf("%w: assignments incomplete", ErrInvalidPhase)

	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrScannerUnavailable is returned by Ingest when no scanner is
	// configured.
	ErrScannerUnavailable = errors.New("receipt scanner unavailable")

	// ErrScanFailed wraps errors from the receipt scanner.
	ErrScanFailed = errors.New("scan failed")
)

func phaseError(command string, current Phase) error {
	return fmt.Errorf("%w: %s is not allowed in the %s phase", ErrInvalidPhase, command, current)
}
