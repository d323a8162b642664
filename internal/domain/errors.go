package domain

import "errors"

var (
	// ErrValidation wraps all value-object construction failures.
	ErrValidation = errors.New("validation failed")
	// ErrTokenNotFound indicates an unknown token symbol or id.
	ErrTokenNotFound = errors.New("token not found")
	// ErrVenueNotFound indicates an unknown venue id.
	ErrVenueNotFound = errors.New("venue not found")
	// ErrAlertNotFound indicates an unknown alert id.
	ErrAlertNotFound = errors.New("alert not found")
	// ErrNoPriceData indicates the token exists but has no snapshots.
	ErrNoPriceData = errors.New("no price data")
	// ErrNotTradable indicates an operation that needs a tradable token
	// was given a NAV-only token.
	ErrNotTradable = errors.New("token is not tradable")
)
