// CLAUDE:SUMMARY Sentinel errors for the ideawatch service: not found, invalid input, unknown user.
package ideawatch

import "errors"

// ErrNotFound is returned when an idea or competitor does not exist.
var ErrNotFound = errors.New("ideawatch: not found")

// ErrInvalidInput is returned when a request fails validation.
var ErrInvalidInput = errors.New("ideawatch: invalid input")

// ErrUserNotFound is returned when no user has the given email.
var ErrUserNotFound = errors.New("ideawatch: user not found")
