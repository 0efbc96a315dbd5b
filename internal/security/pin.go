package security

import (
	"errors"
	"regexp"

	"github.com/example/nepgrocery/internal/utils"
)

// Security PIN failures.
var (
	ErrPINFormat     = errors.New("PIN must be a 6-digit number")
	ErrPINAlreadySet = errors.New("PIN already set; contact support to reset")
	ErrPINNotSet     = errors.New("no PIN set for this account")
	ErrPINMismatch   = errors.New("incorrect security PIN")
)

var pinPattern = regexp.MustCompile(`^[0-9]{6}$`)

// ValidatePINFormat rejects anything that is not exactly 6 numeric digits.
func ValidatePINFormat(pin string) error {
	if !pinPattern.MatchString(pin) {
		return ErrPINFormat
	}
	return nil
}

// VerifyPIN hash-compares a candidate against the stored PIN hash. It only
// reports match or mismatch; authorization decisions belong to the caller.
func VerifyPIN(pinHash, candidate string) error {
	if pinHash == "" {
		return ErrPINNotSet
	}
	if !utils.CheckSecret(pinHash, candidate) {
		return ErrPINMismatch
	}
	return nil
}
