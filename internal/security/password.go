package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/example/nepgrocery/internal/models"
	"github.com/example/nepgrocery/internal/utils"
)

// Password policy failures, in the order the rules are evaluated.
var (
	ErrPasswordContainsName = errors.New("password cannot contain your name")
	ErrPasswordComposition  = errors.New("password must be at least 8 characters long, contain at least one uppercase letter, one lowercase letter, one number, and one special character")
	ErrPasswordReused       = errors.New("you cannot reuse a recent password")
)

// Go's regexp has no lookaheads, so the composition rule is decomposed into
// an alphabet check over the whole string plus one check per character class.
var (
	allowedAlphabet = regexp.MustCompile(`^[A-Za-z0-9@$!%*?&]{8,}$`)
	hasUppercase    = regexp.MustCompile(`[A-Z]`)
	hasLowercase    = regexp.MustCompile(`[a-z]`)
	hasDigit        = regexp.MustCompile(`[0-9]`)
	hasSymbol       = regexp.MustCompile(`[@$!%*?&]`)
)

// ValidateNewPassword applies the password policy to a candidate password.
// Rules run in order and the first failure wins: name exclusion, composition,
// then reuse against priorHashes. Registration passes an empty history; the
// reuse check only applies on reset.
func ValidateNewPassword(candidate, fullName string, priorHashes []string) error {
	lowered := strings.ToLower(candidate)
	for _, part := range strings.Fields(strings.ToLower(fullName)) {
		if len(part) > 2 && strings.Contains(lowered, part) {
			return fmt.Errorf("%w (%q)", ErrPasswordContainsName, part)
		}
	}

	if !allowedAlphabet.MatchString(candidate) ||
		!hasUppercase.MatchString(candidate) ||
		!hasLowercase.MatchString(candidate) ||
		!hasDigit.MatchString(candidate) ||
		!hasSymbol.MatchString(candidate) {
		return ErrPasswordComposition
	}

	for _, oldHash := range priorHashes {
		if utils.CheckSecret(oldHash, candidate) {
			return ErrPasswordReused
		}
	}

	return nil
}

// PushPasswordHistory prepends a hash to the history and truncates it to the
// reuse-check window.
func PushPasswordHistory(history []string, newHash string) []string {
	updated := append([]string{newHash}, history...)
	if len(updated) > models.PasswordHistoryLimit {
		updated = updated[:models.PasswordHistoryLimit]
	}
	return updated
}
