package security

import "errors"

// Login denial reasons surfaced by DecideLogin.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDeactivated = errors.New("your account has been deactivated; please contact support")
	ErrInvalidPINStepUp   = errors.New("invalid security PIN")
)

// LoginOutcome tags the result of a login attempt.
type LoginOutcome int

const (
	// LoginDenied rejects the attempt outright.
	LoginDenied LoginOutcome = iota
	// LoginSuccess issues a session.
	LoginSuccess
	// LoginRequires2FA withholds the session until an emailed OTP is verified.
	LoginRequires2FA
	// LoginRequiresPin withholds the session until the security PIN is
	// supplied; distinguishable from a generic auth failure so the client can
	// prompt for the PIN.
	LoginRequiresPin
)

// LoginAttempt is everything the decision needs, resolved up front by the
// caller: credential check result, account state, geo-velocity risk flag and
// any PIN submitted alongside the credentials.
type LoginAttempt struct {
	PasswordOK       bool
	AccountActive    bool
	TwoFactorEnabled bool
	RiskFlagged      bool
	PINHash          string
	SubmittedPIN     string
}

// LoginDecision is the tagged outcome of a login attempt. Reason is set only
// for LoginDenied.
type LoginDecision struct {
	Outcome LoginOutcome
	Reason  error
}

// DecideLogin is the login flow's branching (password, then 2FA, then
// geo-risk step-up) as a pure function so it is testable without a live
// HTTP stack. The caller performs all I/O around it.
func DecideLogin(attempt LoginAttempt) LoginDecision {
	if !attempt.PasswordOK {
		return LoginDecision{Outcome: LoginDenied, Reason: ErrInvalidCredentials}
	}

	if !attempt.AccountActive {
		return LoginDecision{Outcome: LoginDenied, Reason: ErrAccountDeactivated}
	}

	// Two-factor accounts never reach the geo-velocity branch: the OTP
	// round-trip terminates the request until verified.
	if attempt.TwoFactorEnabled {
		return LoginDecision{Outcome: LoginRequires2FA}
	}

	if attempt.RiskFlagged && attempt.PINHash != "" {
		if attempt.SubmittedPIN == "" {
			return LoginDecision{Outcome: LoginRequiresPin}
		}
		if err := VerifyPIN(attempt.PINHash, attempt.SubmittedPIN); err != nil {
			return LoginDecision{Outcome: LoginDenied, Reason: ErrInvalidPINStepUp}
		}
	}

	return LoginDecision{Outcome: LoginSuccess}
}
