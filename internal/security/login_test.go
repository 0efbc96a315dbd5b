package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/nepgrocery/internal/utils"
)

func TestDecideLogin(t *testing.T) {
	pinHash, err := utils.HashSecret("123456")
	require.NoError(t, err)

	cases := []struct {
		name    string
		attempt LoginAttempt
		outcome LoginOutcome
		reason  error
	}{
		{
			name:    "wrong password",
			attempt: LoginAttempt{PasswordOK: false, AccountActive: true},
			outcome: LoginDenied,
			reason:  ErrInvalidCredentials,
		},
		{
			name:    "deactivated account",
			attempt: LoginAttempt{PasswordOK: true, AccountActive: false},
			outcome: LoginDenied,
			reason:  ErrAccountDeactivated,
		},
		{
			name:    "deactivation checked before two-factor",
			attempt: LoginAttempt{PasswordOK: true, AccountActive: false, TwoFactorEnabled: true},
			outcome: LoginDenied,
			reason:  ErrAccountDeactivated,
		},
		{
			name:    "plain success",
			attempt: LoginAttempt{PasswordOK: true, AccountActive: true},
			outcome: LoginSuccess,
		},
		{
			name:    "two-factor account",
			attempt: LoginAttempt{PasswordOK: true, AccountActive: true, TwoFactorEnabled: true},
			outcome: LoginRequires2FA,
		},
		{
			name: "two-factor preempts risk step-up",
			attempt: LoginAttempt{
				PasswordOK: true, AccountActive: true,
				TwoFactorEnabled: true, RiskFlagged: true, PINHash: pinHash,
			},
			outcome: LoginRequires2FA,
		},
		{
			name: "risk flagged, PIN set, none submitted",
			attempt: LoginAttempt{
				PasswordOK: true, AccountActive: true,
				RiskFlagged: true, PINHash: pinHash,
			},
			outcome: LoginRequiresPin,
		},
		{
			name: "risk flagged, wrong PIN",
			attempt: LoginAttempt{
				PasswordOK: true, AccountActive: true,
				RiskFlagged: true, PINHash: pinHash, SubmittedPIN: "654321",
			},
			outcome: LoginDenied,
			reason:  ErrInvalidPINStepUp,
		},
		{
			name: "risk flagged, correct PIN",
			attempt: LoginAttempt{
				PasswordOK: true, AccountActive: true,
				RiskFlagged: true, PINHash: pinHash, SubmittedPIN: "123456",
			},
			outcome: LoginSuccess,
		},
		{
			name: "risk flagged but no PIN configured",
			attempt: LoginAttempt{
				PasswordOK: true, AccountActive: true, RiskFlagged: true,
			},
			outcome: LoginSuccess,
		},
		{
			name: "no risk flag ignores a stray PIN",
			attempt: LoginAttempt{
				PasswordOK: true, AccountActive: true,
				PINHash: pinHash, SubmittedPIN: "654321",
			},
			outcome: LoginSuccess,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := DecideLogin(tc.attempt)
			assert.Equal(t, tc.outcome, decision.Outcome)
			if tc.reason != nil {
				assert.ErrorIs(t, decision.Reason, tc.reason)
			} else {
				assert.NoError(t, decision.Reason)
			}
		})
	}
}
