package lockout

import (
	"github.com/frahmantamala/hospital-auth/internal/user"
)

const DefaultMaxAttempts = 5

type Outcome int

const (
	Success Outcome = iota
	WrongCredential
	AccountLocked
	AccountInactive
	UserNotFound
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case WrongCredential:
		return "invalid_password"
	case AccountLocked:
		return "account_locked"
	case AccountInactive:
		return "account_inactive"
	case UserNotFound:
		return "user_not_found"
	default:
		return "unknown"
	}
}

// CredentialMatcher reports whether supplied proves knowledge of the stored credential.
type CredentialMatcher interface {
	Matches(stored, supplied string) bool
}

type MatcherFunc func(stored, supplied string) bool

func (f MatcherFunc) Matches(stored, supplied string) bool {
	return f(stored, supplied)
}

// Policy maps an account and a login attempt to an Outcome. It performs no I/O;
// the caller applies the counter and status changes the outcome calls for.
type Policy struct {
	MaxAttempts int
	Matcher     CredentialMatcher
}

func NewPolicy(maxAttempts int, matcher CredentialMatcher) *Policy {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Policy{MaxAttempts: maxAttempts, Matcher: matcher}
}

// Evaluate checks state before the credential, so a locked account stays locked
// even when the right password is supplied.
func (p *Policy) Evaluate(u *user.User, supplied string) Outcome {
	if u == nil {
		return UserNotFound
	}

	switch u.Status {
	case user.StatusLocked:
		return AccountLocked
	case user.StatusActive:
	default:
		return AccountInactive
	}

	if supplied == "" || !p.Matcher.Matches(u.Credential, supplied) {
		return WrongCredential
	}
	return Success
}

// ShouldLock reports whether a failure count reached after a WrongCredential outcome locks the account.
func (p *Policy) ShouldLock(failedAttempts int) bool {
	return failedAttempts >= p.MaxAttempts
}
