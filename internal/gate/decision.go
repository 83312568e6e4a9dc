package gate

import (
	"vouchr.org/internal/assurance"
	"vouchr.org/internal/auth"
)

// Action is what the gate does with a request.
type Action string

const (
	ActionAllow    Action = "allow"
	ActionRedirect Action = "redirect"
)

// Reason names the rule that produced a decision.
type Reason string

const (
	ReasonSignupDisabled  Reason = "signup_disabled"
	ReasonNoSession       Reason = "no_session"
	ReasonAuthPage        Reason = "auth_page"
	ReasonUpdatePassword  Reason = "update_password"
	ReasonSetupRequired   Reason = "mfa_setup_required"
	ReasonVerifyRequired  Reason = "mfa_verification_required"
	ReasonAlreadyEnrolled Reason = "mfa_already_enrolled"
	ReasonAlreadyVerified Reason = "mfa_already_verified"
	ReasonSignedIn        Reason = "signed_in"
	ReasonRoot            Reason = "root"
	ReasonPassThrough     Reason = "pass_through"
)

// Decision is the gate outcome for one request.
type Decision struct {
	Action   Action `json:"action"`
	Location string `json:"location,omitempty"`
	Reason   Reason `json:"reason"`
}

// Input is everything Decide looks at. Assurance is ignored when HasSession is false.
type Input struct {
	HasSession bool
	Role       auth.Role
	Route      Classification
	Assurance  assurance.State
}

// Home returns the dashboard for a role.
func (tg Targets) Home(role auth.Role) string {
	if role.IsAdmin() {
		return tg.AdminHome
	}
	return tg.UserHome
}

// Decide evaluates the gate rules in precedence order; the first match wins.
func Decide(in Input, tg Targets) Decision {
	route := in.Route

	if route.Kind == RouteSignup {
		return redirect(tg.Login, ReasonSignupDisabled)
	}

	if !in.HasSession {
		if route.IsAuth() {
			return allow(ReasonAuthPage)
		}
		return redirect(tg.Login, ReasonNoSession)
	}

	// Password reset must stay reachable in the middle of the MFA flow.
	if route.IsUpdatePassword() {
		return allow(ReasonUpdatePassword)
	}

	state := in.Assurance
	home := tg.Home(in.Role)

	if !exemptFromMFARedirect(route) {
		if !state.Enrolled {
			return redirect(tg.SetupMFA, ReasonSetupRequired)
		}
		if state.NeedsVerification() {
			return redirect(tg.VerifyMFA, ReasonVerifyRequired)
		}
	}

	if route.IsMFA() {
		if route.Kind == RouteSetupMFA && state.Enrolled {
			if state.NeedsVerification() {
				return redirect(tg.VerifyMFA, ReasonAlreadyEnrolled)
			}
			return redirect(home, ReasonAlreadyEnrolled)
		}
		if state.FullyVerified() {
			return redirect(home, ReasonAlreadyVerified)
		}
		return allow(ReasonPassThrough)
	}

	switch route.Kind {
	case RouteLogin:
		return redirect(home, ReasonSignedIn)
	case RouteRoot:
		return redirect(home, ReasonRoot)
	}
	return allow(ReasonPassThrough)
}

// exemptFromMFARedirect lists the session-bearing routes that are never bounced into the
// MFA flow: the flow itself, logout and the provider callback.
func exemptFromMFARedirect(route Classification) bool {
	switch route.Kind {
	case RouteSetupMFA, RouteVerifyMFA, RouteLogout, RouteCallback:
		return true
	default:
		return false
	}
}

func allow(reason Reason) Decision {
	return Decision{Action: ActionAllow, Reason: reason}
}

func redirect(location string, reason Reason) Decision {
	return Decision{Action: ActionRedirect, Location: location, Reason: reason}
}
