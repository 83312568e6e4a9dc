package gate

import (
	"testing"

	"vouchr.org/internal/assurance"
	"vouchr.org/internal/auth"
)

var (
	notEnrolled   = assurance.State{Enrolled: false, Current: auth.AAL1, Next: auth.AAL1}
	needsVerify   = assurance.State{Enrolled: true, Current: auth.AAL1, Next: auth.AAL2}
	fullyVerified = assurance.State{Enrolled: true, Current: auth.AAL2, Next: auth.AAL2}
	allStates     = []assurance.State{notEnrolled, needsVerify, fullyVerified, {Enrolled: false, Current: auth.AAL1, Next: auth.AAL2}}
	allRoles      = []auth.Role{auth.RoleUser, auth.RoleAdmin, auth.RoleSuperAdmin}
)

func decide(t *testing.T, table *Table, path string, hasSession bool, role auth.Role, state assurance.State) Decision {
	t.Helper()
	return Decide(Input{
		HasSession: hasSession,
		Role:       role,
		Route:      table.Classify(path),
		Assurance:  state,
	}, table.Targets())
}

func TestNoSessionOnProtectedRouteAlwaysGoesToLogin(t *testing.T) {
	table := mustDefaultTable(t)
	for _, path := range []string{"/", "/dashboard", "/admin/dashboard", "/admin/suppliers/1", "/unknown"} {
		for _, role := range allRoles {
			for _, state := range allStates {
				got := decide(t, table, path, false, role, state)
				if got.Action != ActionRedirect || got.Location != "/login" || got.Reason != ReasonNoSession {
					t.Fatalf("%s %s %+v: got %+v", path, role, state, got)
				}
			}
		}
	}
}

func TestNoSessionOnAuthRouteIsAllowed(t *testing.T) {
	table := mustDefaultTable(t)
	for _, path := range []string{"/login", "/forgot-password", "/logout", "/setup-mfa", "/verify-mfa", "/update-password", "/auth/callback"} {
		got := decide(t, table, path, false, auth.RoleUser, notEnrolled)
		if got.Action != ActionAllow {
			t.Fatalf("%s: expected allow, got %+v", path, got)
		}
	}
}

func TestSignupAlwaysRedirectsToLogin(t *testing.T) {
	table := mustDefaultTable(t)
	for _, hasSession := range []bool{false, true} {
		for _, state := range allStates {
			got := decide(t, table, "/signup", hasSession, auth.RoleAdmin, state)
			if got.Location != "/login" || got.Reason != ReasonSignupDisabled {
				t.Fatalf("session=%v %+v: got %+v", hasSession, state, got)
			}
		}
	}
}

func TestUpdatePasswordAlwaysAllowed(t *testing.T) {
	table := mustDefaultTable(t)
	odd := assurance.State{Enrolled: false, Current: auth.AAL1, Next: auth.AAL2}
	for _, state := range append(allStates, odd) {
		got := decide(t, table, "/update-password", true, auth.RoleUser, state)
		if got.Action != ActionAllow || got.Reason != ReasonUpdatePassword {
			t.Fatalf("%+v: got %+v", state, got)
		}
	}
}

func TestMFARedirects(t *testing.T) {
	table := mustDefaultTable(t)
	for _, path := range []string{"/dashboard", "/admin/products", "/", "/login", "/forgot-password"} {
		if got := decide(t, table, path, true, auth.RoleUser, notEnrolled); got.Location != "/setup-mfa" || got.Reason != ReasonSetupRequired {
			t.Fatalf("%s not enrolled: got %+v", path, got)
		}
		if got := decide(t, table, path, true, auth.RoleAdmin, needsVerify); got.Location != "/verify-mfa" || got.Reason != ReasonVerifyRequired {
			t.Fatalf("%s needs verification: got %+v", path, got)
		}
	}
}

func TestLogoutAndCallbackSkipMFARedirects(t *testing.T) {
	table := mustDefaultTable(t)
	for _, path := range []string{"/logout", "/auth/callback"} {
		for _, state := range allStates {
			if got := decide(t, table, path, true, auth.RoleUser, state); got.Action != ActionAllow {
				t.Fatalf("%s %+v: got %+v", path, state, got)
			}
		}
	}
}

func TestMFARoutesWithSession(t *testing.T) {
	table := mustDefaultTable(t)
	cases := []struct {
		name  string
		path  string
		role  auth.Role
		state assurance.State
		want  Decision
	}{
		{"setup while not enrolled", "/setup-mfa", auth.RoleUser, notEnrolled, Decision{Action: ActionAllow, Reason: ReasonPassThrough}},
		{"setup while enrolled and unverified", "/setup-mfa", auth.RoleUser, needsVerify, Decision{Action: ActionRedirect, Location: "/verify-mfa", Reason: ReasonAlreadyEnrolled}},
		{"setup while verified user", "/setup-mfa", auth.RoleUser, fullyVerified, Decision{Action: ActionRedirect, Location: "/dashboard", Reason: ReasonAlreadyEnrolled}},
		{"setup while verified admin", "/setup-mfa", auth.RoleAdmin, fullyVerified, Decision{Action: ActionRedirect, Location: "/admin/dashboard", Reason: ReasonAlreadyEnrolled}},
		{"verify while unverified", "/verify-mfa", auth.RoleAdmin, needsVerify, Decision{Action: ActionAllow, Reason: ReasonPassThrough}},
		{"verify while verified", "/verify-mfa", auth.RoleSuperAdmin, fullyVerified, Decision{Action: ActionRedirect, Location: "/admin/dashboard", Reason: ReasonAlreadyVerified}},
		{"verify while not enrolled", "/verify-mfa", auth.RoleUser, notEnrolled, Decision{Action: ActionAllow, Reason: ReasonPassThrough}},
		{"setup with aal2 token and no factor", "/setup-mfa", auth.RoleAdmin, assurance.State{Current: auth.AAL2, Next: auth.AAL2}, Decision{Action: ActionAllow, Reason: ReasonPassThrough}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := decide(t, table, tc.path, true, tc.role, tc.state); got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestSignedInHomes(t *testing.T) {
	table := mustDefaultTable(t)
	cases := []struct {
		path string
		role auth.Role
		want Decision
	}{
		{"/login", auth.RoleUser, Decision{Action: ActionRedirect, Location: "/dashboard", Reason: ReasonSignedIn}},
		{"/login", auth.RoleAdmin, Decision{Action: ActionRedirect, Location: "/admin/dashboard", Reason: ReasonSignedIn}},
		{"/", auth.RoleSuperAdmin, Decision{Action: ActionRedirect, Location: "/admin/dashboard", Reason: ReasonRoot}},
		{"/", auth.RoleUser, Decision{Action: ActionRedirect, Location: "/dashboard", Reason: ReasonRoot}},
		{"/dashboard", auth.RoleUser, Decision{Action: ActionAllow, Reason: ReasonPassThrough}},
		{"/admin/vouchers/import", auth.RoleAdmin, Decision{Action: ActionAllow, Reason: ReasonPassThrough}},
	}
	for _, tc := range cases {
		if got := decide(t, table, tc.path, true, tc.role, fullyVerified); got != tc.want {
			t.Fatalf("%s as %s: got %+v, want %+v", tc.path, tc.role, got, tc.want)
		}
	}
}

func TestStepUpScenario(t *testing.T) {
	table := mustDefaultTable(t)

	before := decide(t, table, "/admin/dashboard", true, auth.RoleAdmin, needsVerify)
	if before.Location != "/verify-mfa" {
		t.Fatalf("expected verify redirect, got %+v", before)
	}

	after := decide(t, table, "/verify-mfa", true, auth.RoleAdmin, fullyVerified)
	if after.Location != "/admin/dashboard" {
		t.Fatalf("expected admin dashboard after verification, got %+v", after)
	}
}
