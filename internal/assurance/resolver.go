// Package assurance derives the authentication-assurance state of a session from the
// identity provider's factor and level signals.
package assurance

import (
	"context"

	"go.uber.org/zap"

	"vouchr.org/internal/auth"
	"vouchr.org/internal/identity"
	"vouchr.org/internal/obs"
)

// State is recomputed for every request and never cached: factor enrollment and step-up
// can change mid-session.
type State struct {
	Enrolled bool
	Current  auth.AAL
	Next     auth.AAL
}

// NeedsVerification reports whether the session must pass the second factor before
// reaching protected pages.
func (s State) NeedsVerification() bool {
	return s.Enrolled && s.Next == auth.AAL2 && s.Current != auth.AAL2
}

// FullyVerified reports whether an enrolled factor was verified in this session.
// An aal2 token without an enrolled factor still has to go through setup.
func (s State) FullyVerified() bool {
	return s.Enrolled && s.Current == auth.AAL2
}

// Source is the part of identity.Provider the resolver reads.
type Source interface {
	ListSecondFactors(ctx context.Context, sess auth.Session) (identity.Factors, error)
	AssuranceLevel(ctx context.Context, sess auth.Session) (identity.Levels, error)
}

// Policy supplies stand-in signals when a provider call fails.
type Policy struct {
	Name    string
	Factors func(sess auth.Session) identity.Factors
	Levels  func(sess auth.Session) identity.Levels
}

// FailOpenToSetup treats an unavailable factor listing as "not enrolled" and an
// unavailable level as "no step-up required". An outage routes users to MFA setup
// instead of locking them out.
var FailOpenToSetup = Policy{
	Name: "fail_open_to_setup",
	Factors: func(auth.Session) identity.Factors {
		return identity.Factors{}
	},
	Levels: func(sess auth.Session) identity.Levels {
		current := auth.ParseAAL(string(sess.AAL))
		return identity.Levels{Current: current, Next: current}
	},
}

// Resolver combines the two provider reads into a State.
type Resolver struct {
	source Source
	policy Policy
	log    *zap.Logger
}

// Option configures Resolver.
type Option func(*Resolver)

// WithPolicy overrides the failure policy.
func WithPolicy(p Policy) Option {
	return func(r *Resolver) {
		if p.Factors != nil && p.Levels != nil {
			r.policy = p
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// NewResolver constructs a Resolver using FailOpenToSetup by default.
func NewResolver(source Source, opts ...Option) *Resolver {
	r := &Resolver{source: source, policy: FailOpenToSetup}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve never fails; provider errors are absorbed by the policy, logged and counted.
// The two calls run one after the other.
func (r *Resolver) Resolve(ctx context.Context, sess auth.Session) State {
	factors, err := r.source.ListSecondFactors(ctx, sess)
	if err != nil {
		r.absorb("list_factors", sess, err)
		factors = r.policy.Factors(sess)
	}

	levels, err := r.source.AssuranceLevel(ctx, sess)
	if err != nil {
		r.absorb("assurance_level", sess, err)
		levels = r.policy.Levels(sess)
	}

	return State{
		Enrolled: factors.Enrolled,
		Current:  auth.ParseAAL(string(levels.Current)),
		Next:     auth.ParseAAL(string(levels.Next)),
	}
}

func (r *Resolver) absorb(call string, sess auth.Session, err error) {
	obs.ProviderFailures.WithLabelValues(call).Inc()
	r.logger().Warn("identity provider unavailable",
		zap.String("call", call),
		zap.String("user_id", sess.UserID),
		zap.String("policy", r.policy.Name),
		zap.Error(err),
	)
}

func (r *Resolver) logger() *zap.Logger {
	if r.log != nil {
		return r.log
	}
	return obs.Logger()
}
