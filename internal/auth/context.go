package auth

import "context"

type sessionContextKey struct{}
type permissionsContextKey struct{}

// ContextWithSession attaches the resolved session to the context.
func ContextWithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, &sess)
}

// SessionFromContext extracts the session stored by ContextWithSession.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || v == nil {
		return Session{}, false
	}
	return *v, true
}

// ContextWithPermissions attaches the actor's permission set.
func ContextWithPermissions(ctx context.Context, set PermissionSet) context.Context {
	return context.WithValue(ctx, permissionsContextKey{}, set)
}

// PermissionsFromContext returns the permission set, or nil when none was attached.
func PermissionsFromContext(ctx context.Context) PermissionSet {
	if ctx == nil {
		return nil
	}
	set, _ := ctx.Value(permissionsContextKey{}).(PermissionSet)
	return set
}
