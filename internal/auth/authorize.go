package auth

import "strings"

// HasPermission reports whether the set grants token.
func HasPermission(token string, set PermissionSet) bool {
	if len(set) == 0 {
		return false
	}
	if _, ok := set[Wildcard]; ok {
		return true
	}
	_, ok := set[strings.ToLower(token)]
	return ok
}

// HasAny reports whether at least one token is granted.
func HasAny(tokens []string, set PermissionSet) bool {
	for _, t := range tokens {
		if HasPermission(t, set) {
			return true
		}
	}
	return false
}

// HasAll reports whether every token is granted. An empty list is trivially granted.
func HasAll(tokens []string, set PermissionSet) bool {
	for _, t := range tokens {
		if !HasPermission(t, set) {
			return false
		}
	}
	return true
}

// Has is a method form of HasPermission.
func (s PermissionSet) Has(token string) bool { return HasPermission(token, s) }

// Can checks a verb on a module.
func (s PermissionSet) Can(action, moduleSlug string) bool {
	return HasPermission(ModulePermissionToken(action, moduleSlug), s)
}
