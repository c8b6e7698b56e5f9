package security

import "strconv"

// Authorizer checks if a chat user may request plans.
type Authorizer struct {
	allowedIDs map[string]bool
}

// NewAuthorizer creates an authorizer with the given allowed user IDs.
// If the list is empty, all users are allowed.
func NewAuthorizer(allowedIDs []string) *Authorizer {
	m := make(map[string]bool, len(allowedIDs))
	for _, id := range allowedIDs {
		m[id] = true
	}
	return &Authorizer{allowedIDs: m}
}

// NewAuthorizerFromIDs is NewAuthorizer for numeric chat platform IDs.
func NewAuthorizerFromIDs(ids []int64) *Authorizer {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = strconv.FormatInt(id, 10)
	}
	return NewAuthorizer(s)
}

// IsAllowed returns true if the user is authorized.
func (a *Authorizer) IsAllowed(userID string) bool {
	if a == nil || len(a.allowedIDs) == 0 {
		return true
	}
	return a.allowedIDs[userID]
}
