package models

// Identity is the signed-in user that optimistic records are attributed to.
// The zero value is an anonymous visitor.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// IsAnonymous reports whether no user is resolved.
func (i Identity) IsAnonymous() bool {
	return i.ID == ""
}
