package model

// User is the caller identity resolved from a verified bearer token.  The
// booking engine only needs these three fields; account storage belongs to
// the identity service.
type User struct {
	ID    string
	Name  string
	Email string
}
