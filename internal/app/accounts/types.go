package accounts

// RegisterInput carries the explicit registration fields. Identity comes
// from the verified credential, never from the body.
type RegisterInput struct {
	Name string
	// Role is "customer" (default) or "tradesperson".
	Role string
}
