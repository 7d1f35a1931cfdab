package models

// AuthenticatedUser is the snapshot of the operator session returned by the
// booking service login flow. Held in memory only.
type AuthenticatedUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
