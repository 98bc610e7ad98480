// Package identity resolves user ids to display names.
package identity

// Identity is directory information for a single user.
type Identity struct {
	Name     string `json:"name" yaml:"name"`
	RealName string `json:"real_name" yaml:"real_name"`
}

// Directory looks up directory information for a user id. Implementations
// must be safe for concurrent use; lookups are pure reads during a run.
type Directory interface {
	Lookup(userID string) (Identity, bool)
}

// Static is an in-memory directory seeded from configuration.
// A nil Static is a valid empty directory.
type Static map[string]Identity

// NewStatic builds a Static directory from a user-id keyed map.
func NewStatic(users map[string]Identity) Static {
	return Static(users)
}

// Lookup implements Directory.
func (d Static) Lookup(userID string) (Identity, bool) {
	id, ok := d[userID]
	return id, ok
}
