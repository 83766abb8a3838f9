package generic

import "github.com/shopspring/decimal"

// =============================================================================
// TRANSITION RESULT
// =============================================================================

// Result is the outcome of a conditional state transition. A transition
// that lost a race or started from the wrong state is not an error: it
// reports Applied=false with the state observed afterwards. Current is
// empty when the record does not exist.
type Result[S ~string] struct {
	Applied bool `json:"applied"`
	Current S    `json:"current_status"`
}

// Found reports whether the record existed when the transition was tried.
func (r Result[S]) Found() bool { return r.Current != "" }

// =============================================================================
// COLLABORATORS - user directory and product catalog
// =============================================================================

type Role string

const (
	RoleTrainer     Role = "trainer"
	RoleClient      Role = "client"
	RoleManager     Role = "manager"
	RoleCoordinator Role = "coordinator"
	RoleAdmin       Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleTrainer, RoleClient, RoleManager, RoleCoordinator, RoleAdmin:
		return true
	}
	return false
}

// CanResolveDisputes reports whether the role has manager privilege.
func (r Role) CanResolveDisputes() bool {
	switch r {
	case RoleManager, RoleCoordinator, RoleAdmin:
		return true
	case RoleTrainer, RoleClient:
		return false
	}
	return false
}

// User is a directory entry used for privilege checks and notification routing.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Product is a catalog entry.
type Product struct {
	ID                      string          `json:"id"`
	Name                    string          `json:"name"`
	Price                   decimal.Decimal `json:"price"`
	RequiresTrainerDelivery bool            `json:"requires_trainer_delivery"`
}
