package services

import "strings"

// Roles known to RoleAuthorizer
const (
	RolePerito     = "perito"
	RoleAssistente = "assistente"
	RoleLeitor     = "leitor"
)

// Action is a capability checked before a docket mutation
type Action string

const (
	ActionCreateCase      Action = "create_case"
	ActionEditCase        Action = "edit_case"
	ActionDeleteCase      Action = "delete_case"
	ActionManageSessions  Action = "manage_sessions"
	ActionManageLocations Action = "manage_locations"
)

// Actor identifies who is calling. The role comes from an upstream
// authenticating proxy; credentials are never seen here.
type Actor struct {
	ID   string
	Role string
}

// Authorizer is the capability predicate consulted by DocketService
type Authorizer interface {
	Can(actor Actor, action Action) bool
}

// RoleAuthorizer grants actions by role
type RoleAuthorizer struct {
	grants map[string]map[Action]bool
}

// NewRoleAuthorizer returns the default role table
func NewRoleAuthorizer() *RoleAuthorizer {
	return &RoleAuthorizer{grants: map[string]map[Action]bool{
		RolePerito: {
			ActionCreateCase:      true,
			ActionEditCase:        true,
			ActionDeleteCase:      true,
			ActionManageSessions:  true,
			ActionManageLocations: true,
		},
		RoleAssistente: {
			ActionCreateCase:     true,
			ActionEditCase:       true,
			ActionManageSessions: true,
		},
		RoleLeitor: {},
	}}
}

// Can reports whether the actor's role grants the action. Unknown roles and
// actors without an id get nothing.
func (a *RoleAuthorizer) Can(actor Actor, action Action) bool {
	if actor.ID == "" {
		return false
	}
	return a.grants[strings.ToLower(actor.Role)][action]
}

// AllowAll grants every action. Used by trusted in-process callers such as
// batch jobs.
type AllowAll struct{}

func (AllowAll) Can(Actor, Action) bool { return true }

func authorize(authz Authorizer, actor Actor, action Action) error {
	if authz.Can(actor, action) {
		return nil
	}
	return newDocketError(ErrForbidden, "actor", "role %q may not %s", actor.Role, action)
}
