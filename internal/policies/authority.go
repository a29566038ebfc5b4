package policies

import (
	"carbon-registry/internal/domain"
)

// Role is what an actor must be, relative to a record, to perform an action.
type Role int

const (
	// RoleAuthority is the identity recorded in ProgramState.Authority.
	RoleAuthority Role = iota
	// RoleProjectOwner is the identity that registered the project.
	RoleProjectOwner
	// RoleAuthorityOrOwner accepts either of the above.
	RoleAuthorityOrOwner
)

func (r Role) String() string {
	switch r {
	case RoleAuthority:
		return "authority"
	case RoleProjectOwner:
		return "project_owner"
	case RoleAuthorityOrOwner:
		return "authority_or_owner"
	}
	return "unknown"
}

// Subject carries the records a role is checked against. Missing records fail closed.
type Subject struct {
	Program *domain.ProgramState
	Project *domain.Project
}

func isAuthority(actor domain.Pubkey, s Subject) bool {
	return s.Program != nil && !s.Program.Authority.IsZero() && s.Program.Authority == actor
}

func isOwner(actor domain.Pubkey, s Subject) bool {
	return s.Project != nil && !s.Project.Owner.IsZero() && s.Project.Owner == actor
}

// Authorize returns domain.ErrUnauthorized unless actor holds role for subject.
func Authorize(role Role, actor domain.Pubkey, subject Subject) error {
	var ok bool
	switch role {
	case RoleAuthority:
		ok = isAuthority(actor, subject)
	case RoleProjectOwner:
		ok = isOwner(actor, subject)
	case RoleAuthorityOrOwner:
		ok = isAuthority(actor, subject) || isOwner(actor, subject)
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}

// HasSigner reports whether key is among the verified signers of an instruction.
func HasSigner(key domain.Pubkey, signers []domain.Pubkey) bool {
	for _, s := range signers {
		if s == key {
			return true
		}
	}
	return false
}
