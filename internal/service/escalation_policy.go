package service

import (
	"crypto/subtle"

	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
)

type MutationKind string

const (
	MutationPromoteToAdmin MutationKind = "promote_to_admin"
	MutationDemoteToUser   MutationKind = "demote_to_user"
	MutationReassignRole   MutationKind = "reassign_role"
	MutationBan            MutationKind = "ban"
	MutationUnban          MutationKind = "unban"
	MutationDelete         MutationKind = "delete"
)

// RoleMutationKind classifies a role change of an account currently holding
// currentRole.
func RoleMutationKind(currentRole, newRole string) MutationKind {
	switch {
	case currentRole == domain.RoleUser && newRole == domain.RoleAdmin:
		return MutationPromoteToAdmin
	case currentRole == domain.RoleAdmin && newRole == domain.RoleUser:
		return MutationDemoteToUser
	default:
		return MutationReassignRole
	}
}

func BanMutationKind(banned bool) MutationKind {
	if banned {
		return MutationBan
	}
	return MutationUnban
}

type DenyReason string

const (
	DenyTargetSuperAdmin     DenyReason = "target_super_admin"
	DenyMasterSecretRequired DenyReason = "master_secret_required"
	DenyMasterSecretInvalid  DenyReason = "master_secret_invalid"
	DenyAccessDenied         DenyReason = "access_denied"
)

type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason DenyReason) Decision { return Decision{Reason: reason} }

// Err maps a deny decision to its service error; allowed decisions yield nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case DenyTargetSuperAdmin:
		return ErrTargetSuperAdmin
	case DenyMasterSecretRequired:
		return ErrMasterSecretRequired
	case DenyMasterSecretInvalid:
		return ErrMasterSecretInvalid
	default:
		return ErrAccessDenied
	}
}

// EscalationPolicy decides whether an actor may change the role, ban state or
// existence of a target account. It holds no state besides the master secret.
type EscalationPolicy struct {
	masterSecret []byte
}

func NewEscalationPolicy(masterSecret string) *EscalationPolicy {
	return &EscalationPolicy{masterSecret: []byte(masterSecret)}
}

// CanMutate evaluates the rules in order:
//  1. the super-admin is never a valid target
//  2. the super-admin may do anything, but promoting a user to admin needs the master secret
//  3. an admin needs the master secret for any mutation of another admin
//  4. everyone else is denied
func (p *EscalationPolicy) CanMutate(actor, target *domain.Account, kind MutationKind, providedSecret string) Decision {
	if actor == nil || target == nil {
		return deny(DenyAccessDenied)
	}
	if target.IsSuperAdmin {
		return deny(DenyTargetSuperAdmin)
	}
	if actor.IsSuperAdmin {
		if kind == MutationPromoteToAdmin {
			return p.requireSecret(providedSecret)
		}
		return allow()
	}
	if actor.Role == domain.RoleAdmin {
		if target.Role == domain.RoleAdmin {
			return p.requireSecret(providedSecret)
		}
		return allow()
	}
	return deny(DenyAccessDenied)
}

// MatchesMasterSecret reports whether provided equals the configured master
// secret. An unset master secret matches nothing.
func (p *EscalationPolicy) MatchesMasterSecret(provided string) bool {
	if len(p.masterSecret) == 0 || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), p.masterSecret) == 1
}

func (p *EscalationPolicy) requireSecret(provided string) Decision {
	if provided == "" {
		return deny(DenyMasterSecretRequired)
	}
	if !p.MatchesMasterSecret(provided) {
		return deny(DenyMasterSecretInvalid)
	}
	return allow()
}
