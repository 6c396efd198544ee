// Package authz is the single rule set deciding which actor may perform which
// operation on which record. Use-case packages load the records, then ask
// Authorize; handlers never make access decisions themselves.
package authz

import (
	"github.com/localworks/localworks-api/internal/app/apperr"
	"github.com/localworks/localworks-api/internal/domain"
)

type Operation string

const (
	OpExchangeCredential Operation = "exchange_credential"
	OpListDirectory      Operation = "list_directory"
	OpGetPublicProfile   Operation = "get_public_profile"
	OpGetOwnProfile      Operation = "get_own_profile"
	OpCreateProfile      Operation = "create_profile"
	OpUpdateProfile      Operation = "update_profile"
	OpSetPublished       Operation = "set_published"
	OpPromoteRole        Operation = "promote_role"
	OpUpdateAccount      Operation = "update_account"
	OpSendMessage        Operation = "send_message"
	OpListReceived       Operation = "list_received"
	OpUnreadCount        Operation = "unread_count"
	OpMarkRead           Operation = "mark_read"
	OpDeleteMessage      Operation = "delete_message"
)

// Actor is the caller. A nil Account is an unauthenticated caller. Profile is
// the caller's own profile when one exists.
type Actor struct {
	Account *domain.Account
	Profile *domain.Profile
}

func Anonymous() Actor { return Actor{} }

func (a Actor) Authenticated() bool { return a.Account != nil }

func (a Actor) owns(p *domain.Profile) bool {
	return a.Account != nil && p != nil && p.OwnedBy(a.Account.ID)
}

// Target is the record an operation acts on. Unused fields stay zero.
type Target struct {
	Profile   *domain.Profile
	Message   *domain.ContactMessage
	AccountID domain.AccountID
}

var anonymousOps = map[Operation]bool{
	OpExchangeCredential: true,
	OpListDirectory:      true,
	OpGetPublicProfile:   true,
}

// Authorize returns nil when actor may perform op on target, else an
// *apperr.Error. Rules are evaluated in order; the first match decides.
func Authorize(actor Actor, op Operation, target Target) error {
	if !actor.Authenticated() && !anonymousOps[op] {
		return apperr.AuthRequired()
	}

	switch op {
	case OpExchangeCredential, OpListDirectory:
		return nil

	case OpGetPublicProfile:
		if target.Profile == nil {
			return apperr.ProfileNotFound()
		}
		if target.Profile.IsPublished || actor.owns(target.Profile) {
			return nil
		}
		return apperr.ProfileNotFound()

	case OpGetOwnProfile:
		if actor.Profile == nil || !actor.owns(actor.Profile) {
			return apperr.ProfileNotFound()
		}
		return nil

	case OpCreateProfile:
		if actor.Profile != nil {
			return apperr.ProfileExists()
		}
		return nil

	case OpUpdateProfile, OpSetPublished:
		if target.Profile == nil {
			return apperr.ProfileNotFound()
		}
		if !actor.owns(target.Profile) {
			return apperr.Forbidden("only the owner may modify this profile")
		}
		return nil

	case OpPromoteRole, OpUpdateAccount:
		if target.AccountID != actor.Account.ID {
			return apperr.Forbidden("cannot modify another account")
		}
		return nil

	case OpSendMessage:
		if target.Profile == nil {
			return apperr.ProfileNotFound()
		}
		if !target.Profile.IsPublished {
			return apperr.ProfileNotPublished()
		}
		return nil

	case OpListReceived, OpUnreadCount:
		if !actor.Account.IsTradesperson() {
			return apperr.RoleRequired(string(domain.RoleTradesperson))
		}
		if actor.Profile == nil {
			return apperr.ProfileNotFound()
		}
		return nil

	case OpMarkRead, OpDeleteMessage:
		if !actor.Account.IsTradesperson() {
			return apperr.RoleRequired(string(domain.RoleTradesperson))
		}
		if target.Message == nil {
			return apperr.MessageNotFound()
		}
		if actor.Profile == nil || target.Message.ToProfileID != actor.Profile.ID {
			return apperr.Forbidden("not your message")
		}
		return nil
	}

	return apperr.Forbidden("operation not permitted")
}
