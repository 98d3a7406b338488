// Package identity reconciles an e-mail address against the studio's two
// stores of people: members (who can sign in) and CRM contacts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/claystudio/membership-backend/pkg/db/models"
	pkgerrors "github.com/claystudio/membership-backend/pkg/errors"
)

// Kind says which store an identity was found in.
type Kind string

const (
	KindMember  Kind = "member"
	KindContact Kind = "contact"
	KindNone    Kind = "none"
)

// Identity is the resolved owner of an e-mail address. ID is uuid.Nil for KindNone.
type Identity struct {
	Kind Kind
	ID   uuid.UUID
}

// None is the zero-match result.
var None = Identity{Kind: KindNone}

func (i Identity) IsMember() bool  { return i.Kind == KindMember }
func (i Identity) IsContact() bool { return i.Kind == KindContact }
func (i Identity) IsNone() bool    { return i.Kind == KindNone || i.Kind == "" }

type memberFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.Member, error)
}

type contactFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.Contact, error)
}

// Resolver looks up who owns an e-mail address.
type Resolver interface {
	Resolve(ctx context.Context, email string) (Identity, error)
}

type resolver struct {
	members  memberFinder
	contacts contactFinder
}

// NewResolver wires the member and contact lookups.
func NewResolver(members memberFinder, contacts contactFinder) (Resolver, error) {
	if members == nil {
		return nil, fmt.Errorf("member lookup required")
	}
	if contacts == nil {
		return nil, fmt.Errorf("contact lookup required")
	}
	return &resolver{members: members, contacts: contacts}, nil
}

// NormalizeEmail trims and lower-cases an address before any lookup or write.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Resolve prefers a member with that login e-mail, then a contact, then none.
// It never writes.
func (r *resolver) Resolve(ctx context.Context, email string) (Identity, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return None, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	member, err := r.members.FindByEmail(ctx, email)
	switch {
	case err == nil && member != nil:
		return Identity{Kind: KindMember, ID: member.ID}, nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return None, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup member by email")
	}

	contact, err := r.contacts.FindByEmail(ctx, email)
	switch {
	case err == nil && contact != nil:
		return Identity{Kind: KindContact, ID: contact.ID}, nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return None, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup contact by email")
	}

	return None, nil
}
