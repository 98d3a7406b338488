package applications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/claystudio/membership-backend/internal/contacts"
	"github.com/claystudio/membership-backend/internal/identity"
	"github.com/claystudio/membership-backend/internal/members"
	"github.com/claystudio/membership-backend/internal/notifications"
	"github.com/claystudio/membership-backend/pkg/db/models"
	"github.com/claystudio/membership-backend/pkg/enums"
	pkgerrors "github.com/claystudio/membership-backend/pkg/errors"
	"github.com/claystudio/membership-backend/pkg/outbox"
	"github.com/claystudio/membership-backend/pkg/outbox/payloads"
)

// outcome is what the identity side of a decision produced before the record is written.
type outcome struct {
	update        DecisionUpdate
	recipientID   uuid.UUID
	recipientKind enums.RecipientKind
	contactID     *uuid.UUID
	memberCreated bool
}

// Decide moves a submitted application to approved or rejected.
//
// Identity work (provisioning, role grant, contact creation) happens first and
// is idempotent. The record write then commits together with its outbox event
// and only succeeds while the row is still submitted. Notification is last and
// best effort.
func (s *service) Decide(ctx context.Context, input DecideInput) (*ApplicationDTO, error) {
	if input.ApplicationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "application id required")
	}
	if input.ReviewerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "reviewer identity missing")
	}
	target, err := input.Decision.TargetStatus()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid decision")
	}

	if s.logg != nil {
		ctx = s.logg.WithApplicationID(ctx, input.ApplicationID.String())
		ctx = s.logg.WithReviewerID(ctx, input.ReviewerID.String())
	}

	dto, err := s.decide(ctx, input, target)
	s.metrics.IncDecision(input.Decision.String(), decisionOutcome(err))
	return dto, err
}

func (s *service) decide(ctx context.Context, input DecideInput, target enums.ApplicationStatus) (*ApplicationDTO, error) {
	app, err := s.load(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != enums.ApplicationStatusSubmitted {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "application has already been decided").
			WithDetails(map[string]any{"status": app.Status})
	}

	who, err := s.resolver.Resolve(ctx, app.Email)
	if err != nil {
		return nil, err
	}

	decidedAt := s.now().UTC()
	var out outcome
	switch input.Decision {
	case enums.ApplicationDecisionApprove:
		out, err = s.approve(ctx, app, who, decidedAt)
	default:
		out, err = s.reject(ctx, app, who, decidedAt)
	}
	if err != nil {
		return nil, err
	}
	out.update.Status = target
	out.update.Notes = trimmedOrNil(&input.Notes)
	out.update.DecidedBy = input.ReviewerID

	var updated *models.Application
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.repo.WithTx(tx).UpdateDecision(ctx, app.ID, out.update, enums.ApplicationStatusSubmitted)
		if err != nil {
			switch {
			case errors.Is(err, ErrConflict):
				return pkgerrors.New(pkgerrors.CodeConflict, "application already decided")
			case errors.Is(err, gorm.ErrRecordNotFound):
				return pkgerrors.New(pkgerrors.CodeNotFound, "application not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist decision")
		}
		updated = row
		return s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     enums.EventApplicationDecided,
			AggregateType: enums.AggregateApplication,
			AggregateID:   app.ID,
			Actor:         &outbox.Actor{ReviewerID: input.ReviewerID, Role: string(s.studioRoles.Admin)},
			OccurredAt:    decidedAt,
			Data: payloads.ApplicationDecidedEvent{
				ApplicationID:  app.ID,
				Decision:       input.Decision,
				Status:         target,
				DecidedBy:      input.ReviewerID,
				DecidedAt:      decidedAt,
				LinkedMemberID: out.update.LinkedMemberID,
				ContactID:      out.contactID,
				MemberCreated:  out.memberCreated,
			},
		})
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist decision")
		}
		return nil, err
	}

	s.notifyDecision(ctx, updated, input.Decision, out)
	return FromModel(updated), nil
}

func (s *service) approve(ctx context.Context, app *models.Application, who identity.Identity, decidedAt time.Time) (outcome, error) {
	memberID := who.ID
	created := false
	var contactID *uuid.UUID

	if !who.IsMember() {
		if who.IsContact() {
			id := who.ID
			contactID = &id
		}
		res, err := s.provisioner.Provision(ctx, members.ProvisionInput{
			Email:     app.Email,
			FirstName: app.FirstName,
			LastName:  app.LastName,
			ContactID: contactID,
		})
		if err != nil {
			return outcome{}, err
		}
		memberID = res.MemberID
		created = res.WasCreated
	}
	if s.logg != nil {
		ctx = s.logg.WithMemberID(ctx, memberID.String())
	}

	if err := s.roles.Assign(ctx, s.studioRoles.Invitee, memberID); err != nil {
		return outcome{}, err
	}

	return outcome{
		update: DecisionUpdate{
			ApprovedAt:     &decidedAt,
			LinkedMemberID: &memberID,
		},
		recipientID:   memberID,
		recipientKind: enums.RecipientMember,
		contactID:     contactID,
		memberCreated: created,
	}, nil
}

// reject makes sure the applicant is reachable as a contact (or member) and
// never changes roles.
func (s *service) reject(ctx context.Context, app *models.Application, who identity.Identity, decidedAt time.Time) (outcome, error) {
	out := outcome{update: DecisionUpdate{RejectedAt: &decidedAt}}

	switch {
	case who.IsMember():
		out.recipientID = who.ID
		out.recipientKind = enums.RecipientMember
		return out, nil
	case who.IsContact():
		id := who.ID
		out.recipientID = id
		out.recipientKind = enums.RecipientContact
		out.contactID = &id
		return out, nil
	}

	contact, err := s.contacts.Create(ctx, contacts.CreateContactDTO{
		Email:     app.Email,
		FirstName: app.FirstName,
		LastName:  app.LastName,
		Phone:     app.Phone,
	})
	switch {
	case err == nil:
		out.recipientID = contact.ID
	case errors.Is(err, contacts.ErrAlreadyExists):
		again, rerr := s.resolver.Resolve(ctx, app.Email)
		if rerr != nil {
			return outcome{}, rerr
		}
		if again.IsNone() {
			return outcome{}, pkgerrors.Wrap(pkgerrors.CodeIdentityInconsistency, err, "contact store reported a duplicate e-mail that cannot be resolved")
		}
		out.recipientID = again.ID
		if again.IsMember() {
			out.recipientKind = enums.RecipientMember
			return out, nil
		}
	default:
		return outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create contact")
	}
	id := out.recipientID
	out.recipientKind = enums.RecipientContact
	out.contactID = &id
	return out, nil
}

func (s *service) notifyDecision(ctx context.Context, app *models.Application, decision enums.ApplicationDecision, out outcome) {
	msg := notifications.Message{
		RecipientID:   out.recipientID.String(),
		RecipientKind: out.recipientKind,
		Email:         app.Email,
		Variables: map[string]string{
			"application_id": app.ID.String(),
			"first_name":     app.FirstName,
			"last_name":      app.LastName,
		},
	}
	if decision == enums.ApplicationDecisionApprove {
		msg.TemplateID = s.notifyCfg.ApprovalTemplateID
		msg.Kind = enums.NotificationApplicationApproved
	} else {
		msg.TemplateID = s.notifyCfg.RejectionTemplateID
		msg.Kind = enums.NotificationApplicationRejected
	}
	s.notifier.Send(context.WithoutCancel(ctx), msg)
}

func decisionOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return "error"
	}
	switch typed.Code() {
	case pkgerrors.CodeConflict:
		return "conflict"
	case pkgerrors.CodeInvalidState:
		return "invalid_state"
	case pkgerrors.CodeNotFound:
		return "not_found"
	case pkgerrors.CodeIdentityInconsistency:
		return "identity_inconsistency"
	case pkgerrors.CodeValidation, pkgerrors.CodeUnauthorized:
		return "rejected_input"
	default:
		return "error"
	}
}
