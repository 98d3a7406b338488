package cron

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/claystudio/membership-backend/internal/notifications"
	"github.com/claystudio/membership-backend/pkg/db/models"
	"github.com/claystudio/membership-backend/pkg/enums"
	"github.com/claystudio/membership-backend/pkg/logger"
)

const (
	defaultReminderAfter = 7 * 24 * time.Hour
	reminderBatchLimit   = 200
	reminderListedIDs    = 20
)

type staleApplicationLister interface {
	ListSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Application, error)
}

type reminderSender interface {
	Send(ctx context.Context, msg notifications.Message) bool
}

type ReviewReminderJobParams struct {
	Logger         *logger.Logger
	Applications   staleApplicationLister
	Sender         reminderSender
	TemplateID     string
	AdminContactID string
	After          time.Duration
}

// NewReviewReminderJob nudges the admin contact about applications that have
// waited longer than After for a decision.
func NewReviewReminderJob(params ReviewReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Applications == nil {
		return nil, fmt.Errorf("applications repository required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("notification sender required")
	}
	if strings.TrimSpace(params.TemplateID) == "" {
		return nil, fmt.Errorf("review reminder template required")
	}
	after := params.After
	if after <= 0 {
		after = defaultReminderAfter
	}
	return &reviewReminderJob{
		logg:         params.Logger,
		applications: params.Applications,
		sender:       params.Sender,
		templateID:   params.TemplateID,
		adminContact: strings.TrimSpace(params.AdminContactID),
		after:        after,
		now:          time.Now,
	}, nil
}

type reviewReminderJob struct {
	logg         *logger.Logger
	applications staleApplicationLister
	sender       reminderSender
	templateID   string
	adminContact string
	after        time.Duration
	now          func() time.Time
}

func (j *reviewReminderJob) Name() string { return "review-reminder" }

func (j *reviewReminderJob) Run(ctx context.Context) error {
	if j.adminContact == "" {
		j.logg.Warn(ctx, "admin contact not configured; skipping review reminder")
		return nil
	}

	cutoff := j.now().UTC().Add(-j.after)
	stale, err := j.applications.ListSubmittedBefore(ctx, cutoff, reminderBatchLimit)
	if err != nil {
		return fmt.Errorf("list stale applications: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":        cutoff,
		"pending_count": len(stale),
	})
	if len(stale) == 0 {
		j.logg.Info(logCtx, "no applications awaiting review past cutoff")
		return nil
	}

	ids := make([]string, 0, reminderListedIDs)
	for i, app := range stale {
		if i == reminderListedIDs {
			break
		}
		ids = append(ids, app.ID.String())
	}

	sent := j.sender.Send(ctx, notifications.Message{
		TemplateID:    j.templateID,
		Kind:          enums.NotificationReviewReminder,
		RecipientID:   j.adminContact,
		RecipientKind: enums.RecipientContact,
		Variables: map[string]string{
			"pending_count":       strconv.Itoa(len(stale)),
			"oldest_submitted_at": stale[0].SubmittedAt.UTC().Format(time.RFC3339),
			"application_ids":     strings.Join(ids, ","),
		},
	})
	if !sent {
		return fmt.Errorf("review reminder was not delivered")
	}
	j.logg.Info(logCtx, "review reminder sent")
	return nil
}
