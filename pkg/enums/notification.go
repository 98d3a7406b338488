package enums

// NotificationKind names the purpose of a transactional message.
type NotificationKind string

const (
	NotificationApplicationApproved NotificationKind = "application_approved"
	NotificationApplicationRejected NotificationKind = "application_rejected"
	NotificationPasswordSetup       NotificationKind = "password_setup"
	NotificationNewApplication      NotificationKind = "new_application"
	NotificationReviewReminder      NotificationKind = "review_reminder"
)

// String implements fmt.Stringer.
func (k NotificationKind) String() string {
	return string(k)
}

// RecipientKind tells the mailer which store the recipient id belongs to.
type RecipientKind string

const (
	RecipientMember  RecipientKind = "member"
	RecipientContact RecipientKind = "contact"
)
