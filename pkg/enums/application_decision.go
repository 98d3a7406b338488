package enums

import "fmt"

// ApplicationDecision is the outcome a reviewer records for a submitted application.
type ApplicationDecision string

const (
	ApplicationDecisionApprove ApplicationDecision = "approve"
	ApplicationDecisionReject  ApplicationDecision = "reject"
)

// String implements fmt.Stringer.
func (d ApplicationDecision) String() string {
	return string(d)
}

// IsValid reports whether the value is a known ApplicationDecision.
func (d ApplicationDecision) IsValid() bool {
	return d == ApplicationDecisionApprove || d == ApplicationDecisionReject
}

// TargetStatus maps the decision onto the terminal application status it produces.
func (d ApplicationDecision) TargetStatus() (ApplicationStatus, error) {
	switch d {
	case ApplicationDecisionApprove:
		return ApplicationStatusApproved, nil
	case ApplicationDecisionReject:
		return ApplicationStatusRejected, nil
	}
	return "", fmt.Errorf("invalid application decision %q", d)
}

// ParseApplicationDecision converts raw input into an ApplicationDecision.
func ParseApplicationDecision(value string) (ApplicationDecision, error) {
	d := ApplicationDecision(value)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid application decision %q", value)
	}
	return d, nil
}
