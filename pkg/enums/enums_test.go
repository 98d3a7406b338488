package enums

import "testing"

func TestApplicationStatusTerminal(t *testing.T) {
	if ApplicationStatusSubmitted.IsTerminal() {
		t.Fatal("submitted must not be terminal")
	}
	for _, s := range []ApplicationStatus{ApplicationStatusApproved, ApplicationStatusRejected} {
		if !s.IsTerminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
	if _, err := ParseApplicationStatus("archived"); err == nil {
		t.Fatal("expected parse error for unknown status")
	}
}

func TestApplicationDecisionTargetStatus(t *testing.T) {
	tests := []struct {
		decision ApplicationDecision
		want     ApplicationStatus
	}{
		{decision: ApplicationDecisionApprove, want: ApplicationStatusApproved},
		{decision: ApplicationDecisionReject, want: ApplicationStatusRejected},
	}
	for _, tt := range tests {
		got, err := tt.decision.TargetStatus()
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tt.decision, err)
		}
		if got != tt.want {
			t.Fatalf("%s: expected %s got %s", tt.decision, tt.want, got)
		}
	}
	if _, err := ApplicationDecision("defer").TargetStatus(); err == nil {
		t.Fatal("expected error for unknown decision")
	}
	if _, err := ParseApplicationDecision("submitted"); err == nil {
		t.Fatal("a status is not a decision")
	}
}

func TestOutboxEnums(t *testing.T) {
	if !EventApplicationDecided.IsValid() || !AggregateApplication.IsValid() {
		t.Fatal("expected application outbox enums to be valid")
	}
	if _, err := ParseOutboxEventType("order_created"); err == nil {
		t.Fatal("expected unknown event type to fail")
	}
	if !OutboxTerminalMaxAttempts.IsValid() || OutboxTerminalReason("dlq").IsValid() {
		t.Fatal("unexpected terminal reason validity")
	}
}
