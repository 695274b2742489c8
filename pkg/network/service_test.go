package network

import "testing"

func TestValidateCronScheduleEmptyAllowed(t *testing.T) {
	if err := validateCronSchedule(""); err != nil {
		t.Fatalf("expected empty schedule to be allowed, got %v", err)
	}
}

func TestValidateCronScheduleValidExpression(t *testing.T) {
	if err := validateCronSchedule("*/5 * * * *"); err != nil {
		t.Fatalf("expected valid expression to pass, got %v", err)
	}
}

func TestValidateCronScheduleRejectsGarbage(t *testing.T) {
	if err := validateCronSchedule("not a cron schedule"); err == nil {
		t.Fatal("expected malformed cron_schedule to be rejected")
	}
}

func TestValidateCronScheduleRejectsTooFewFields(t *testing.T) {
	if err := validateCronSchedule("* *"); err == nil {
		t.Fatal("expected short expression to be rejected")
	}
}
