package records

import "testing"

func TestValidTransition(t *testing.T) {
	tests := []struct {
		trigger Trigger
		from    BoxStatus
		to      BoxStatus
		want    bool
	}{
		{TriggerClientSignature, StatusStored, StatusRetrieved, true},
		{TriggerClientSignature, StatusRetrieved, StatusRetrieved, false},
		{TriggerClientSignature, StatusDestroyed, StatusRetrieved, false},
		{TriggerClientSignature, StatusStored, StatusDestroyed, false},
		{TriggerManualRetrieved, StatusStored, StatusRetrieved, true},
		{TriggerManualRetrieved, StatusDestroyed, StatusRetrieved, true},
		{TriggerManualRetrieved, StatusRetrieved, StatusRetrieved, false},
		{TriggerOverride, StatusDestroyed, StatusStored, true},
		{TriggerOverride, StatusRetrieved, StatusStored, true},
		{TriggerOverride, StatusStored, BoxStatus("lost"), false},
		{Trigger("unknown"), StatusStored, StatusRetrieved, false},
	}
	for _, tt := range tests {
		if got := ValidTransition(tt.trigger, tt.from, tt.to); got != tt.want {
			t.Fatalf("ValidTransition(%s, %s, %s) = %v, want %v", tt.trigger, tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseBoxStatus(t *testing.T) {
	if st, err := ParseBoxStatus(" Retrieved "); err != nil || st != StatusRetrieved {
		t.Fatalf("ParseBoxStatus: %v %v", st, err)
	}
	if _, err := ParseBoxStatus("archived"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestRetrievable(t *testing.T) {
	for status, want := range map[BoxStatus]bool{
		StatusStored:    true,
		StatusRetrieved: false,
		StatusDestroyed: false,
	} {
		if got := Retrievable(status); got != want {
			t.Fatalf("Retrievable(%s) = %v, want %v", status, got, want)
		}
	}
}
