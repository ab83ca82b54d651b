package records

// Trigger names what moves a box between statuses.
type Trigger string

const (
	TriggerClientSignature Trigger = "client_signature"
	TriggerManualRetrieved Trigger = "manual_mark_retrieved"
	TriggerOverride        Trigger = "override"
)

type transition struct {
	from []BoxStatus
	to   BoxStatus
}

var transitionMap = map[Trigger]transition{
	TriggerClientSignature: {from: []BoxStatus{StatusStored}, to: StatusRetrieved},
	TriggerManualRetrieved: {from: []BoxStatus{StatusStored, StatusDestroyed}, to: StatusRetrieved},
}

// ValidTransition reports whether trigger may move a box from from to to.
// Overrides accept any pair of valid statuses.
func ValidTransition(trigger Trigger, from, to BoxStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if trigger == TriggerOverride {
		return true
	}
	t, ok := transitionMap[trigger]
	if !ok || t.to != to {
		return false
	}
	for _, status := range t.from {
		if status == from {
			return true
		}
	}
	return false
}

// Retrievable reports whether a new retrieval may be opened for a box in status.
func Retrievable(status BoxStatus) bool {
	return status == StatusStored
}
