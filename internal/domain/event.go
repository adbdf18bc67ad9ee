package domain

// Event is the budget side of a campus event. Guest membership is maintained by
// the events service; the ledger only reads it.
type Event struct {
	ID            int64    `json:"id"`
	Points        int64    `json:"points"`
	PointsAwarded int64    `json:"points_awarded"`
	Guests        []string `json:"guests"`
}

// PointsRemain is the unspent part of the budget.
func (e *Event) PointsRemain() int64 {
	return e.Points - e.PointsAwarded
}

// HasGuest reports whether accountID is registered for the event.
func (e *Event) HasGuest(accountID string) bool {
	for _, g := range e.Guests {
		if g == accountID {
			return true
		}
	}
	return false
}
