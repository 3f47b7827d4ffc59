package receipt

// TargetType names the kind of obligation a link points at.
type TargetType string

const (
	TargetDue           TargetType = "due"
	TargetRegistration  TargetType = "registration"
	TargetDebt          TargetType = "debt"
	TargetAttendance    TargetType = "attendance"
	TargetSessionCredit TargetType = "session_credit"
)

// IsValid reports whether t is a known target type.
func (t TargetType) IsValid() bool {
	switch t {
	case TargetDue, TargetRegistration, TargetDebt, TargetAttendance, TargetSessionCredit:
		return true
	}
	return false
}

// CountsAsSessionCredit reports whether money linked to t pays for
// sessions.
func (t TargetType) CountsAsSessionCredit() bool {
	switch t {
	case TargetDebt, TargetAttendance, TargetSessionCredit:
		return true
	}
	return false
}

// Link is an append-only pointer from a receipt to an obligation it pays.
//
// At most one settling link exists per target; stores enforce this with a
// unique key so that two concurrent payments of the same obligation cannot
// both commit.
type Link struct {
	TargetType  TargetType `json:"target_type"`
	TargetID    string     `json:"target_id"`
	Amount      int64      `json:"amount"`
	Sessions    int        `json:"sessions,omitempty"`
	Settles     bool       `json:"settles"`
	Description string     `json:"description,omitempty"`
}

// SettlingTargets returns the targets r fully settles.
func (r *Receipt) SettlingTargets() []Link {
	var out []Link
	for _, l := range r.Links {
		if l.Settles {
			out = append(out, l)
		}
	}
	return out
}

// LinkedAmount sums link amounts for targets matching keep.
func (r *Receipt) LinkedAmount(keep func(TargetType) bool) int64 {
	var total int64
	for _, l := range r.Links {
		if keep(l.TargetType) {
			total += l.Amount
		}
	}
	return total
}
