package loans

// Status enumerates loan lifecycle states.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusApproved     Status = "APPROVED"
	StatusActive       Status = "ACTIVE"
	StatusPaidOff      Status = "PAID_OFF"
	StatusDefaulted    Status = "DEFAULTED"
	StatusRejected     Status = "REJECTED"
	StatusCancelled    Status = "CANCELLED"
	StatusRestructured Status = "RESTRUCTURED"
	StatusOverdue      Status = "OVERDUE"
	StatusEarlyPayment Status = "EARLY_PAYMENT"
)

// StatusInfo is the single metadata table presentation layers consume.
type StatusInfo struct {
	Code     Status `json:"code"`
	Label    string `json:"label"`
	Tone     string `json:"tone"`
	Active   bool   `json:"active"`
	Terminal bool   `json:"terminal"`
	// Legacy marks codes accepted on read but never written.
	Legacy bool `json:"legacy,omitempty"`
}

var statusTable = []StatusInfo{
	{Code: StatusPending, Label: "Pending approval", Tone: "neutral"},
	{Code: StatusApproved, Label: "Active", Tone: "success", Active: true},
	{Code: StatusActive, Label: "Active", Tone: "success", Active: true, Legacy: true},
	{Code: StatusOverdue, Label: "Overdue", Tone: "danger", Active: true},
	{Code: StatusEarlyPayment, Label: "Early payment", Tone: "info", Active: true},
	{Code: StatusPaidOff, Label: "Paid off", Tone: "success", Terminal: true},
	{Code: StatusDefaulted, Label: "Defaulted", Tone: "danger", Terminal: true},
	{Code: StatusRestructured, Label: "Restructured", Tone: "warning", Terminal: true},
	{Code: StatusRejected, Label: "Rejected", Tone: "neutral", Terminal: true},
	{Code: StatusCancelled, Label: "Cancelled", Tone: "neutral", Terminal: true},
}

var statusIndex = func() map[Status]StatusInfo {
	m := make(map[Status]StatusInfo, len(statusTable))
	for _, s := range statusTable {
		m[s.Code] = s
	}
	return m
}()

// Statuses returns the metadata table.
func Statuses() []StatusInfo {
	out := make([]StatusInfo, len(statusTable))
	copy(out, statusTable)
	return out
}

// Valid reports whether s is known.
func (s Status) Valid() bool {
	_, ok := statusIndex[s]
	return ok
}

// Canonical folds the legacy ACTIVE code into APPROVED.
func (s Status) Canonical() Status {
	if s == StatusActive {
		return StatusApproved
	}
	return s
}

// IsActive reports whether the loan consumes associate credit.
func (s Status) IsActive() bool {
	return statusIndex[s].Active
}

// Terminal reports whether no further lifecycle transition is possible.
func (s Status) Terminal() bool {
	return statusIndex[s].Terminal
}

// manualTargets are the transitions an operator may drive from the active family.
var manualTargets = map[Status]bool{
	StatusPaidOff:      true,
	StatusDefaulted:    true,
	StatusRestructured: true,
	StatusEarlyPayment: true,
}

// releasesCredit lists targets that return the amount to the associate's line.
var releasesCredit = map[Status]bool{
	StatusPaidOff:      true,
	StatusRestructured: true,
	StatusCancelled:    true,
}

// undeletable statuses block deletion even with force.
var undeletable = map[Status]bool{
	StatusPaidOff:   true,
	StatusDefaulted: true,
	StatusCancelled: true,
}
