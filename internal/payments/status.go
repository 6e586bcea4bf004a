package payments

// Tone groups statuses for presentation.
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
)

// StatusInfo is the authoritative metadata for one status.
type StatusInfo struct {
	Code        Status `json:"code"`
	Label       string `json:"label"`
	Tone        Tone   `json:"tone"`
	Collectable bool   `json:"collectable"`
	Settled     bool   `json:"settled"`
}

var statusTable = []StatusInfo{
	{Code: StatusPending, Label: "Pending", Tone: ToneNeutral, Collectable: true},
	{Code: StatusDueToday, Label: "Due today", Tone: ToneInfo, Collectable: true},
	{Code: StatusOverdue, Label: "Overdue", Tone: ToneDanger, Collectable: true},
	{Code: StatusPartial, Label: "Partially paid", Tone: ToneWarning, Collectable: true},
	{Code: StatusInCollection, Label: "In collection", Tone: ToneDanger, Collectable: true},
	{Code: StatusRescheduled, Label: "Rescheduled", Tone: ToneInfo, Collectable: true},
	{Code: StatusPaid, Label: "Paid", Tone: ToneSuccess, Settled: true},
	{Code: StatusPaidPartial, Label: "Paid (partial settlement)", Tone: ToneSuccess, Settled: true},
	{Code: StatusPaidByAssociate, Label: "Paid by associate", Tone: ToneSuccess, Settled: true},
	{Code: StatusPaidNotReported, Label: "Paid, not reported", Tone: ToneWarning, Settled: true},
	{Code: StatusForgiven, Label: "Forgiven", Tone: ToneNeutral, Settled: true},
	{Code: StatusCancelled, Label: "Cancelled", Tone: ToneNeutral, Settled: true},
}

var statusIndex = func() map[Status]StatusInfo {
	m := make(map[Status]StatusInfo, len(statusTable))
	for _, s := range statusTable {
		m[s.Code] = s
	}
	return m
}()

// Statuses returns the metadata table in display order.
func Statuses() []StatusInfo {
	out := make([]StatusInfo, len(statusTable))
	copy(out, statusTable)
	return out
}

// Info returns metadata for s.
func (s Status) Info() (StatusInfo, bool) {
	info, ok := statusIndex[s]
	return info, ok
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusIndex[s]
	return ok
}

// Collectable reports whether markPaid accepts the status.
func (s Status) Collectable() bool {
	return statusIndex[s].Collectable
}

// Settled reports whether the installment needs no further client collection.
func (s Status) Settled() bool {
	return statusIndex[s].Settled
}

// CollectableCodes lists the codes markPaid accepts, for SQL filters.
func CollectableCodes() []string {
	var out []string
	for _, s := range statusTable {
		if s.Collectable {
			out = append(out, string(s.Code))
		}
	}
	return out
}
