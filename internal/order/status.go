package order

// Status is the lifecycle state of an order.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusCheckout   Status = "checkout"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusOnHold     Status = "on_hold"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusFailed     Status = "failed"
)

var transitions = map[Status][]Status{
	StatusDraft:      {StatusPending},
	StatusCheckout:   {StatusPending, StatusFailed},
	StatusPending:    {StatusProcessing, StatusOnHold, StatusCancelled, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusOnHold, StatusCancelled, StatusRefunded},
	StatusOnHold:     {StatusPending, StatusProcessing, StatusCancelled},
	StatusCompleted:  {StatusRefunded},
	StatusCancelled:  {StatusPending},
	StatusFailed:     {StatusPending},
	StatusRefunded:   {},
}

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusDraft, StatusCheckout, StatusPending, StatusProcessing, StatusOnHold,
		StatusCompleted, StatusCancelled, StatusRefunded, StatusFailed,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// ValidTransitions returns the statuses reachable from s.
func ValidTransitions(from Status) []Status {
	out := make([]Status, len(transitions[from]))
	copy(out, transitions[from])
	return out
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Label is the shopper-facing status name.
func (s Status) Label() string {
	switch s {
	case StatusDraft:
		return "Draft"
	case StatusCheckout:
		return "Checkout draft"
	case StatusPending:
		return "Pending payment"
	case StatusProcessing:
		return "Processing"
	case StatusOnHold:
		return "On hold"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	case StatusRefunded:
		return "Refunded"
	case StatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// Editable reports whether lines may change in this status.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusPending || s == StatusOnHold
}

// Refundable reports whether refunds may be issued in this status.
func (s Status) Refundable() bool {
	return s == StatusProcessing || s == StatusCompleted || s == StatusOnHold
}
