package entities

// RailEvent is the closed internal set of payment-rail webhook outcomes.
// Rail-specific event names are mapped into this set at the boundary;
// anything unmapped is acknowledged and ignored.
type RailEvent string

const (
	RailEventTransferSuccessful RailEvent = "transfer.successful"
	RailEventTransferFailed     RailEvent = "transfer.failed"
	RailEventTransferPending    RailEvent = "transfer.pending"
	RailEventTransferReversed   RailEvent = "transfer.reversed"
	RailEventPaymentSuccessful  RailEvent = "payment.successful"
	RailEventPaymentFailed      RailEvent = "payment.failed"
	RailEventPaymentPending     RailEvent = "payment.pending"
	RailEventUnknown            RailEvent = ""
)

// railEventNames maps the rail's wire-level event names onto the internal
// set. Rails add event types without notice; unknown names map to
// RailEventUnknown and are never treated as errors.
var railEventNames = map[string]RailEvent{
	"transfer.success":      RailEventTransferSuccessful,
	"transfer.successful":   RailEventTransferSuccessful,
	"transfer.completed":    RailEventTransferSuccessful,
	"transfer.failed":       RailEventTransferFailed,
	"transfer.rejected":     RailEventTransferFailed,
	"transfer.pending":      RailEventTransferPending,
	"transfer.processing":   RailEventTransferPending,
	"transfer.reversed":     RailEventTransferReversed,
	"payment.success":       RailEventPaymentSuccessful,
	"payment.successful":    RailEventPaymentSuccessful,
	"collection.successful": RailEventPaymentSuccessful,
	"payment.failed":        RailEventPaymentFailed,
	"collection.failed":     RailEventPaymentFailed,
	"payment.pending":       RailEventPaymentPending,
	"collection.pending":    RailEventPaymentPending,
}

// MapRailEvent resolves a wire-level event name to the internal set
func MapRailEvent(name string) RailEvent {
	return railEventNames[name]
}
