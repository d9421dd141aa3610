package observability

const (
	MetricPrefix = "raffler"
)

// Metric names
const (
	DrawsTotal          = MetricPrefix + ".draws.total"
	DrawDuration        = MetricPrefix + ".draws.duration"
	PayoutsTotal        = MetricPrefix + ".payouts.total"
	PayoutAmountTotal   = MetricPrefix + ".payouts.amount_total"
	LockContentionTotal = MetricPrefix + ".lock.contention_total"
)

// Label keys
const (
	LabelResult  = "result"
	LabelReason  = "reason"
	LabelKind    = "kind"
	LabelSuccess = "success"
)
