package domain

// Order sides
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Admission decisions
const (
	DecisionApprove              Decision = "APPROVE"
	DecisionReject               Decision = "REJECT"
	DecisionApproveReductionOnly Decision = "APPROVE_REDUCTION_ONLY"
)

// Anchor kinds (метки для журнала и метрик)
const (
	AnchorKindPreview = "preview"
	AnchorKindFill    = "fill"
)

// Verification legs
const (
	LegPolicy = "policy"
	LegRisk   = "risk"
)

// DefaultAnchorTimeoutMs таймаут одной стадии анкоринга по умолчанию
const DefaultAnchorTimeoutMs = 10000
