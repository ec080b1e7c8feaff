package domain

// Pattern type labels shared by detectors, scorer, and aggregator.
const (
	PatternCycle    = "cycle"
	PatternSmurfing = "smurfing"
	PatternShell    = "shell"
)

// DetectionSignal is per-account, per-pattern evidence emitted by a detector.
// Ephemeral: consumed by the scorer and ring aggregator, never serialized.
type DetectionSignal struct {
	AccountID string
	Pattern   string
	// Strength is the detector's confidence in (0, 1].
	Strength float64
	// RingHint lists the accounts co-implicated in the same structure.
	RingHint []string
}

// SuspiciousAccount is one flagged account in the final report.
type SuspiciousAccount struct {
	AccountID        string   `json:"account_id"`
	SuspicionScore   float64  `json:"suspicion_score"`
	DetectedPatterns []string `json:"detected_patterns"`
	RingID           *string  `json:"ring_id"`
}

// FraudRing is a cluster of accounts implicated by the same detected structure.
type FraudRing struct {
	RingID         string   `json:"ring_id"`
	MemberAccounts []string `json:"member_accounts"`
	PatternType    string   `json:"pattern_type"`
	RiskScore      float64  `json:"risk_score"`
}

// Summary holds run-level counters for the report.
type Summary struct {
	TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int     `json:"fraud_rings_detected"`
	ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`
}

// AnalysisResult is the sole artifact returned to the caller.
// Immutable after assembly; collections are always non-nil so an empty
// run serializes as [] rather than null.
type AnalysisResult struct {
	SuspiciousAccounts []SuspiciousAccount `json:"suspicious_accounts"`
	FraudRings         []FraudRing         `json:"fraud_rings"`
	Summary            Summary             `json:"summary"`
}
