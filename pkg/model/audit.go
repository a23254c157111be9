package model

// Outcome values recorded in audit entries.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"

	ActionDelete = "delete"

	// AlgorithmP256SHA256 identifies ECDSA over P-256 with a SHA-256 digest.
	AlgorithmP256SHA256 = "P256-SHA256"
)

// AuditEntry records one attempted destructive action.
type AuditEntry struct {
	Timestamp    string `json:"timestamp"`
	Actor        string `json:"actor"`
	Action       string `json:"action"`
	Source       Source `json:"source"`
	ID           string `json:"serial"`
	RemoteUUID   string `json:"uuid"`
	HostName     string `json:"hostName"`
	Outcome      string `json:"outcome"`
	ResponseCode *int   `json:"responseCode,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SignedAuditEnvelope is the exported, verifiable audit artifact.
type SignedAuditEnvelope struct {
	Entries         []AuditEntry `json:"entries"`
	SignatureBase64 string       `json:"signatureBase64"`
	PublicKeyBase64 string       `json:"publicKeyBase64"`
	Algorithm       string       `json:"algorithm"`
}
