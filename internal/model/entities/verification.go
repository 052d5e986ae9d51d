package entities

import "time"

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// Verification is a user's request to be verified by an administrator.
// Token is the secret embedded in the approval link mailed to admins.
type Verification struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	Email       string             `json:"email"`
	Name        string             `json:"name"`
	Token       string             `json:"-"`
	Status      VerificationStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	ApprovedAt  *time.Time         `json:"approved_at,omitempty"`
	EmailSentAt *time.Time         `json:"email_sent_at,omitempty"`
	EmailError  string             `json:"email_error,omitempty"`
}

// Audit outcomes written by the approval endpoint.
const (
	OutcomeSuccess          = "success"
	OutcomeBadRequest       = "bad_request"
	OutcomeNotFound         = "not_found"
	OutcomeInvalidToken     = "invalid_token"
	OutcomeExpiredToken     = "expired_token"
	OutcomeRejectedConflict = "rejected_conflict"
	OutcomeInternalError    = "internal_error"
)

// AuditEntry is one line of the approval audit log.
type AuditEntry struct {
	ID             string    `json:"id"`
	Action         string    `json:"action"`
	VerificationID string    `json:"verification_id"`
	Outcome        string    `json:"outcome"`
	Detail         string    `json:"detail,omitempty"`
	RemoteAddr     string    `json:"remote_addr,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
