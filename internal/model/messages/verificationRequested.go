package messages

// VerificationRequested is published when a user submits a verification request.
// Topic: event/verification/{id}
type VerificationRequested struct {
	VerificationID string `json:"verification_id"`
}
