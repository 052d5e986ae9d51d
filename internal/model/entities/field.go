package entities

// UnknownField is shown wherever a field document is missing or unnamed.
const UnknownField = "Unknown Field"

// Field represents a tract of land owned by a user.
type Field struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// DisplayName is nil-safe so callers can pass the result of a failed lookup.
func (f *Field) DisplayName() string {
	if f == nil || f.Name == "" {
		return UnknownField
	}
	return f.Name
}

// User is the owner of fields and the recipient of push notifications.
type User struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	Role      string   `json:"role"`
	Verified  bool     `json:"verified"`
	FCMTokens []string `json:"fcm_tokens"`
}
