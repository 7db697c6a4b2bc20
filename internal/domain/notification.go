package domain

// Notification is handed to the notification dispatcher.
type Notification struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Recipients []string       `json:"recipients"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Email is handed to the email sender collaborator.
type Email struct {
	Template   string         `json:"template"`
	Recipients []string       `json:"recipients"`
	Data       map[string]any `json:"data,omitempty"`
}
