package mailer

// EmailJob is the JSON payload put on the RabbitMQ queue for asynchronous,
// non-gating emails. Either set Subject/Text/HTML directly or name a
// Template ("login_notification") with its Data.
type EmailJob struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}
