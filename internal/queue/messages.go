package queue

// Mail asks the mailer service to render a template and send it.
type Mail struct {
	Receiver  string         `json:"receiver"`
	Subject   string         `json:"subject"`
	Template  string         `json:"template"`
	Variables map[string]any `json:"variables"`
}

// UserEvent announces a user lifecycle change on the user.all queue. Type is
// one of the Queue* names, the reference is a user or reset id depending on
// the type.
type UserEvent struct {
	Type      string `json:"type"`
	Reference string `json:"reference"`
}
