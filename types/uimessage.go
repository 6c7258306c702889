package types

// UIMessage is a user-facing notice queued during a render and shown on a
// later page.
type UIMessage struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
}
