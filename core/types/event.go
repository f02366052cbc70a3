package types

// Event represents a structured state change emitted by an engine.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
