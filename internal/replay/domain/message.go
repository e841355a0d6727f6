package domain

// StreamMessage one entry read from the request stream
type StreamMessage struct {
	ID     string
	Values map[string]interface{}
}
