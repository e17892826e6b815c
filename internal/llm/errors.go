package llm

// InvalidResponseError reports a provider response that parsed as JSON but
// failed validation against the expected shape.
type InvalidResponseError struct {
	Detail string
}

func (e *InvalidResponseError) Error() string {
	return "invalid provider response: " + e.Detail
}
