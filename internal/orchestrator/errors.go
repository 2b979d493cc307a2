package orchestrator

import "fmt"

// ErrUnknownProvider is returned by SetActive when key names a provider
// that was never registered (§4.3 "Fails UNKNOWN_PROVIDER").
type ErrUnknownProvider struct {
	Key string
}

func (e *ErrUnknownProvider) Error() string {
	return fmt.Sprintf("orchestrator: unknown provider %q", e.Key)
}

// ErrMissingField is returned by the get_action endpoint adapter when the
// request data is missing or has a malformed "observation" field.
type ErrMissingField struct {
	Field string
}

func (e *ErrMissingField) Error() string {
	return fmt.Sprintf("orchestrator: missing or invalid field %q", e.Field)
}
