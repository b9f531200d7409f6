package ultramsg

import (
	"encoding/json"
	"fmt"
)

// SendResponse is the gateway acknowledgement for a send.
type SendResponse struct {
	Sent    string          `json:"sent"`
	Message string          `json:"message"`
	ID      any             `json:"id"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// APIError is returned for non-200 gateway responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ultramsg: http %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the failure is worth trying again later.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// decodeSendResponse accepts an empty or non-JSON 200 body as success, since
// some gateway versions answer plain text. A JSON body carrying an "error"
// field is a failure even with status 200.
func decodeSendResponse(data []byte) (*SendResponse, error) {
	var resp SendResponse
	if len(data) == 0 {
		return &resp, nil
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return &SendResponse{Message: string(data)}, nil
	}
	if len(resp.Error) > 0 && string(resp.Error) != "null" {
		return nil, fmt.Errorf("ultramsg: gateway rejected send: %s", string(resp.Error))
	}
	return &resp, nil
}
