package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeResponse decodes a raw CWA payload. Fields whose JSON type does not
// match are left empty so Validate can report them; only syntactically
// invalid JSON is an error.
func DecodeResponse(data []byte) (RawForecastResponse, error) {
	var resp RawForecastResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return resp, nil
		}
		return RawForecastResponse{}, fmt.Errorf("decode forecast response: %w", err)
	}
	return resp, nil
}
