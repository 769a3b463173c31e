package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	ErrMissingField = errors.New("graphql: field missing from response")
	ErrEmptyData    = errors.New("graphql: response carried no data")
)

// Request is the POST body of every operation.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Error is a single GraphQL error entry.
type Error struct {
	Message string `json:"message"`
}

// ResponseError carries the first GraphQL error message of a response.
type ResponseError struct {
	Message    string
	StatusCode int
}

func (e *ResponseError) Error() string {
	return e.Message
}

type result struct {
	Data   json.RawMessage `json:"data"`
	Errors []Error         `json:"errors"`
}

// response accepts both envelope shapes the backend produces: the plain
// {data, errors} and the wrapped {body: {singleResult: {data, errors}}}.
type response struct {
	result
	Body *struct {
		SingleResult *result `json:"singleResult"`
	} `json:"body"`
}

// NewRequest builds the HTTP request for an operation.
func NewRequest(ctx context.Context, url, query string, variables map[string]any) (*http.Request, error) {
	body, err := json.Marshal(Request{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("graphql.NewRequest encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("graphql.NewRequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// ReadData decodes an HTTP response into its data object. The first GraphQL
// error, if any, is returned as a *ResponseError.
func ReadData(resp *http.Response) (json.RawMessage, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("graphql: read body: %w", err)
	}
	data, err := DecodeEnvelope(raw)
	if err != nil {
		var re *ResponseError
		if errors.As(err, &re) {
			re.StatusCode = resp.StatusCode
		}
		if resp.StatusCode >= 300 && re == nil {
			return nil, &ResponseError{Message: fmt.Sprintf("request failed with status %d", resp.StatusCode), StatusCode: resp.StatusCode}
		}
		return nil, err
	}
	return data, nil
}

// DecodeEnvelope unwraps either envelope shape into the data object.
func DecodeEnvelope(raw []byte) (json.RawMessage, error) {
	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("graphql: decode envelope: %w", err)
	}

	errs := r.Errors
	data := r.Data
	if r.Body != nil && r.Body.SingleResult != nil {
		sr := r.Body.SingleResult
		if len(sr.Errors) > 0 {
			errs = sr.Errors
		}
		if !isNull(sr.Data) {
			data = sr.Data
		}
	}

	if len(errs) > 0 {
		msg := errs[0].Message
		if msg == "" {
			msg = "Request failed"
		}
		return nil, &ResponseError{Message: msg}
	}
	if isNull(data) {
		return nil, ErrEmptyData
	}
	return data, nil
}

// Field decodes data[name] into v. A field whose value is a JSON string holding
// a JSON document is decoded from that document.
func Field(data json.RawMessage, name string, v any) error {
	raw, err := rawField(data, name)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("graphql: field %s: %w", name, err)
		}
		if err := json.Unmarshal([]byte(s), v); err != nil {
			return fmt.Errorf("graphql: field %s holds a non-JSON string: %w", name, err)
		}
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("graphql: field %s: %w", name, err)
	}
	return nil
}

// FieldString returns data[name] as text: the string value itself, or the
// compact JSON of any other value.
func FieldString(data json.RawMessage, name string) (string, error) {
	raw, err := rawField(data, name)
	if err != nil {
		return "", err
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("graphql: field %s: %w", name, err)
		}
		return s, nil
	}
	return string(raw), nil
}

func rawField(data json.RawMessage, name string) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("graphql: decode data: %w", err)
	}
	raw, ok := fields[name]
	raw = bytes.TrimSpace(raw)
	if !ok || isNull(raw) {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return raw, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
