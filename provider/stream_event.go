package provider

import (
	"errors"
	"fmt"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	delimJSON    = []byte(`{"type":"delim"}`)
	chunkJSON    = []byte(`{"type":"chunk"}`)
	responseJSON = []byte(`{"type":"response"}`)
	errorJSON    = []byte(`{"type":"error"}`)
)

// StreamEvent is the sealed union of events a Completer emits.
type StreamEvent interface {
	streamEvent()
}

// Delim marks a stream boundary ("start", "end", or "empty" when the
// upstream answered with no choices).
type Delim struct {
	RunID uuid.UUID `json:"run_id"`
	Delim string    `json:"delim"`
}

func (Delim) streamEvent() {}

// Chunk is an incremental fragment of one choice: either a piece of content
// text or a piece of a function call.
type Chunk struct {
	RunID        uuid.UUID       `json:"run_id"`
	Index        int64           `json:"index"`
	Content      string          `json:"content,omitempty"`
	FunctionCall *FunctionCall   `json:"function_call,omitempty"`
	Timestamp    strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Chunk) streamEvent() {}

// Response is the completed result of a completion call, one Choice per
// sampled completion, plus token usage.
type Response struct {
	RunID     uuid.UUID       `json:"run_id"`
	ID        string          `json:"id,omitempty"`
	Model     string          `json:"model,omitempty"`
	Choices   []Choice        `json:"choices"`
	Usage     Usage           `json:"usage"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Response) streamEvent() {}

// Error carries a failure through the event stream.
type Error struct {
	RunID     uuid.UUID       `json:"run_id"`
	Err       error           `json:"error"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Error) streamEvent() {}

func (e Error) Error() string {
	return fmt.Sprintf("run_id: %s, timestamp: %s, error: %v", e.RunID, e.Timestamp, e.Err)
}

func (e Error) Unwrap() error { return e.Err }

// MarshalJSON implements custom JSON marshaling for Delim
func (d Delim) MarshalJSON() ([]byte, error) {
	result := delimJSON

	var err error
	result, err = sjson.SetBytes(result, "run_id", d.RunID.String())
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "delim", d.Delim)
	return result, err
}

// UnmarshalJSON implements custom JSON unmarshaling for Delim
func (d *Delim) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	if err := checkEventType(data, "delim"); err != nil {
		return err
	}

	if err := parseRunID(data, &d.RunID); err != nil {
		return err
	}

	delim := gjson.GetBytes(data, "delim")
	if !delim.Exists() {
		return fmt.Errorf("missing required field 'delim'")
	}
	d.Delim = delim.String()

	return nil
}

// MarshalJSON implements custom JSON marshaling for Chunk
func (c Chunk) MarshalJSON() ([]byte, error) {
	result := chunkJSON

	var err error
	result, err = sjson.SetBytes(result, "run_id", c.RunID.String())
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "index", c.Index)
	if err != nil {
		return nil, err
	}

	if c.Content != "" {
		result, err = sjson.SetBytes(result, "content", c.Content)
		if err != nil {
			return nil, err
		}
	}

	if c.FunctionCall != nil {
		fc, err := json.Marshal(c.FunctionCall)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal function call: %w", err)
		}
		result, err = sjson.SetRawBytes(result, "function_call", fc)
		if err != nil {
			return nil, err
		}
	}

	return setTimestamp(result, c.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Chunk
func (c *Chunk) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	if err := checkEventType(data, "chunk"); err != nil {
		return err
	}

	if err := parseRunID(data, &c.RunID); err != nil {
		return err
	}

	c.Index = gjson.GetBytes(data, "index").Int()
	c.Content = gjson.GetBytes(data, "content").String()

	if fc := gjson.GetBytes(data, "function_call"); fc.Exists() {
		var call FunctionCall
		if err := json.Unmarshal([]byte(fc.Raw), &call); err != nil {
			return fmt.Errorf("invalid function_call: %w", err)
		}
		c.FunctionCall = &call
	}

	return parseTimestamp(data, &c.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for Response
func (r Response) MarshalJSON() ([]byte, error) {
	result := responseJSON

	var err error
	result, err = sjson.SetBytes(result, "run_id", r.RunID.String())
	if err != nil {
		return nil, err
	}

	if r.ID != "" {
		result, err = sjson.SetBytes(result, "id", r.ID)
		if err != nil {
			return nil, err
		}
	}

	if r.Model != "" {
		result, err = sjson.SetBytes(result, "model", r.Model)
		if err != nil {
			return nil, err
		}
	}

	choices, err := json.Marshal(r.Choices)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal choices: %w", err)
	}
	result, err = sjson.SetRawBytes(result, "choices", choices)
	if err != nil {
		return nil, err
	}

	usage, err := json.Marshal(r.Usage)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal usage: %w", err)
	}
	result, err = sjson.SetRawBytes(result, "usage", usage)
	if err != nil {
		return nil, err
	}

	return setTimestamp(result, r.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Response
func (r *Response) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	if err := checkEventType(data, "response"); err != nil {
		return err
	}

	if err := parseRunID(data, &r.RunID); err != nil {
		return err
	}

	r.ID = gjson.GetBytes(data, "id").String()
	r.Model = gjson.GetBytes(data, "model").String()

	choices := gjson.GetBytes(data, "choices")
	if !choices.Exists() {
		return fmt.Errorf("missing required field 'choices'")
	}
	if err := json.Unmarshal([]byte(choices.Raw), &r.Choices); err != nil {
		return fmt.Errorf("invalid choices: %w", err)
	}

	if usage := gjson.GetBytes(data, "usage"); usage.Exists() {
		if err := json.Unmarshal([]byte(usage.Raw), &r.Usage); err != nil {
			return fmt.Errorf("invalid usage: %w", err)
		}
	}

	return parseTimestamp(data, &r.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for Error
func (e Error) MarshalJSON() ([]byte, error) {
	result := errorJSON

	var err error
	result, err = sjson.SetBytes(result, "run_id", e.RunID.String())
	if err != nil {
		return nil, err
	}

	if e.Err != nil {
		result, err = sjson.SetBytes(result, "error", e.Err.Error())
		if err != nil {
			return nil, err
		}
	}

	return setTimestamp(result, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Error
func (e *Error) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	if err := checkEventType(data, "error"); err != nil {
		return err
	}

	if err := parseRunID(data, &e.RunID); err != nil {
		return err
	}

	if msg := gjson.GetBytes(data, "error"); msg.Exists() {
		e.Err = errors.New(msg.String())
	}

	return parseTimestamp(data, &e.Timestamp)
}

func checkEventType(data []byte, want string) error {
	tpe := gjson.GetBytes(data, "type")
	if !tpe.Exists() || tpe.String() != want {
		return fmt.Errorf("missing or invalid type, expected %q", want)
	}
	return nil
}

func parseRunID(data []byte, dst *uuid.UUID) error {
	runID := gjson.GetBytes(data, "run_id")
	if !runID.Exists() {
		return fmt.Errorf("missing required field 'run_id'")
	}
	if err := dst.UnmarshalText([]byte(runID.String())); err != nil {
		return fmt.Errorf("invalid run_id: %w", err)
	}
	return nil
}

func setTimestamp(result []byte, ts strfmt.DateTime) ([]byte, error) {
	if ts.IsZero() {
		return result, nil
	}
	return sjson.SetBytes(result, "timestamp", ts.String())
}

func parseTimestamp(data []byte, dst *strfmt.DateTime) error {
	if ts := gjson.GetBytes(data, "timestamp"); ts.Exists() {
		if err := dst.UnmarshalText([]byte(ts.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	return nil
}
