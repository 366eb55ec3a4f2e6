package invoke

import (
	"encoding/json"
	"time"

	"github.com/vikashloomba/mcp-dashboard-go/pkg/mcpmgr"
)

// UnknownError is reported when a failure carries no message of its own.
const UnknownError = "Unknown error"

// Envelope is the uniform result of every invocation. Exactly one of Data and
// Error is meaningful, selected by Success.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	// ExecutionTime is the wall-clock duration of the operation in
	// milliseconds, including any connection setup it triggered.
	ExecutionTime *float64 `json:"execution_time,omitempty"`

	// Kind classifies a failure. It is not serialized.
	Kind mcpmgr.ErrorKind `json:"-"`

	err error
}

// Succeed builds a successful envelope.
func Succeed(data any, elapsed time.Duration) Envelope {
	return Envelope{Success: true, Data: data, ExecutionTime: millis(elapsed)}
}

// Fail builds a failed envelope whose Error is err's message verbatim.
func Fail(err error, elapsed time.Duration) Envelope {
	msg := UnknownError
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Envelope{
		Error:         msg,
		ExecutionTime: millis(elapsed),
		Kind:          classify(err),
		err:           err,
	}
}

// Err returns the failure behind a failed envelope, or nil.
func (e Envelope) Err() error {
	if e.Success {
		return nil
	}
	return e.err
}

type successWire struct {
	Success       bool     `json:"success"`
	Data          any      `json:"data"`
	ExecutionTime *float64 `json:"execution_time,omitempty"`
}

type failureWire struct {
	Success       bool     `json:"success"`
	Error         string   `json:"error"`
	ExecutionTime *float64 `json:"execution_time,omitempty"`
}

// MarshalJSON emits data for successes and error for failures, never both.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Success {
		return json.Marshal(successWire{Success: true, Data: e.Data, ExecutionTime: e.ExecutionTime})
	}
	msg := e.Error
	if msg == "" {
		msg = UnknownError
	}
	return json.Marshal(failureWire{Error: msg, ExecutionTime: e.ExecutionTime})
}

func millis(d time.Duration) *float64 {
	if d < 0 {
		d = 0
	}
	ms := float64(d) / float64(time.Millisecond)
	return &ms
}
