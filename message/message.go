// Package message defines the JSON documents carried inside protocol frames.
//
// A control request is a Call: a method name plus an ordered list of Args.
// A control response is a Response: a free-form JSON object whose "code"
// field signals backend success (0) or a backend-defined error (nonzero).
// The log channel pushes LogEntry objects with no request side at all.
package message

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Arg is one call parameter. At least one of Index/Name should be set per
// the wire contract; the UI layer typically sets both.
//
// The backend expects scalar-valued argument slots: a structured Value
// (map, slice, struct) must be serialized to a JSON *string* before the
// outer document is built. Normalize performs that double encoding.
type Arg struct {
	Value any     `json:"value"`
	Index *int    `json:"index,omitempty"`
	Name  *string `json:"name,omitempty"`
}

// Positional builds an index-only Arg.
func Positional(index int, value any) Arg {
	return Arg{Value: value, Index: &index}
}

// Named builds a name-only Arg.
func Named(name string, value any) Arg {
	return Arg{Value: value, Name: &name}
}

// NamedAt builds an Arg carrying both a positional slot and a name, the
// form the VulSim backend documents for every method.
func NamedAt(index int, name string, value any) Arg {
	return Arg{Value: value, Index: &index, Name: &name}
}

// Normalize returns a copy of the Arg with any structured value flattened
// to a compact JSON string. Scalars (and nil) pass through untouched;
// pointers are dereferenced first, so a pointer to a scalar stays a scalar.
// Nested structures are never sent as nested JSON, only as strings the
// receiver re-parses. This is a wire-compatibility requirement, not a
// simplification to be removed.
func (a Arg) Normalize() (Arg, error) {
	if a.Value == nil {
		return a, nil
	}
	v := reflect.ValueOf(a.Value)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			a.Value = nil
			return a, nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		b, err := json.Marshal(v.Interface())
		if err != nil {
			return Arg{}, fmt.Errorf("message: cannot serialize arg value: %w", err)
		}
		a.Value = string(b)
	default:
		a.Value = v.Interface()
	}
	return a, nil
}

// Text returns the string form of the value, for handlers that expect a
// scalar slot.
func (a Arg) Text() string {
	switch v := a.Value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Lookup finds an argument by name, falling back to positional index when
// no name matches. Servers use it because clients may send either form.
func Lookup(args []Arg, name string, index int) (Arg, bool) {
	for _, a := range args {
		if a.Name != nil && *a.Name == name {
			return a, true
		}
	}
	for _, a := range args {
		if a.Index != nil && *a.Index == index {
			return a, true
		}
	}
	return Arg{}, false
}

// Call is one logical RPC invocation: {"name": ..., "args": [...]}.
type Call struct {
	Name string `json:"name"`
	Args []Arg  `json:"args"`
}

// NewCall builds a Call with every Arg normalized. A nil args slice becomes
// an empty list so the wire document always carries "args".
func NewCall(name string, args []Arg) (*Call, error) {
	normalized := make([]Arg, 0, len(args))
	for _, a := range args {
		n, err := a.Normalize()
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, n)
	}
	return &Call{Name: name, Args: normalized}, nil
}

// Marshal serializes the Call to compact JSON. encoding/json emits no
// extraneous whitespace, so the byte count matches the frame header exactly.
func (c *Call) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Transport failure messages synthesized by the control client. The client
// never returns an error to its caller; these are the msg values of the
// code:-1 responses it fabricates instead.
const (
	MsgCannotConnect      = "Cannot connect to server"
	MsgCommunicationError = "Communication error"
	MsgInternalError      = "Unexpected internal error"
)

// Response is the decoded response document. It is deliberately a plain map:
// beyond "code" and "msg" the backend attaches call-specific result keys
// ("results", "list_results", "logs", ...) that are passed through to the
// caller unmodified.
type Response map[string]any

// Code returns the backend result code, or -1 when the field is missing or
// not numeric. 0 means success; any other value is a backend-defined error
// the caller interprets.
func (r Response) Code() int {
	switch v := r["code"].(type) {
	case float64:
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return -1
		}
		return int(n)
	case int:
		return v
	default:
		return -1
	}
}

// Msg returns the backend message string, if any.
func (r Response) Msg() string {
	s, _ := r["msg"].(string)
	return s
}

// Errorf builds a client-synthesized failure response.
func Errorf(code int, format string, a ...any) Response {
	return Response{"code": code, "msg": fmt.Sprintf(format, a...)}
}

// IsTransportFailure reports whether a response was fabricated by the
// control client for a transport-level fault, as opposed to a backend
// response that happens to carry a nonzero code. Supervisors such as the
// connection monitor use this to tell "backend said no" from "no backend".
func (r Response) IsTransportFailure() bool {
	if r.Code() != -1 {
		return false
	}
	msg := r.Msg()
	return msg == MsgCannotConnect ||
		msg == MsgInternalError ||
		strings.HasPrefix(msg, MsgCommunicationError)
}

// ParseResponse decodes a response payload.
func ParseResponse(b []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("message: malformed response payload: %w", err)
	}
	return r, nil
}

// LogEntry is one pushed log event. At minimum "level", "category" and
// "message" are present; extra keys are preserved.
type LogEntry map[string]any

func (e LogEntry) Level() string {
	s, _ := e["level"].(string)
	return s
}

func (e LogEntry) Category() string {
	s, _ := e["category"].(string)
	return s
}

func (e LogEntry) Message() string {
	s, _ := e["message"].(string)
	return s
}

// NewLogEntry builds the minimal well-formed entry. Servers publishing logs
// use it; receivers get whatever the backend sent.
func NewLogEntry(level, category, msg string) LogEntry {
	return LogEntry{"level": level, "category": category, "message": msg}
}

// ParseLogEntry decodes a log payload.
func ParseLogEntry(b []byte) (LogEntry, error) {
	var e LogEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("message: malformed log payload: %w", err)
	}
	return e, nil
}
