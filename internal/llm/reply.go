package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Structured reply failures. All of them mean the model broke the batch output contract.
var (
	ErrMalformedReply  = errors.New("no JSON object in model reply")
	ErrUnexpectedShape = errors.New("model reply JSON has no outputs or translations array of strings")
	ErrLengthMismatch  = errors.New("model reply has the wrong number of items")
)

// LengthMismatchError reports the expected and returned item counts.
type LengthMismatchError struct {
	Expected int
	Actual   int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrLengthMismatch, e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrLengthMismatch) match.
func (e *LengthMismatchError) Is(target error) bool {
	return target == ErrLengthMismatch
}

// BatchReply is a validated batch translation reply.
type BatchReply struct {
	// Outputs is index-aligned with the request texts.
	Outputs []string
	// IDs echoes the ids the model returned, if any. Informational only.
	IDs []int64
	// Key is the JSON key the outputs were read from.
	Key string
}

// batchEnvelope lists the accepted output keys in fallback order.
type batchEnvelope struct {
	IDs          json.RawMessage `json:"ids"`
	Outputs      json.RawMessage `json:"outputs"`
	Translations json.RawMessage `json:"translations"`
}

// ParseBatchReply extracts and validates the JSON payload of a batch translation reply.
// The reply is decoded as a whole first; failing that, the first balanced top-level {...}
// span that decodes is used.
func ParseBatchReply(raw string, expected int) (*BatchReply, error) {
	payload, ok := locateJSON([]byte(raw))
	if !ok {
		return nil, ErrMalformedReply
	}

	var env batchEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}

	reply := &BatchReply{}
	candidates := []struct {
		key string
		raw json.RawMessage
	}{
		{"outputs", env.Outputs},
		{"translations", env.Translations},
	}
	for _, c := range candidates {
		if !isArray(c.raw) {
			continue
		}
		outputs, err := decodeStrings(c.raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrUnexpectedShape, c.key, err)
		}
		reply.Outputs = outputs
		reply.Key = c.key
		break
	}
	if reply.Key == "" {
		return nil, ErrUnexpectedShape
	}
	if len(reply.Outputs) != expected {
		return nil, &LengthMismatchError{Expected: expected, Actual: len(reply.Outputs)}
	}

	if isArray(env.IDs) {
		var ids []int64
		if json.Unmarshal(env.IDs, &ids) == nil {
			reply.IDs = ids
		}
	}
	return reply, nil
}

func locateJSON(raw []byte) ([]byte, bool) {
	trimmed := bytes.TrimSpace(raw)
	if json.Valid(trimmed) {
		return trimmed, true
	}
	// A stray or unbalanced '{' in surrounding prose must not hide an object nested after it,
	// so every candidate that fails resumes the scan one byte past its opening brace.
	for start := 0; start < len(raw); {
		begin, end := nextObjectSpan(raw, start)
		if begin < 0 {
			return nil, false
		}
		if end > 0 {
			if span := raw[begin:end]; json.Valid(span) {
				return span, true
			}
		}
		start = begin + 1
	}
	return nil, false
}

// nextObjectSpan finds the next {...} span at or after from, ignoring braces that appear inside
// JSON strings. begin is -1 when no '{' remains; end is -1 when the object starting at begin
// never closes.
func nextObjectSpan(raw []byte, from int) (begin, end int) {
	begin = bytes.IndexByte(raw[from:], '{')
	if begin < 0 {
		return -1, -1
	}
	begin += from

	depth := 0
	inString, escaped := false, false
	for i := begin; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return begin, i + 1
			}
		}
	}
	return begin, -1
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func decodeStrings(raw json.RawMessage) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, item := range items {
		if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			return nil, fmt.Errorf("item %d is null", i)
		}
		if err := json.Unmarshal(item, &out[i]); err != nil {
			return nil, fmt.Errorf("item %d is not a string", i)
		}
	}
	return out, nil
}
