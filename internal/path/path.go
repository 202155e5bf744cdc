// Package path resolves dotted field paths ("data.amount", "status",
// "metadata.source") against the logical case envelope
// {current_phase, previous_phase, status, data, metadata}. Reads never fail;
// writes fail only when a path segment walks through a non-object value.
package path

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrBadPath is returned when a write path walks through a JSON value that
// is not an object (e.g. writing "data.amount.cents" when data.amount is a
// number).
var ErrBadPath = errors.New("path: write target is not an object")

// Get resolves dotted path against envelope (a JSON object encoded as
// bytes) and returns the decoded value, or nil if any segment is missing.
// Get never returns an error: an absent field resolves to JSON null so the
// Condition Evaluator stays total.
func Get(envelope []byte, dotted string) interface{} {
	result := gjson.GetBytes(envelope, dotted)
	if !result.Exists() {
		return nil
	}
	return result.Value()
}

// GetRaw resolves dotted against envelope like Get, but returns the raw
// undecoded JSON bytes (or "null" if absent) — used where a caller wants to
// re-embed the value, such as the webhook default payload's data/metadata.
func GetRaw(envelope []byte, dotted string) []byte {
	result := gjson.GetBytes(envelope, dotted)
	if !result.Exists() {
		return []byte("null")
	}
	return []byte(result.Raw)
}

// Set writes value at dotted within envelope, creating intermediate objects
// as needed, and returns the updated envelope. It fails with ErrBadPath if
// an intermediate segment is present but not a JSON object.
func Set(envelope []byte, dotted string, value interface{}) ([]byte, error) {
	segs := splitDotted(dotted)
	if err := checkIntermediateObjects(envelope, segs); err != nil {
		return nil, err
	}
	out, err := sjson.SetBytes(envelope, dotted, value)
	if err != nil {
		return nil, fmt.Errorf("path: set %q: %w", dotted, err)
	}
	return out, nil
}

func splitDotted(dotted string) []string {
	var segs []string
	cur := ""
	for _, r := range dotted {
		if r == '.' {
			segs = append(segs, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	segs = append(segs, cur)
	return segs
}

// checkIntermediateObjects walks every prefix of segs shorter than the full
// path and rejects the write if that prefix resolves to a present,
// non-object value (an explicit JSON null included) — writing through it
// would silently clobber that value rather than erroring, which callers
// disallow. Only absent prefixes are created.
func checkIntermediateObjects(envelope []byte, segs []string) error {
	if len(segs) <= 1 {
		return nil
	}
	prefix := ""
	for i := 0; i < len(segs)-1; i++ {
		if prefix == "" {
			prefix = segs[i]
		} else {
			prefix = prefix + "." + segs[i]
		}
		result := gjson.GetBytes(envelope, prefix)
		if !result.Exists() {
			continue
		}
		if result.IsObject() {
			continue
		}
		return fmt.Errorf("%w: segment %q in %q", ErrBadPath, prefix, segs)
	}
	return nil
}

// Envelope builds the logical object the resolver operates on out of the
// separate case columns, so a dotted path like "data.amount" or
// "current_phase" resolves uniformly regardless of which column it lives in.
func Envelope(currentPhase string, previousPhase *string, status string, data, metadata json.RawMessage) ([]byte, error) {
	env := map[string]interface{}{
		"current_phase": currentPhase,
		"status":        status,
	}
	if previousPhase != nil {
		env["previous_phase"] = *previousPhase
	} else {
		env["previous_phase"] = nil
	}
	var dataVal interface{} = map[string]interface{}{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &dataVal); err != nil {
			return nil, fmt.Errorf("path: decoding data: %w", err)
		}
	}
	env["data"] = dataVal

	var metaVal interface{} = map[string]interface{}{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &metaVal); err != nil {
			return nil, fmt.Errorf("path: decoding metadata: %w", err)
		}
	}
	env["metadata"] = metaVal

	return json.Marshal(env)
}
