package plan

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON produces a deterministic JSON encoding of the decisions in a
// plan: keys in lexicographic order, no insignificant whitespace, no HTML
// escaping. Run identity, assigned internal ids and execution outcomes are
// left out so a dry-run and the apply that follows it encode identically.
func CanonicalJSON(p *Plan) ([]byte, error) {
	return encodeCanonical(buildOrderedPlan(p))
}

// ComputeRev computes the sha256 hash of canonical JSON bytes.
// Returns "sha256:<hex>" format.
func ComputeRev(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// Rev returns the revision of a plan's decisions.
func Rev(p *Plan) (string, error) {
	data, err := CanonicalJSON(p)
	if err != nil {
		return "", err
	}
	return ComputeRev(data), nil
}

// CanonicalAction encodes a single action the same way CanonicalJSON does.
func CanonicalAction(a Action) ([]byte, error) {
	return encodeCanonical(buildOrderedAction(&a))
}

func encodeCanonical(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode plan: %w", err)
	}

	// Remove trailing newline added by Encode
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// orderedMap is a slice of key-value pairs that marshals as a JSON object
// with keys in the order they appear in the slice.
type orderedMap []keyValue

type keyValue struct {
	Key   string
	Value interface{}
}

func (om orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, kv := range om {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyJSON, err := marshalNoEscape(kv.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')

		valJSON, err := marshalNoEscape(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// buildOrderedPlan orders top-level keys: actions, fatal, warnings.
func buildOrderedPlan(p *Plan) orderedMap {
	actions := make([]orderedMap, 0, len(p.Actions))
	for i := range p.Actions {
		actions = append(actions, buildOrderedAction(&p.Actions[i]))
	}

	warnings := make([]orderedMap, 0, len(p.Warnings))
	for i := range p.Warnings {
		warnings = append(warnings, buildOrderedWarning(&p.Warnings[i]))
	}

	result := make(orderedMap, 0, 3)
	result = append(result, keyValue{"actions", actions})
	if p.Fatal != nil {
		result = append(result, keyValue{"fatal", buildOrderedFatal(p.Fatal)})
	}
	result = append(result, keyValue{"warnings", warnings})
	return result
}

func buildOrderedAction(a *Action) orderedMap {
	result := make(orderedMap, 0, 7)

	// Fields in lexicographic order
	if len(a.Changes) > 0 {
		changes := make([]orderedMap, 0, len(a.Changes))
		for _, c := range a.Changes {
			change := orderedMap{{"field", c.Field}, {"new", c.New}}
			if c.Old != "" {
				change = append(change, keyValue{"old", c.Old})
			}
			changes = append(changes, change)
		}
		result = append(result, keyValue{"changes", changes})
	}
	result = append(result, keyValue{"entity", a.Entity})
	result = append(result, keyValue{"key", a.Key})
	result = append(result, keyValue{"kind", a.Kind})
	if a.Level != nil {
		result = append(result, keyValue{"level", *a.Level})
	}
	if a.Name != "" {
		result = append(result, keyValue{"name", a.Name})
	}
	if a.Reason != "" {
		result = append(result, keyValue{"reason", a.Reason})
	}

	return result
}

func buildOrderedWarning(w *Warning) orderedMap {
	result := make(orderedMap, 0, 4)
	result = append(result, keyValue{"code", w.Code})
	result = append(result, keyValue{"entity", w.Entity})
	if w.Key != "" {
		result = append(result, keyValue{"key", w.Key})
	}
	result = append(result, keyValue{"message", w.Message})
	return result
}

func buildOrderedFatal(f *Fatal) orderedMap {
	ids := f.ExternalIDs
	if ids == nil {
		ids = []string{}
	}
	return orderedMap{
		{"external_ids", ids},
		{"kind", f.Kind},
		{"message", f.Message},
	}
}
