package plan

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Lines renders a plan as one canonical JSON line per decision, warnings
// last, so two plans can be compared line by line.
func Lines(p *Plan) ([]string, error) {
	lines := make([]string, 0, len(p.Actions)+len(p.Warnings)+1)
	if p.Fatal != nil {
		data, err := encodeCanonical(orderedMap{{"fatal", buildOrderedFatal(p.Fatal)}})
		if err != nil {
			return nil, err
		}
		lines = append(lines, string(data))
	}
	for _, a := range p.Actions {
		data, err := CanonicalAction(a)
		if err != nil {
			return nil, err
		}
		lines = append(lines, string(data))
	}
	for i := range p.Warnings {
		data, err := encodeCanonical(buildOrderedWarning(&p.Warnings[i]))
		if err != nil {
			return nil, err
		}
		lines = append(lines, string(data))
	}
	return lines, nil
}

// Diff returns a unified diff between two plans. An empty string means the
// plans carry the same decisions.
func Diff(from, to *Plan, fromName, toName string) (string, error) {
	a, err := Lines(from)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", fromName, err)
	}
	b, err := Lines(to)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", toName, err)
	}

	diff := difflib.UnifiedDiff{
		A:        withNewlines(a),
		B:        withNewlines(b),
		FromFile: fromName,
		ToFile:   toName,
		Context:  2,
	}
	return difflib.GetUnifiedDiffString(diff)
}

func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimSuffix(l, "\n") + "\n"
	}
	return out
}
