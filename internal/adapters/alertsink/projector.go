package alertsink

import (
	"encoding/json"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// Projector reshapes an Event with a JMESPath expression before it is
// published. A nil Projector passes the event through unchanged.
type Projector struct {
	expr   string
	search func(data any) (any, error)
}

// NewProjector compiles expr. An empty expression returns a nil Projector.
func NewProjector(expr string) (*Projector, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil //nolint:nilnil // no projection configured
	}
	compiled, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile projection %q: %w", expr, err)
	}
	return &Projector{expr: expr, search: compiled.Search}, nil
}

// Encode renders ev as JSON, applying the projection when one is set.
func (p *Projector) Encode(ev Event) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode alert event: %w", err)
	}
	if p == nil {
		return raw, nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode alert event: %w", err)
	}
	shaped, err := p.search(doc)
	if err != nil {
		return nil, fmt.Errorf("apply projection %q: %w", p.expr, err)
	}
	out, err := json.Marshal(shaped)
	if err != nil {
		return nil, fmt.Errorf("encode projected event: %w", err)
	}
	return out, nil
}
