package discount

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/diegoholiveira/jsonlogic/v3"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// ErrInvalidRule is returned when a predicate rule is not valid JSON.
var ErrInvalidRule = errors.New("discount: invalid predicate rule")

// Predicates evaluates Custom discount predicates written as JSON Logic rules.
// Rules are evaluated against the facts of the sheet being priced, e.g.
//
//	{">=": [{"var": "quantity"}, 3]}
type Predicates struct {
	mu    sync.RWMutex
	rules map[string]json.RawMessage
}

// NewPredicates returns an empty rule set.
func NewPredicates() *Predicates {
	return &Predicates{rules: make(map[string]json.RawMessage)}
}

// Register stores rule under id, replacing any previous rule.
func (p *Predicates) Register(id string, rule []byte) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	if !json.Valid(rule) {
		return fmt.Errorf("%w: %s", ErrInvalidRule, id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rules == nil {
		p.rules = make(map[string]json.RawMessage)
	}
	p.rules[id] = append(json.RawMessage(nil), rule...)
	return nil
}

// Evaluate applies the rule registered as id to facts and reports whether the
// result is truthy. An unknown id is an incomplete configuration.
func (p *Predicates) Evaluate(ctx context.Context, id string, facts map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.RLock()
	rule, ok := p.rules[id]
	p.mu.RUnlock()
	if !ok {
		return false, pricing.NewError(pricing.CodeIncompleteConfiguration, id, errors.New("predicate not registered"))
	}

	data, err := json.Marshal(facts)
	if err != nil {
		return false, fmt.Errorf("discount: encode facts: %w", err)
	}
	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(rule), bytes.NewReader(data), &out); err != nil {
		return false, fmt.Errorf("discount: evaluate %s: %w", id, err)
	}
	var result any
	if s := strings.TrimSpace(out.String()); s != "" {
		if err := json.Unmarshal([]byte(s), &result); err != nil {
			return false, fmt.Errorf("discount: decode %s result: %w", id, err)
		}
	}
	return truthy(result), nil
}

// truthy follows JSON Logic truthiness.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	default:
		return true
	}
}
