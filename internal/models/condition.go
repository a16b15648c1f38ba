package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Condition is a node of a trigger's condition tree. The set of variants is
// closed: EmptyCondition, EqCondition, AndCondition and UnknownCondition.
type Condition interface {
	condition()
}

// EmptyCondition is always satisfied.
type EmptyCondition struct{}

// EqCondition is satisfied when payload[Key] equals Value.
type EqCondition struct {
	Key   string
	Value any
}

// AndCondition is satisfied when every argument is satisfied.
type AndCondition struct {
	Args []Condition
}

// UnknownCondition carries an operator this SDK does not understand. It never
// matches. Raw holds the object as received and is written back unchanged.
type UnknownCondition struct {
	Op  string
	Raw json.RawMessage
}

func (EmptyCondition) condition()   {}
func (EqCondition) condition()      {}
func (AndCondition) condition()     {}
func (UnknownCondition) condition() {}

type conditionJSON struct {
	Op    string            `json:"op,omitempty"`
	Key   string            `json:"key,omitempty"`
	Value any               `json:"value,omitempty"`
	Args  []json.RawMessage `json:"args,omitempty"`
}

// DecodeCondition parses a server condition object. A missing or empty object
// decodes to EmptyCondition.
func DecodeCondition(data json.RawMessage) (Condition, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return EmptyCondition{}, nil
	}

	var raw conditionJSON
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode condition: %w", err)
	}

	switch raw.Op {
	case "":
		if raw.Key != "" || raw.Value != nil || len(raw.Args) > 0 {
			return UnknownCondition{Raw: append(json.RawMessage(nil), trimmed...)}, nil
		}
		return EmptyCondition{}, nil
	case "eq":
		return EqCondition{Key: raw.Key, Value: raw.Value}, nil
	case "and":
		args := make([]Condition, 0, len(raw.Args))
		for _, a := range raw.Args {
			c, err := DecodeCondition(a)
			if err != nil {
				return nil, err
			}
			args = append(args, c)
		}
		return AndCondition{Args: args}, nil
	default:
		return UnknownCondition{Op: raw.Op, Raw: append(json.RawMessage(nil), trimmed...)}, nil
	}
}

func (EmptyCondition) MarshalJSON() ([]byte, error) {
	return []byte("{}"), nil
}

func (c EqCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Op    string `json:"op"`
		Key   string `json:"key"`
		Value any    `json:"value"`
	}{"eq", c.Key, c.Value})
}

func (c AndCondition) MarshalJSON() ([]byte, error) {
	args := c.Args
	if args == nil {
		args = []Condition{}
	}
	return json.Marshal(struct {
		Op   string      `json:"op"`
		Args []Condition `json:"args"`
	}{"and", args})
}

func (c UnknownCondition) MarshalJSON() ([]byte, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}
	op := c.Op
	if op == "" {
		// an empty op would read back as EmptyCondition
		op = "unknown"
	}
	return json.Marshal(struct {
		Op string `json:"op"`
	}{op})
}
