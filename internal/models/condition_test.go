package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCondition(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Condition
	}{
		{"missing", ``, EmptyCondition{}},
		{"null", `null`, EmptyCondition{}},
		{"empty object", `{}`, EmptyCondition{}},
		{"eq", `{"op":"eq","key":"a","value":"x"}`, EqCondition{Key: "a", Value: "x"}},
		{"and", `{"op":"and","args":[{"op":"eq","key":"a","value":1}]}`,
			AndCondition{Args: []Condition{EqCondition{Key: "a", Value: float64(1)}}}},
		{"unknown op", `{"op":"or","args":[]}`, UnknownCondition{Op: "or", Raw: json.RawMessage(`{"op":"or","args":[]}`)}},
		{"keys without op", `{"key":"a","value":"x"}`, UnknownCondition{Raw: json.RawMessage(`{"key":"a","value":"x"}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCondition(json.RawMessage(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DecodeCondition(json.RawMessage(`{"op":`))
	assert.Error(t, err)
}

func TestTriggerRoundTripKeepsUnknownConditions(t *testing.T) {
	for _, cond := range []string{
		`{"key":"a","value":"x"}`,
		`{"op":"or","args":[{"op":"eq","key":"a","value":"x"}]}`,
		`{"op":"and","args":[{"op":"eq","key":"a","value":"x"},{"key":"b"}]}`,
	} {
		t.Run(cond, func(t *testing.T) {
			var first Trigger
			require.NoError(t, json.Unmarshal([]byte(`{"event_name":"level_up","conditions":`+cond+`}`), &first))

			b, err := json.Marshal(first)
			require.NoError(t, err)
			var second Trigger
			require.NoError(t, json.Unmarshal(b, &second))

			assert.Equal(t, first, second)
			assert.NotEqual(t, EmptyCondition{}, second.Conditions)
		})
	}
}

func TestUnknownConditionWithoutRawStaysUnknown(t *testing.T) {
	b, err := json.Marshal(UnknownCondition{})
	require.NoError(t, err)

	got, err := DecodeCondition(b)
	require.NoError(t, err)
	assert.IsType(t, UnknownCondition{}, got)
}
