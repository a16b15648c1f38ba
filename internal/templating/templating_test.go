package templating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	props := map[string]string{"user.name": "Ada", "user.empty": ""}

	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{"no placeholders", "hello", "hello", false},
		{"empty", "", "", false},
		{"value", "hi ${user.name}!", "hi Ada!", false},
		{"value wins over fallback", `hi ${user.name|fallback="you"}`, "hi Ada", false},
		{"fallback for missing", `hi ${user.nick|fallback="you"}`, "hi you", false},
		{"fallback for empty", `hi ${user.empty|fallback="you"}`, "hi you", false},
		{"several", `${user.name} and ${user.x|fallback="Bob"}`, "Ada and Bob", false},
		{"missing without fallback", "hi ${user.nick}", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.text, props)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingProperty)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyJSON(t *testing.T) {
	props := map[string]string{"user.quote": `say "hi"`}

	got, err := ApplyJSON(`{"a":"${user.quote}","b":"${user.none|fallback=\"x\"}"}`, props)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"say \"hi\"","b":"x"}`, got)
	assert.JSONEq(t, `{"a":"say \"hi\"","b":"x"}`, got)
}

func TestSubstitutedValuesAreNotRescanned(t *testing.T) {
	got, err := Apply("${a}", map[string]string{"a": "${b}"})
	require.NoError(t, err)
	assert.Equal(t, "${b}", got)
}

func TestHasPlaceholder(t *testing.T) {
	assert.True(t, HasPlaceholder("x ${y} z"))
	assert.False(t, HasPlaceholder("x $y z"))
}
