package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "already_canonical", input: "abc-123", want: "abc-123"},
		{name: "whitespace_and_case", input: "  ABC-123 ", want: "abc-123"},
		{name: "mixed_separators", input: "AB:CD_EF  12", want: "ab-cd-ef-12"},
		{name: "separator_runs", input: "--ab--__cd..", want: "ab-cd"},
		{name: "fullwidth", input: "ＡＢＣ－１２３", want: "abc-123"},
		{name: "tabs_newlines", input: "\tabc\n123\r\n", want: "abc-123"},
		{name: "empty", input: "", wantErr: true},
		{name: "only_whitespace", input: "   \t ", wantErr: true},
		{name: "only_separators", input: " - _ : ", wantErr: true},
		{name: "control_char", input: "abc\x00def", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFingerprint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestHashFingerprintStable(t *testing.T) {
	a, err := HashFingerprint("  ABC-123 ")
	require.NoError(t, err)
	b, err := HashFingerprint("abc-123")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	again, err := HashFingerprint("  ABC-123 ")
	require.NoError(t, err)
	assert.Equal(t, a, again)

	other, err := HashFingerprint("abc-124")
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	assert.Len(t, a.String(), FingerprintHashSize*2)
}

func TestHashFingerprintRejectsEmpty(t *testing.T) {
	_, err := HashFingerprint(" ")
	assert.ErrorIs(t, err, ErrInvalidFingerprint)
}

func TestCanonicalizeErrorHidesInput(t *testing.T) {
	_, err := Canonicalize("secret\x01machine")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}
