package text

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "hello", "hello"},
		{"colour prefix", string(Red) + "alert", "alert"},
		{"outline and colours", string(Outline) + string(Black) + "a" + string(PaleSilver) + "b", "ab"},
		{"just outside colour range", string(rune(141)) + string(rune(156)), string(rune(141)) + string(rune(156))},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Strip(tt.raw))
			assert.Equal(t, tt.want, New(tt.raw).String())
		})
	}
}

func TestEqualityUsesRawForm(t *testing.T) {
	a := New(string(Red) + "hi")
	b := New(string(Green) + "hi")

	assert.Equal(t, a.String(), b.String())
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(New(string(Red)+"hi")))
}

func TestMarshalJSONUsesDisplayForm(t *testing.T) {
	b, err := json.Marshal(struct {
		Message String `json:"message"`
	}{New(string(Yellow) + "hey")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hey"}`, string(b))
}
