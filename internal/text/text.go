// Package text handles in-game strings that carry formatting codes.
package text

import "strings"

// Formatting codes embedded in chat and player names.
const (
	Outline rune = 11

	Black        rune = 142
	Grey         rune = 143
	White        rune = 144
	Red          rune = 145
	Green        rune = 146
	Yellow       rune = 147
	Topaz        rune = 148
	Celadon      rune = 149
	BabyBlue     rune = 150
	PaleLavender rune = 151
	PaleGold     rune = 152
	LightPink    rune = 153
	PearlAqua    rune = 154
	PaleSilver   rune = 155
)

// String is a raw in-game string. Comparisons use the raw form; String()
// gives the display form.
type String struct {
	Raw string
}

// New wraps a raw string.
func New(raw string) String {
	return String{Raw: raw}
}

// String returns the text with formatting codes removed.
func (s String) String() string {
	return Strip(s.Raw)
}

// Equal compares raw forms.
func (s String) Equal(other String) bool {
	return s.Raw == other.Raw
}

// MarshalText renders the display form, so JSON payloads carry readable text.
func (s String) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Strip removes formatting codes from raw.
func Strip(raw string) string {
	return strings.Map(func(r rune) rune {
		if IsFormatCode(r) {
			return -1
		}
		return r
	}, raw)
}

// IsFormatCode reports whether r is the outline code or a colour code.
func IsFormatCode(r rune) bool {
	return r == Outline || IsColourCode(r)
}

// IsColourCode reports whether r selects a text colour.
func IsColourCode(r rune) bool {
	return r >= Black && r <= PaleSilver
}
