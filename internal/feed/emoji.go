package feed

import (
	"unicode"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// emojiTable covers emoji pictographs plus the joiners, selectors and
// modifiers that compose them into sequences.
var emojiTable = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00a9, Hi: 0x00a9, Stride: 1},
		{Lo: 0x00ae, Hi: 0x00ae, Stride: 1},
		{Lo: 0x200d, Hi: 0x200d, Stride: 1},
		{Lo: 0x203c, Hi: 0x203c, Stride: 1},
		{Lo: 0x2049, Hi: 0x2049, Stride: 1},
		{Lo: 0x20e3, Hi: 0x20e3, Stride: 1},
		{Lo: 0x2122, Hi: 0x2122, Stride: 1},
		{Lo: 0x2139, Hi: 0x2139, Stride: 1},
		{Lo: 0x2194, Hi: 0x21aa, Stride: 1},
		{Lo: 0x231a, Hi: 0x23ff, Stride: 1},
		{Lo: 0x24c2, Hi: 0x24c2, Stride: 1},
		{Lo: 0x25aa, Hi: 0x25fe, Stride: 1},
		{Lo: 0x2600, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		{Lo: 0x2b05, Hi: 0x2b55, Stride: 1},
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303d, Hi: 0x303d, Stride: 1},
		{Lo: 0x3297, Hi: 0x3299, Stride: 2},
		{Lo: 0xfe0f, Hi: 0xfe0f, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1faff, Stride: 1},
		{Lo: 0xe0020, Hi: 0xe007f, Stride: 1},
	},
	LatinOffset: 2,
}

// keycap bases are digits, '#' and '*' followed by U+FE0F U+20E3.
func isKeycapBase(r rune) bool {
	return r == '#' || r == '*' || (r >= '0' && r <= '9')
}

// IsEmoji reports whether s is made only of emoji.
func IsEmoji(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError {
			return false
		}
		if isKeycapBase(r) {
			rest := s[i+size:]
			if next, n := utf8.DecodeRuneInString(rest); next == 0xfe0f {
				if keycap, _ := utf8.DecodeRuneInString(rest[n:]); keycap == 0x20e3 {
					i += size
					continue
				}
			}
			return false
		}
		if !unicode.Is(emojiTable, r) {
			return false
		}
		i += size
	}
	return true
}

// ErrNotEmoji is the validation error for content with non emoji characters.
var ErrNotEmoji = validation.NewError("validation_is_emoji", "Only emojis are allowed")

// EmojiOnly is an ozzo rule accepting strings made only of emoji. Empty
// values are left to Required.
var EmojiOnly = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" || IsEmoji(s) {
		return nil
	}
	return ErrNotEmoji
})
