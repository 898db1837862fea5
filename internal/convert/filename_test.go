package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSecureFilename verifies the sanitizing rules on the kinds of names
// browsers actually send.
func TestSecureFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain name unchanged", input: "photo.jpg", want: "photo.jpg"},
		{name: "spaces become underscores", input: "My cool photo.JPG", want: "My_cool_photo.JPG"},
		{name: "path traversal flattened", input: "../../../etc/passwd", want: "etc_passwd"},
		{name: "unicode decomposed to ascii", input: "i contain cool ümläuts.jpeg", want: "i_contain_cool_umlauts.jpeg"},
		{name: "backslash dropped", input: `C:\Users\me\pic.jpg`, want: "CUsersmepic.jpg"},
		{name: "leading dots and underscores trimmed", input: "__.hidden.jpg", want: "hidden.jpg"},
		{name: "shell metacharacters dropped", input: "a;rm -rf $(x).jpg", want: "arm_-rf_x.jpg"},
		{name: "ascii separators split words", input: "a\x1cb\x1fc.jpg", want: "a_b_c.jpg"},
		{name: "tabs and newlines split words", input: "a\tb\nc.jpg", want: "a_b_c.jpg"},
		{name: "nothing survives", input: "日本語", want: ""},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SecureFilename(tt.input))
		})
	}
}

// TestIsAllowed verifies that only .jpg and .jpeg pass, case-insensitively.
func TestIsAllowed(t *testing.T) {
	assert.True(t, IsAllowed("a.jpg"))
	assert.True(t, IsAllowed("a.JPEG"))
	assert.True(t, IsAllowed("a.b.Jpg"))

	assert.False(t, IsAllowed("a.png"))
	assert.False(t, IsAllowed("a.webp"))
	assert.False(t, IsAllowed("jpg"), "a bare extension-like name has no suffix")
	assert.False(t, IsAllowed(""))
}

// TestWebPName verifies suffix replacement keeps inner dots.
func TestWebPName(t *testing.T) {
	assert.Equal(t, "holiday.webp", WebPName("holiday.jpeg"))
	assert.Equal(t, "a.b.webp", WebPName("a.b.jpg"))
}

// TestDisplayName verifies the placeholder for empty sanitized names.
func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Unknown", displayName(""))
	assert.Equal(t, "x.jpg", displayName("x.jpg"))
}
