package speech

import (
	"testing"
)

func TestSanitize_Markdown(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text untouched",
			input: "what is the weather",
			want:  "what is the weather",
		},
		{
			name:  "bold and italic markers",
			input: "this is **really** _important_ stuff",
			want:  "this is really important stuff",
		},
		{
			name:  "heading marker",
			input: "## Status Report\nAll systems go",
			want:  "Status Report All systems go",
		},
		{
			name:  "link keeps text drops url",
			input: "see [the docs](https://example.com/docs) for details",
			want:  "see the docs for details",
		},
		{
			name:  "image keeps alt text",
			input: "here ![a chart](chart.png) shows growth",
			want:  "here a chart shows growth",
		},
		{
			name:  "inline code markers",
			input: "run `make build` to compile",
			want:  "run make build to compile",
		},
		{
			name:  "code fence lines removed",
			input: "example:\n```go\nfmt.Println(1)\n```\ndone",
			want:  "example: fmt.Println(1) done",
		},
		{
			name:  "blockquote marker",
			input: "> quoted words",
			want:  "quoted words",
		},
		{
			name:  "bullet list markers",
			input: "- first\n- second",
			want:  "first second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_EmojiAndControl(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "emoji stripped",
			input: "great work \U0001F389 team \U0001F600",
			want:  "great work team",
		},
		{
			name:  "misc symbol stripped",
			input: "sunny ☀ outside",
			want:  "sunny outside",
		},
		{
			name:  "control chars become spaces",
			input: "line\x00one\x07two",
			want:  "line one two",
		},
		{
			name:  "tabs and newlines collapse",
			input: "  spread \t across\n\n lines  ",
			want:  "spread across lines",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_NothingSpeakable(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"...",
		"?!",
		"\U0001F600\U0001F389",
		"**__**",
	}

	for _, input := range inputs {
		if got := Sanitize(input); got != "" {
			t.Errorf("Sanitize(%q) = %q, want empty", input, got)
		}
		if Speakable(input) {
			t.Errorf("Speakable(%q) = true, want false", input)
		}
	}
}

func TestSpeakable(t *testing.T) {
	if !Speakable("hello") {
		t.Error("expected plain text to be speakable")
	}
	if !Speakable("**hi**") {
		t.Error("expected formatted text with words to be speakable")
	}
}
