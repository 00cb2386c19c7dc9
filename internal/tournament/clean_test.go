package tournament

import "testing"

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "strips think block",
			input: "<think>internal notes</think>Paper A: great fit",
			want:  "Paper A: great fit",
		},
		{
			name:  "case insensitive markers",
			input: "<THINK>notes</Think>\nPaper B",
			want:  "Paper B",
		},
		{
			name:  "multi-line think block",
			input: "<think>\nline one\n\nline two\n</think>\n\n- Paper C: reason",
			want:  "- Paper C: reason",
		},
		{
			name:  "several think blocks",
			input: "<think>a</think>- X\n<think>b</think>- Y",
			want:  "- X\n- Y",
		},
		{
			name:  "collapses blank runs",
			input: "- A\n\n\n\n- B\n \n\t\n- C",
			want:  "- A\n\n- B\n\n- C",
		},
		{
			name:  "keeps single blank line",
			input: "- A\n\n- B",
			want:  "- A\n\n- B",
		},
		{
			name:  "unterminated think block is left alone",
			input: "<think>never closed\n- A",
			want:  "<think>never closed\n- A",
		},
		{
			name:  "empty",
			input: "   \n\n ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanResponse(tt.input); got != tt.want {
				t.Errorf("CleanResponse(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCollapseBlankLines_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"a\n\n\nb",
		"a\n \n \n \nb",
		"a\n\n\n \n\t\n\n\nb\n\n\n\nc",
		"\n\n\n\nleading and trailing\n\n\n\n",
		"no blank lines at all",
		"a\r\n\r\n\r\nb",
	}

	for _, in := range inputs {
		once := CollapseBlankLines(in)
		twice := CollapseBlankLines(once)
		if once != twice {
			t.Errorf("CollapseBlankLines not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}
