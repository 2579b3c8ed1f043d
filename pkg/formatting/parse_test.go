package formatting_test

import (
	"errors"
	"testing"

	"github.com/JaimeStill/vigil/pkg/formatting"
)

type verdict struct {
	Category   string `json:"category"`
	Confidence int    `json:"confidence"`
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    verdict
		wantErr bool
	}{
		{
			name:  "direct JSON",
			input: `{"category":"Gaming","confidence":82}`,
			want:  verdict{"Gaming", 82},
		},
		{
			name:  "padded JSON",
			input: "  \n{\"category\":\"News\",\"confidence\":60}\n ",
			want:  verdict{"News", 60},
		},
		{
			name:  "fenced with language tag",
			input: "```json\n{\"category\":\"Homework\",\"confidence\":91}\n```",
			want:  verdict{"Homework", 91},
		},
		{
			name:  "fenced without language tag",
			input: "```\n{\"category\":\"Social Media\",\"confidence\":70}\n```",
			want:  verdict{"Social Media", 70},
		},
		{
			name:  "fenced with surrounding prose",
			input: "Here is my answer:\n```json\n{\"category\":\"Shopping\",\"confidence\":55}\n```\nThanks.",
			want:  verdict{"Shopping", 55},
		},
		{
			name:  "outermost object in prose",
			input: `The screenshot shows {"category":"Creative","confidence":77} as the result.`,
			want:  verdict{"Creative", 77},
		},
		{
			name:    "no JSON",
			input:   "I cannot classify this image.",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "broken fence and braces",
			input:   "```json\n{broken\n```",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatting.Parse[verdict](tt.input)
			if tt.wantErr {
				if !errors.Is(err, formatting.ErrParseFailed) {
					t.Fatalf("error = %v, want ErrParseFailed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseSlice(t *testing.T) {
	got, err := formatting.Parse[[]string](`["Violence","Bullying"]`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(got) != 2 || got[1] != "Bullying" {
		t.Errorf("got = %v", got)
	}
}
