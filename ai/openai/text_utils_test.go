package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanCompletion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text", in: "  You get 10 days.  ", want: "You get 10 days."},
		{name: "think block", in: "<think>user wants sick days</think>\nYou get 10 days.", want: "You get 10 days."},
		{name: "fenced with info string", in: "```markdown\nYou get 10 days.\n```", want: "You get 10 days."},
		{name: "bare fence", in: "```\nYou get 10 days.\n```", want: "You get 10 days."},
		{name: "inline backticks kept", in: "Use `opsmind ask`.", want: "Use `opsmind ask`."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanCompletion(tt.in))
		})
	}
}
