package ai

import (
	"context"
	"errors"
	"testing"
)

func TestChatRejectsEmptyPrompt(t *testing.T) {
	provider := NewAnthropic("test-key", "")

	for _, prompt := range []string{"", "   ", "\n\t"} {
		if _, err := provider.Chat(context.Background(), Request{Prompt: prompt}); !errors.Is(err, ErrEmptyPrompt) {
			t.Errorf("Chat(%q) error = %v, want ErrEmptyPrompt", prompt, err)
		}
	}
}
