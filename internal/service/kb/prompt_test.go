package kb

import (
	"strings"
	"testing"

	"github.com/leomaro7/kb-chat/internal/model/chat"
)

func transcript(pairs ...string) []chat.Message {
	messages := make([]chat.Message, 0, len(pairs))
	for i, content := range pairs {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		messages = append(messages, chat.Message{Role: role, Content: content})
	}
	return messages
}

func TestRecentExchangesLimitsToNewest(t *testing.T) {
	messages := transcript("q1", "a1", "q2", "a2", "q3", "a3", "q4", "a4")

	exchanges := recentExchanges(messages, 3)

	if len(exchanges) != 3 {
		t.Fatalf("expected 3 exchanges, got %d", len(exchanges))
	}
	if exchanges[0].Question != "q2" || exchanges[2].Answer != "a4" {
		t.Fatalf("unexpected window: %+v", exchanges)
	}
}

func TestRecentExchangesIgnoresDanglingTurn(t *testing.T) {
	messages := transcript("q1", "a1")
	messages = append(messages, chat.Message{Role: chat.RoleUser, Content: "dangling"})

	exchanges := recentExchanges(messages, 3)

	if len(exchanges) != 1 {
		t.Fatalf("expected 1 exchange, got %d", len(exchanges))
	}
}

func TestBuildPromptWithoutHistory(t *testing.T) {
	prompt := buildPrompt(nil, "what is s3?")

	if prompt != "what is s3?" {
		t.Fatalf("bare question expected, got %q", prompt)
	}
}

func TestBuildPromptIncludesHistoryAndQuestion(t *testing.T) {
	exchanges := recentExchanges(transcript("how do I install the CLI?", "Run the installer."), 3)

	prompt := buildPrompt(exchanges, "and on linux?")

	if !strings.Contains(prompt, "Conversation so far:") {
		t.Fatalf("missing history header: %q", prompt)
	}
	if !strings.Contains(prompt, "User: how do I install the CLI?") {
		t.Fatalf("missing user turn: %q", prompt)
	}
	if !strings.Contains(prompt, "Assistant: Run the installer.") {
		t.Fatalf("missing assistant turn: %q", prompt)
	}
	if !strings.HasSuffix(prompt, "and on linux?") {
		t.Fatalf("question should close the prompt: %q", prompt)
	}
}
