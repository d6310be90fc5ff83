package openai

import (
	"testing"

	"github.com/captrail/captrail/pkg/provider/llm"
)

// TestConvertMessage_System checks that system role is converted correctly.
func TestConvertMessage_System(t *testing.T) {
	msg := llm.Message{Role: llm.RoleSystem, Content: "You summarize meetings."}
	param, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfSystem == nil {
		t.Fatal("expected OfSystem to be set")
	}
}

// TestConvertMessage_User checks that user role is converted correctly.
func TestConvertMessage_User(t *testing.T) {
	msg := llm.Message{Role: llm.RoleUser, Content: "Summarize this transcript."}
	param, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

// TestConvertMessage_Assistant checks that assistant role is converted.
func TestConvertMessage_Assistant(t *testing.T) {
	msg := llm.Message{Role: llm.RoleAssistant, Content: "Here is the summary."}
	param, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
}

// TestConvertMessage_UnknownRole checks that unknown roles return an error.
func TestConvertMessage_UnknownRole(t *testing.T) {
	msg := llm.Message{Role: "tool", Content: "irrelevant"}
	_, err := convertMessage(msg)
	if err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
}

// TestModelCapabilities_DeepSeekChat checks deepseek-chat limits.
func TestModelCapabilities_DeepSeekChat(t *testing.T) {
	caps := modelCapabilities("deepseek-chat")
	if caps.ContextWindow != 65_536 {
		t.Errorf("deepseek-chat: expected context window 65536, got %d", caps.ContextWindow)
	}
	if caps.MaxOutputTokens != 8_192 {
		t.Errorf("deepseek-chat: expected max output 8192, got %d", caps.MaxOutputTokens)
	}
}

// TestModelCapabilities_DeepSeekReasoner checks deepseek-reasoner limits.
func TestModelCapabilities_DeepSeekReasoner(t *testing.T) {
	caps := modelCapabilities("deepseek-reasoner")
	if caps.ContextWindow != 65_536 {
		t.Errorf("deepseek-reasoner: expected context window 65536, got %d", caps.ContextWindow)
	}
	if caps.MaxOutputTokens != 32_768 {
		t.Errorf("deepseek-reasoner: expected max output 32768, got %d", caps.MaxOutputTokens)
	}
}

// TestModelCapabilities_GPT4oMini checks gpt-4o-mini limits.
func TestModelCapabilities_GPT4oMini(t *testing.T) {
	caps := modelCapabilities("gpt-4o-mini")
	if caps.ContextWindow != 128_000 {
		t.Errorf("gpt-4o-mini: expected context window 128000, got %d", caps.ContextWindow)
	}
	if caps.MaxOutputTokens != 16_384 {
		t.Errorf("gpt-4o-mini: expected max output 16384, got %d", caps.MaxOutputTokens)
	}
}

// TestModelCapabilities_UnknownModel checks defaults for unrecognised models.
func TestModelCapabilities_UnknownModel(t *testing.T) {
	caps := modelCapabilities("my-custom-model")
	if caps.ContextWindow <= 0 {
		t.Error("unknown model: expected positive ContextWindow")
	}
	if caps.MaxOutputTokens <= 0 {
		t.Error("unknown model: expected positive MaxOutputTokens")
	}
}

// TestCountTokens_Estimation checks that token counting returns a reasonable value.
func TestCountTokens_Estimation(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "Alice: so the plan for tomorrow is ready"},
	}
	count, err := p.CountTokens(msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count <= 0 {
		t.Errorf("expected positive token count, got %d", count)
	}
}

// TestCountTokens_CyrillicText checks the byte-based estimate stays in a sane
// range for Cyrillic input, which uses two bytes per rune.
func TestCountTokens_CyrillicText(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "привет всем, начинаем встречу"},
	}
	count, err := p.CountTokens(msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 29 runes, 54 bytes → ~14 content tokens + 4 overhead.
	if count < 10 || count > 30 {
		t.Errorf("expected estimate between 10 and 30 tokens, got %d", count)
	}
}

// TestNew_MissingAPIKey ensures the constructor rejects an empty API key.
func TestNew_MissingAPIKey(t *testing.T) {
	_, err := New("", "deepseek-chat")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// TestNew_MissingModel ensures the constructor rejects an empty model.
func TestNew_MissingModel(t *testing.T) {
	_, err := New("sk-test", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_Options checks that optional settings are accepted without error.
func TestNew_Options(t *testing.T) {
	_, err := New("sk-test", "gpt-4o",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
	)
	if err != nil {
		t.Fatalf("unexpected error with valid options: %v", err)
	}
}

// TestNewDeepSeek checks that the DeepSeek constructor validates inputs the
// same way as New.
func TestNewDeepSeek(t *testing.T) {
	if _, err := NewDeepSeek("", "deepseek-chat"); err == nil {
		t.Fatal("expected error for empty API key")
	}
	if _, err := NewDeepSeek("sk-test", "deepseek-chat"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
