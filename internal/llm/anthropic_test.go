package llm

import "testing"

func TestAnthropicValidateModel(t *testing.T) {
	direct := &Anthropic{}
	viaBedrock := &Anthropic{bedrock: true}

	tests := []struct {
		model   string
		direct  bool
		bedrock bool
	}{
		{"claude-sonnet-4-5-20250929", true, true},
		{"claude-sonnet-4-5", true, true},
		{"us.anthropic.claude-sonnet-4-5-20250929-v1:0", false, true},
		{"us.anthropic.claude-3-5-haiku-20241022-v1:0", false, true},
		{"us.anthropic.claude-unknown-v1:0", false, false},
		{"claude-unknown", false, false},
	}

	for _, tt := range tests {
		if got := direct.ValidateModel(tt.model); got != tt.direct {
			t.Errorf("direct ValidateModel(%q) = %v, want %v", tt.model, got, tt.direct)
		}
		if got := viaBedrock.ValidateModel(tt.model); got != tt.bedrock {
			t.Errorf("bedrock ValidateModel(%q) = %v, want %v", tt.model, got, tt.bedrock)
		}
	}
}
