package schema

import "testing"

func TestEffectiveMaxTokens(t *testing.T) {
	provider := &ProviderConfig{
		APIType: APIGemini,
		Models:  map[string]ModelInfo{"big": {OutputLength: 8192}, "plain": {}},
	}

	cases := []struct {
		name  string
		agent *AgentSpec
		want  int
	}{
		{"nil agent", nil, DefaultMaxOutputTokens},
		{"catalog output length", &AgentSpec{Model: "big"}, 8192},
		{"catalog without limit", &AgentSpec{Model: "plain"}, DefaultMaxOutputTokens},
		{"vendor override", &AgentSpec{Model: "big", ModelParams: ModelParams{Gemini: VendorParams{MaxTokens: 300}}}, 300},
		{"other vendor ignored", &AgentSpec{Model: "big", ModelParams: ModelParams{Anthropic: VendorParams{MaxTokens: 300}}}, 8192},
		{"generic wins", &AgentSpec{Model: "big", ModelParams: ModelParams{
			MaxTokens: 64,
			Gemini:    VendorParams{MaxTokens: 300},
		}}, 64},
	}
	for _, c := range cases {
		if got := EffectiveMaxTokens(c.agent, provider); got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, got, c.want)
		}
	}
}

func TestMessageRole(t *testing.T) {
	cases := map[MessageType]Role{
		MsgEnvironment:    RoleUser,
		MsgPrompting:      RoleUser,
		MsgTransientGuide: RoleAssistant,
		MsgThinking:       RoleAssistant,
		MsgSaying:         RoleAssistant,
		MsgFuncCall:       RoleAssistant,
		MsgFuncResult:     RoleTool,
		MsgTellaskResult:  RoleTool,
	}
	for typ, want := range cases {
		if got := (Message{Type: typ}).Role(); got != want {
			t.Errorf("%s: role %s, want %s", typ, got, want)
		}
	}
}

func TestProviderDataFor(t *testing.T) {
	var nilData *ProviderData
	if nilData.For("anthropic") != nil {
		t.Error("nil data should yield nil")
	}
	d := &ProviderData{Provider: "gemini", Raw: []byte(`{"signature":"s"}`)}
	if d.For("anthropic") != nil {
		t.Error("foreign data must not be returned")
	}
	if string(d.For("gemini")) != `{"signature":"s"}` {
		t.Errorf("For = %s", d.For("gemini"))
	}
}
