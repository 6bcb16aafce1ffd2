package providers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

func TestMergeToolArgs(t *testing.T) {
	cases := []struct {
		buf, chunk, want string
	}{
		{"", `{"a":`, `{"a":`},
		{`{"a":`, `1}`, `{"a":1}`},        // incremental
		{`{"a":`, `{"a":1}`, `{"a":1}`},   // cumulative
		{`{"a":1}`, `{"a":`, `{"a":1}`},   // stale duplicate
		{`{"a":1}`, `{"a":1}`, `{"a":1}`}, // exact duplicate
		{`{"a":1}`, "", `{"a":1}`},
	}
	for _, c := range cases {
		if got := mergeToolArgs(c.buf, c.chunk); got != c.want {
			t.Errorf("mergeToolArgs(%q, %q) = %q, want %q", c.buf, c.chunk, got, c.want)
		}
	}
}

func TestStreamState_OverlapIsReportedAndForceClosed(t *testing.T) {
	r := &recorder{}
	st := newStreamState(context.Background(), r, "test", 1)

	if err := st.thinkingChunk("a"); err != nil {
		t.Fatal(err)
	}
	if err := st.sayingChunk("b"); err != nil {
		t.Fatal(err)
	}
	if err := st.thinkingChunk("c"); err != nil {
		t.Fatal(err)
	}
	st.cleanup()

	checkEvents(t, r,
		"thinking_start", "thinking:a", "thinking_finish",
		"saying_start", "saying:b", "saying_finish",
		"thinking_start", "thinking:c", "thinking_finish",
	)
	if len(r.anomalies) != 2 {
		t.Errorf("expected 2 ordering anomalies, got %q", r.anomalies)
	}
}

func TestStreamState_ToolEmittedOnceWithSynthesizedID(t *testing.T) {
	r := &recorder{}
	st := newStreamState(context.Background(), r, "test", 7)

	_ = st.beginTool("x", "", "")
	st.appendToolArgs("x", `{"k":`)
	_ = st.beginTool("x", "", "lookup")
	st.appendToolArgs("x", `"v"}`)
	if err := st.completeTool("x"); err != nil {
		t.Fatal(err)
	}
	if err := st.finish(); err != nil {
		t.Fatal(err)
	}
	checkEvents(t, r, `call:call_7_0:lookup:{"k":"v"}`)
}

func TestStreamState_NamelessToolNeverEmitted(t *testing.T) {
	r := &recorder{}
	st := newStreamState(context.Background(), r, "test", 1)
	_ = st.beginTool("x", "id1", "")
	st.appendToolArgs("x", "{}")
	if err := st.finish(); err != nil {
		t.Fatal(err)
	}
	if len(r.events) != 0 {
		t.Errorf("expected no events, got %q", r.events)
	}
}

func TestStreamState_UnrepairableArgsFail(t *testing.T) {
	st := newStreamState(context.Background(), &recorder{}, "test", 1)
	_ = st.beginTool("x", "id1", "calc")
	st.appendToolArgs("x", `{"expr":"1+`)
	err := st.finish()
	if !errors.Is(err, schema.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestStreamState_UnavailableUsageKeepsEarlier(t *testing.T) {
	st := newStreamState(context.Background(), &recorder{}, "test", 1)
	st.captureUsage(schema.UsageStats{Kind: schema.UsageAvailable, PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	st.captureUsage(schema.NoUsage())
	if got := st.result().Usage; got.TotalTokens != 3 || !got.Available() {
		t.Errorf("usage = %+v", got)
	}
}

func TestReadSSE_Framing(t *testing.T) {
	body := ": keep-alive\r\n" +
		"event: first\r\n" +
		"data: {\"a\":\r\n" +
		"data: 1}\r\n" +
		"\r\n" +
		"data: second\n" +
		"\n" +
		"data:  padded text \n" +
		"\n" +
		"data: tail-without-blank-line"

	var frames []sseFrame
	err := readSSE(context.Background(), strings.NewReader(body), func(f sseFrame) error {
		frames = append(frames, f)
		return nil
	})
	if err != nil {
		t.Fatalf("readSSE: %v", err)
	}
	if len(frames) != 4 {
		t.Fatalf("expected 4 frames, got %+v", frames)
	}
	if frames[0].Event != "first" || frames[0].Data != "{\"a\":\n1}" {
		t.Errorf("frame 0 = %+v", frames[0])
	}
	if frames[1].Event != "" || frames[1].Data != "second" {
		t.Errorf("frame 1 = %+v", frames[1])
	}
	// Only the single space after the colon is dropped.
	if frames[2].Data != " padded text " {
		t.Errorf("frame 2 = %q", frames[2].Data)
	}
	if frames[3].Data != "tail-without-blank-line" {
		t.Errorf("frame 3 = %+v", frames[3])
	}
}

func TestReadSSE_AbortedContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := readSSE(ctx, strings.NewReader("data: x\n\n"), func(sseFrame) error {
		t.Fatal("no frame should be delivered after abort")
		return nil
	})
	if !errors.Is(err, schema.ErrAborted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected aborted error, got %v", err)
	}
}

func TestNormalizeToolArgs(t *testing.T) {
	got, err := normalizeToolArgs("t", "  ")
	if err != nil || got != "{}" {
		t.Errorf("empty args = %q, %v", got, err)
	}
	got, err = normalizeToolArgs("t", `{"a":1`)
	if err != nil || got != `{"a":1}` {
		t.Errorf("truncated args = %q, %v", got, err)
	}
	got, err = normalizeToolArgs("t", `{"a":1}garbage`)
	if err != nil || got != `{"a":1}` {
		t.Errorf("trailing garbage = %q, %v", got, err)
	}
	if got, err = normalizeToolArgs("t", "null"); err != nil || got != "{}" {
		t.Errorf("null args = %q, %v", got, err)
	}
	for _, raw := range []string{`not json`, `[1]`, `"x"`, `5`} {
		if _, err := normalizeToolArgs("t", raw); !errors.Is(err, schema.ErrMalformedPayload) {
			t.Errorf("%s: expected ErrMalformedPayload, got %v", raw, err)
		}
	}
}
