package router

import (
	"encoding/json"
	"testing"
)

func TestUserReplyPayload_MarshalJSON_SpreadsExtraAtTopLevel(t *testing.T) {
	p := userReplyPayload{
		SessionKey: "h5:u1:a1",
		AgentID:    "a1",
		Content:    "hello",
		Role:       "assistant",
		Extra:      map[string]any{"tool_calls": []string{"search"}, "confidence": 0.9},
	}

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, nested := out["extra"]; nested {
		t.Fatal("expected extra fields spread at top level, found nested \"extra\" key")
	}
	if out["session_key"] != "h5:u1:a1" || out["content"] != "hello" {
		t.Fatalf("expected core fields preserved, got %v", out)
	}
	if out["confidence"] != 0.9 {
		t.Fatalf("expected extra field \"confidence\" spread at top level, got %v", out)
	}
}

func TestUserReplyPayload_MarshalJSON_NoExtra(t *testing.T) {
	p := userReplyPayload{SessionKey: "h5:u1:a1", AgentID: "a1", Content: "hi", Role: "assistant"}

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected exactly the 4 core fields with no extra, got %v", out)
	}
}
