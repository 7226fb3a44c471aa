package core

import "testing"

func TestRedactSensitiveMapPreservesTraceabilityMetadata(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"trace_id":       "trace_1",
		"request_id":     "req_1",
		"integration_id": "int_1",
		"access_token":   "secret-token",
		"authorization":  "Bearer secret-token",
		"nested":         map[string]any{"refresh_token": "refresh", "trace_id": "trace_nested"},
		"events":         []any{map[string]any{"api_key": "key_1"}, map[string]any{"operation_id": "op_1"}},
		"operation_type": "chat",
	})

	if redacted["trace_id"] != "trace_1" {
		t.Fatalf("expected trace_id to remain visible, got %#v", redacted["trace_id"])
	}
	if redacted["integration_id"] != "int_1" || redacted["operation_type"] != "chat" {
		t.Fatalf("expected identifiers to remain visible, got %#v", redacted)
	}
	if redacted["authorization"] != RedactedValue {
		t.Fatalf("expected authorization to be redacted, got %#v", redacted["authorization"])
	}
	if redacted["access_token"] != RedactedValue {
		t.Fatalf("expected access_token to be redacted, got %#v", redacted["access_token"])
	}
	nested, ok := redacted["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested redacted map")
	}
	if nested["refresh_token"] != RedactedValue {
		t.Fatalf("expected nested refresh_token to be redacted, got %#v", nested["refresh_token"])
	}
	if nested["trace_id"] != "trace_nested" {
		t.Fatalf("expected nested trace_id to remain visible, got %#v", nested["trace_id"])
	}
}

func TestRedactSensitiveMapRedactsListEntries(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"events": []any{map[string]any{"api_key": "key_1"}, map[string]any{"operation_id": "op_1"}},
	})
	events, ok := redacted["events"].([]any)
	if !ok || len(events) != 2 {
		t.Fatalf("expected events list, got %#v", redacted["events"])
	}
	first, _ := events[0].(map[string]any)
	if first["api_key"] != RedactedValue {
		t.Fatalf("expected api_key in list to be redacted, got %#v", first["api_key"])
	}
	second, _ := events[1].(map[string]any)
	if second["operation_id"] != "op_1" {
		t.Fatalf("expected operation_id to remain visible, got %#v", second["operation_id"])
	}
	if len(RedactSensitiveMap(nil)) != 0 {
		t.Fatalf("expected empty map for nil input")
	}
}
