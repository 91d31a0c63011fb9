package progress

import (
	"encoding/json"
	"testing"
)

func TestRedisRelayDeliversEnvelope(t *testing.T) {
	sink := newRecordingSink()
	relay := NewRedisRelay(nil, "progress", sink)

	payload, err := json.Marshal(relayEnvelope{SessionID: "s1", Frame: json.RawMessage(`{"code":200,"type":21}`)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	relay.relay(string(payload))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.frames["s1"]) != 1 || string(sink.frames["s1"][0]) != `{"code":200,"type":21}` {
		t.Fatalf("unexpected frames: %q", sink.frames["s1"])
	}
}

func TestRedisRelayIgnoresMalformedPayload(t *testing.T) {
	sink := newRecordingSink()
	relay := NewRedisRelay(nil, "progress", sink)

	relay.relay("not json")
	relay.relay(`{"frame":{}}`)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.frames) != 0 {
		t.Fatalf("expected no deliveries, got %v", sink.frames)
	}
}
