package domain

import "testing"

func TestNewProgressEventKindFollowsPayload(t *testing.T) {
	cases := []struct {
		payload EventPayload
		want    EventKind
	}{
		{ProcessingStarted{DocumentID: "d"}, EventProcessingStarted},
		{ChapterBatchReady{DocumentID: "d"}, EventChapterBatchReady},
		{ProcessingCompleted{DocumentID: "d"}, EventCompleted},
		{ProcessingFailed{DocumentID: "d", Error: "boom"}, EventFailed},
	}
	for _, tc := range cases {
		event := NewProgressEvent(tc.payload)
		if event.Kind() != tc.want {
			t.Fatalf("expected kind %d, got %d", tc.want, event.Kind())
		}
		if event.ID == "" {
			t.Fatalf("expected event id")
		}
		if event.Timestamp.IsZero() {
			t.Fatalf("expected timestamp")
		}
	}
}

func TestEventIDsAreUnique(t *testing.T) {
	a := NewProgressEvent(ProcessingStarted{DocumentID: "d"})
	b := NewProgressEvent(ProcessingStarted{DocumentID: "d"})
	if a.ID == b.ID {
		t.Fatalf("expected distinct event ids, got %s twice", a.ID)
	}
}

func TestFailedMessageCarriesCause(t *testing.T) {
	event := NewProgressEvent(ProcessingFailed{DocumentID: "d", Error: "bad bytes"})
	if event.Message() != "processing failed: bad bytes" {
		t.Fatalf("unexpected message %q", event.Message())
	}
	if !event.Kind().IsTerminal() {
		t.Fatalf("failed must be terminal")
	}
}
