package progress

import (
	"encoding/json"
	"fmt"

	"github.com/kirillkom/chapterflow/internal/core/domain"
)

// Message is the JSON frame pushed to a live session.
type Message struct {
	Code      int              `json:"code"`
	Message   string           `json:"message"`
	Type      domain.EventKind `json:"type"`
	Result    json.RawMessage  `json:"result"`
	Timestamp int64            `json:"timestamp"`
	EventID   string           `json:"eventId"`
}

func Encode(event domain.ProgressEvent) ([]byte, error) {
	if event.Payload == nil {
		return nil, fmt.Errorf("encode progress event %s: empty payload", event.ID)
	}
	result, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode progress payload: %w", err)
	}
	frame, err := json.Marshal(Message{
		Code:      200,
		Message:   event.Message(),
		Type:      event.Kind(),
		Result:    result,
		Timestamp: event.Timestamp.UnixMilli(),
		EventID:   event.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode progress message: %w", err)
	}
	return frame, nil
}

func Decode(frame []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, fmt.Errorf("decode progress message: %w", err)
	}
	return msg, nil
}
