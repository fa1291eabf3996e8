package group

import (
	"encoding/json"
	"fmt"
	"time"
)

type frameType string

const (
	frameData      frameType = "data"
	frameJoin      frameType = "join"
	frameLeave     frameType = "leave"
	frameView      frameType = "view"
	frameHeartbeat frameType = "heartbeat"
)

// frame is the wire envelope exchanged between NNG channels.
type frame struct {
	Type      frameType `json:"type"`
	Group     string    `json:"group"`
	From      Member    `json:"from"`
	Timestamp time.Time `json:"timestamp"`
	View      *View     `json:"view,omitempty"`
	Subject   *Member   `json:"subject,omitempty"`
	Data      []byte    `json:"data,omitempty"`
}

func encodeFrame(f frame) ([]byte, error) {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

func decodeFrame(data []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Type {
	case frameData, frameHeartbeat:
	case frameJoin, frameLeave:
		if f.Subject == nil {
			return frame{}, fmt.Errorf("decode frame: %s without subject", f.Type)
		}
	case frameView:
		if f.View == nil {
			return frame{}, fmt.Errorf("decode frame: view frame without view")
		}
	default:
		return frame{}, fmt.Errorf("decode frame: unknown type %q", f.Type)
	}
	return f, nil
}

// stateRequest asks a member's state endpoint for a snapshot.
type stateRequest struct {
	Group string `json:"group"`
	From  Member `json:"from"`
}

const (
	stateOK    byte = 0
	stateError byte = 1
)
