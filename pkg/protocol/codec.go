package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed is returned by Decode for frames that are not valid messages.
var ErrMalformed = errors.New("protocol: malformed message")

// Envelope is the wire form of a Message.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Encode wraps msg in an envelope.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	return json.Marshal(Envelope{
		Type:      msg.Type(),
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
}

// Decode parses an envelope and returns the concrete message value.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var msg Message
	var err error
	switch env.Type {
	case MsgUpload:
		msg, err = decodeAs[Upload](env.Data)
	case MsgConfirmUpload:
		msg, err = decodeAs[ConfirmUpload](env.Data)
	case MsgRollbackUpload:
		msg, err = decodeAs[RollbackUpload](env.Data)
	case MsgDelete:
		msg, err = decodeAs[Delete](env.Data)
	case MsgLockRequest:
		msg, err = decodeAs[LockRequest](env.Data)
	case MsgLockRelease:
		msg, err = decodeAs[LockRelease](env.Data)
	case MsgLockGranted:
		msg, err = decodeAs[LockGranted](env.Data)
	case MsgSaveAccount:
		msg, err = decodeAs[SaveAccount](env.Data)
	case MsgRollbackAccount:
		msg, err = decodeAs[RollbackAccount](env.Data)
	case MsgConfirmTransaction:
		msg, err = decodeAs[ConfirmTransaction](env.Data)
	default:
		return nil, fmt.Errorf("%w: unknown type %d", ErrMalformed, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	if err := msg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return msg, nil
}

func decodeAs[T Message](data json.RawMessage) (Message, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%s is required", pairs[i])
		}
	}
	return nil
}

func (m Upload) validate() error {
	return required("operation_id", m.OperationID, "name", m.Name, "origin", m.Origin.ID)
}

func (m ConfirmUpload) validate() error {
	return required("operation_id", m.OperationID)
}

func (m RollbackUpload) validate() error {
	return required("operation_id", m.OperationID, "name", m.Name)
}

func (m Delete) validate() error {
	return required("name", m.Name)
}

func (m LockRequest) validate() error {
	return required("key", m.Key, "request_id", m.RequestID, "requester", m.Requester.ID)
}

func (m LockRelease) validate() error {
	return required("key", m.Key, "request_id", m.RequestID)
}

func (m LockGranted) validate() error {
	return required("key", m.Key, "request_id", m.RequestID)
}

func (m SaveAccount) validate() error {
	return required("tx_id", m.TxID, "username", m.Account.Username, "origin", m.Origin.ID)
}

func (m RollbackAccount) validate() error {
	return required("tx_id", m.TxID, "username", m.Username)
}

func (m ConfirmTransaction) validate() error {
	return required("tx_id", m.TxID)
}
