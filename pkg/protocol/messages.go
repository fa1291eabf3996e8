// Package protocol defines the messages exchanged between backend nodes in
// the cluster group.
package protocol

import (
	"github.com/dd0wney/cluso-filestore/pkg/accounts"
	"github.com/dd0wney/cluso-filestore/pkg/group"
)

// MessageType identifies a cluster message kind on the wire.
type MessageType uint8

const (
	MsgUpload MessageType = iota + 1
	MsgConfirmUpload
	MsgRollbackUpload
	MsgDelete
	MsgLockRequest
	MsgLockRelease
	MsgLockGranted
	MsgSaveAccount
	MsgRollbackAccount
	MsgConfirmTransaction
)

func (t MessageType) String() string {
	switch t {
	case MsgUpload:
		return "UPLOAD"
	case MsgConfirmUpload:
		return "CONFIRM_UPLOAD"
	case MsgRollbackUpload:
		return "ROLLBACK_UPLOAD"
	case MsgDelete:
		return "DELETE"
	case MsgLockRequest:
		return "LOCK_REQUEST"
	case MsgLockRelease:
		return "LOCK_RELEASE"
	case MsgLockGranted:
		return "LOCK_GRANTED"
	case MsgSaveAccount:
		return "SAVE_ACCOUNT"
	case MsgRollbackAccount:
		return "ROLLBACK_ACCOUNT"
	case MsgConfirmTransaction:
		return "CONFIRM_TRANSACTION"
	default:
		return "UNKNOWN"
	}
}

// Message is implemented by every cluster message. The set is closed: the
// unexported method keeps other packages from adding kinds.
type Message interface {
	Type() MessageType
	validate() error
}

// Upload asks peers to write Content under Name and acknowledge to Origin.
// Edits travel as uploads of the combined content.
type Upload struct {
	OperationID string       `json:"operation_id"`
	Name        string       `json:"name"`
	Content     []byte       `json:"content"`
	Origin      group.Member `json:"origin"`
}

// ConfirmUpload acknowledges an Upload. OK is false when the peer could not apply it.
type ConfirmUpload struct {
	OperationID string `json:"operation_id"`
	Name        string `json:"name"`
	OK          bool   `json:"ok"`
	Reason      string `json:"reason,omitempty"`
}

// RollbackUpload tells peers to revert what they applied for OperationID.
type RollbackUpload struct {
	OperationID string `json:"operation_id"`
	Name        string `json:"name"`
}

// Delete asks peers to remove Name. No acknowledgement is expected.
type Delete struct {
	OperationID string `json:"operation_id"`
	Name        string `json:"name"`
}

// LockRequest enqueues Requester for Key on the leader.
type LockRequest struct {
	Key       string       `json:"key"`
	RequestID string       `json:"request_id"`
	Requester group.Member `json:"requester"`
}

// LockRelease removes RequestID from the queue of Key.
type LockRelease struct {
	Key       string       `json:"key"`
	RequestID string       `json:"request_id"`
	Requester group.Member `json:"requester"`
}

// LockGranted tells a requester that RequestID reached the head of Key's queue.
type LockGranted struct {
	Key       string `json:"key"`
	RequestID string `json:"request_id"`
}

// SaveAccount asks peers to persist Account as part of transaction TxID.
type SaveAccount struct {
	TxID    string           `json:"tx_id"`
	Account accounts.Account `json:"account"`
	Origin  group.Member     `json:"origin"`
}

// RollbackAccount tells peers to delete Username if they saved it under TxID.
type RollbackAccount struct {
	TxID     string `json:"tx_id"`
	Username string `json:"username"`
}

// ConfirmTransaction acknowledges a SaveAccount. Duplicate is set when the
// peer already held the username.
type ConfirmTransaction struct {
	TxID      string `json:"tx_id"`
	OK        bool   `json:"ok"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (Upload) Type() MessageType             { return MsgUpload }
func (ConfirmUpload) Type() MessageType      { return MsgConfirmUpload }
func (RollbackUpload) Type() MessageType     { return MsgRollbackUpload }
func (Delete) Type() MessageType             { return MsgDelete }
func (LockRequest) Type() MessageType        { return MsgLockRequest }
func (LockRelease) Type() MessageType        { return MsgLockRelease }
func (LockGranted) Type() MessageType        { return MsgLockGranted }
func (SaveAccount) Type() MessageType        { return MsgSaveAccount }
func (RollbackAccount) Type() MessageType    { return MsgRollbackAccount }
func (ConfirmTransaction) Type() MessageType { return MsgConfirmTransaction }
