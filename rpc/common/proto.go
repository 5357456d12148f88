package common

import (
	"encoding/json"
	"fmt"

	"github.com/xzl01/dlm/lib/dlm"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	Session string `json:"session,omitempty"` // Used for: all requests
	Name    []byte `json:"name,omitempty"`    // Used for: LsCreate, LsRelease (lockspace), Lock (resource)
	Handle  uint64 `json:"handle,omitempty"`  // Used for: LsCreate (response), LsRelease, Lock, Unlock
	Mode    int32  `json:"mode,omitempty"`    // Used for: LsCreate (permission bits), Lock (lock mode)
	Flags   uint32 `json:"flags,omitempty"`   // Used for: Lock, Unlock
	Force   int32  `json:"force,omitempty"`   // Used for: LsRelease
	Parent  uint32 `json:"parent,omitempty"`  // Used for: Lock

	// Status block fields, sent in both directions
	LockID  uint32 `json:"lkid,omitempty"`     // Used for: Lock, Unlock
	Status  int32  `json:"status,omitempty"`   // Used for: Lock, Unlock (response)
	SBFlags uint8  `json:"sb_flags,omitempty"` // Used for: Lock (response)
	Value   []byte `json:"value,omitempty"`    // Used for: Lock, Unlock (value block)

	// Response only fields
	RC    int32  `json:"rc,omitempty"`    // Service return code, 0 or a negative errno
	Basts uint32 `json:"basts,omitempty"` // Used for: Lock (request: 1 if the caller wants notifications, response: number raised while it waited)
	Err   string `json:"err,omitempty"`   // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Custom (operation name in the request, result in the response)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewLsCreateRequest creates a new LsCreate request
func NewLsCreateRequest(session, name string, mode uint32) *Message {
	return &Message{
		MsgType: MsgTLsCreate,
		Session: session,
		Name:    []byte(name),
		Mode:    int32(mode),
	}
}

// NewLsCreateResponse creates a new LsCreate response
func NewLsCreateResponse(handle dlm.LockspaceHandle, rc int) *Message {
	return &Message{
		MsgType: MsgTLsCreate,
		Handle:  uint64(handle),
		RC:      int32(rc),
	}
}

// NewLsReleaseRequest creates a new LsRelease request
func NewLsReleaseRequest(session, name string, handle dlm.LockspaceHandle, force int) *Message {
	return &Message{
		MsgType: MsgTLsRelease,
		Session: session,
		Name:    []byte(name),
		Handle:  uint64(handle),
		Force:   int32(force),
	}
}

// NewLsReleaseResponse creates a new LsRelease response
func NewLsReleaseResponse(rc int) *Message {
	return &Message{
		MsgType: MsgTLsRelease,
		RC:      int32(rc),
	}
}

// NewLockRequest creates a new Lock request. The lock id and value block of
// lksb travel with the request. notify asks the server to count blocking
// notifications raised while the request waits.
func NewLockRequest(session string, handle dlm.LockspaceHandle, mode dlm.LockMode, flags dlm.LockFlag, name []byte, parent uint32, lksb *dlm.LKSB, notify bool) *Message {
	var basts uint32
	if notify {
		basts = 1
	}
	return &Message{
		MsgType: MsgTLock,
		Session: session,
		Handle:  uint64(handle),
		Mode:    int32(mode),
		Flags:   uint32(flags),
		Name:    name,
		Parent:  parent,
		LockID:  lksb.LockID,
		Value:   lksb.LVB,
		Basts:   basts,
	}
}

// NewLockResponse creates a new Lock response
func NewLockResponse(rc int, lksb *dlm.LKSB, basts uint32) *Message {
	return &Message{
		MsgType: MsgTLock,
		RC:      int32(rc),
		Status:  lksb.Status,
		LockID:  lksb.LockID,
		SBFlags: lksb.Flags,
		Value:   lksb.LVB,
		Basts:   basts,
	}
}

// NewUnlockRequest creates a new Unlock request
func NewUnlockRequest(session string, handle dlm.LockspaceHandle, lkid uint32, flags dlm.LockFlag, lksb *dlm.LKSB) *Message {
	return &Message{
		MsgType: MsgTUnlock,
		Session: session,
		Handle:  uint64(handle),
		LockID:  lkid,
		Flags:   uint32(flags),
		Value:   lksb.LVB,
	}
}

// NewUnlockResponse creates a new Unlock response
func NewUnlockResponse(rc int, lksb *dlm.LKSB) *Message {
	return &Message{
		MsgType: MsgTUnlock,
		RC:      int32(rc),
		Status:  lksb.Status,
		LockID:  lksb.LockID,
		SBFlags: lksb.Flags,
		Value:   lksb.LVB,
	}
}

// NewSessionCloseRequest creates a new SessionClose request
func NewSessionCloseRequest(session string) *Message {
	return &Message{
		MsgType: MsgTSessionClose,
		Session: session,
	}
}

// NewSessionCloseResponse creates a new SessionClose response
func NewSessionCloseResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTSessionClose,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewCustomRequest creates a new Custom request
func NewCustomRequest(meta []byte) *Message {
	return &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
}

// NewCustomResponse creates a new Custom response
func NewCustomResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Status Block Helpers
// --------------------------------------------------------------------------

// LKSB returns the status block carried by the message.
func (m *Message) LKSB() *dlm.LKSB {
	return &dlm.LKSB{
		Status: m.Status,
		LockID: m.LockID,
		Flags:  m.SBFlags,
		LVB:    m.Value,
	}
}

// CopyToLKSB writes the status block carried by the message into lksb. The
// value block is copied into the existing buffer when one was supplied.
func (m *Message) CopyToLKSB(lksb *dlm.LKSB) {
	lksb.Status = m.Status
	lksb.LockID = m.LockID
	lksb.Flags = m.SBFlags
	if m.Value == nil {
		return
	}
	if len(lksb.LVB) < len(m.Value) {
		lksb.LVB = make([]byte, len(m.Value))
	}
	copy(lksb.LVB, m.Value)
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTLsCreate:
		return "lsCreate"
	case MsgTLsRelease:
		return "lsRelease"
	case MsgTLock:
		return "lock"
	case MsgTUnlock:
		return "unlock"
	case MsgTSessionClose:
		return "sessionClose"
	case MsgTCustom:
		return "custom"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "lsCreate":
		*t = MsgTLsCreate
	case "lsRelease":
		*t = MsgTLsRelease
	case "lock":
		*t = MsgTLock
	case "unlock":
		*t = MsgTUnlock
	case "sessionClose":
		*t = MsgTSessionClose
	case "custom":
		*t = MsgTCustom
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// dlm.Service operations

	MsgTLsCreate  // Create or attach to a lockspace
	MsgTLsRelease // Release a lockspace attachment
	MsgTLock      // Request or convert a lock and wait for completion
	MsgTUnlock    // Unlock or cancel and wait for completion

	// Session operations

	MsgTSessionClose // Release everything the session holds

	// Custom operations

	MsgTCustom // Custom operation type
)
