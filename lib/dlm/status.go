package dlm

import (
	"encoding/hex"
	"fmt"
)

// StatusBlock is an immutable snapshot of the outcome of the most recent
// lock operation on a Lock. It never aliases service-owned memory.
type StatusBlock struct {
	Status int32      // 0 on success, negative completion code otherwise
	LockID uint32     // lock id assigned by the service once granted
	Flags  StatusFlag // result flags
	Value  []byte     // copy of the value block, nil if none was returned
}

// DecodeStatusBlock builds a StatusBlock from the raw status fields of an
// LKSB. The value block bytes are copied.
func DecodeStatusBlock(status int32, lkid uint32, rawFlags uint8, lvb []byte) StatusBlock {
	sb := StatusBlock{
		Status: status,
		LockID: lkid,
		Flags:  StatusFlag(rawFlags),
	}
	if lvb != nil {
		sb.Value = make([]byte, len(lvb))
		copy(sb.Value, lvb)
	}
	return sb
}

// decodeLKSB is DecodeStatusBlock for a raw LKSB.
func decodeLKSB(lksb *LKSB) StatusBlock {
	return DecodeStatusBlock(lksb.Status, lksb.LockID, lksb.Flags, lksb.LVB)
}

// ValueValid reports whether Value carries meaningful content, i.e. a value
// block was returned and the VALNOTVALID flag is clear.
func (sb StatusBlock) ValueValid() bool {
	return sb.Value != nil && sb.Flags&SBFValNotValid == 0
}

// Err returns the completion status as an error. Zero and the unlock/cancel
// completion codes yield nil.
func (sb StatusBlock) Err() error {
	switch sb.Status {
	case 0, -EUNLOCK, -ECANCEL:
		return nil
	}
	if sb.Status > 0 {
		return NewError(-int(sb.Status))
	}
	return NewError(int(sb.Status))
}

// clone returns a copy that does not share the Value backing array.
func (sb StatusBlock) clone() StatusBlock {
	return DecodeStatusBlock(sb.Status, sb.LockID, uint8(sb.Flags), sb.Value)
}

// String returns a one-line representation of the status block.
func (sb StatusBlock) String() string {
	lvb := "None"
	if sb.Value != nil {
		lvb = hex.EncodeToString(sb.Value)
	}
	return fmt.Sprintf("status: %d, lkid: %d, flags: %s, lvb: %s", sb.Status, sb.LockID, sb.Flags, lvb)
}
