package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/xzl01/dlm/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasSession uint16 = 1 << iota
	hasName
	hasHandle
	hasMode
	hasFlags
	hasForce
	hasParent
	hasLockID
	hasStatus
	hasSBFlags
	hasValue
	hasRC
	hasBasts
	hasErr
	hasMeta
)

// headerSize is 1 byte MsgType + 2 bytes presence flags
const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	w := writer{buf: make([]byte, b.sizeBytes(msg)), pos: headerSize}

	// Write message type
	w.buf[0] = byte(msg.MsgType)

	var flags uint16
	if msg.Session != "" {
		flags |= hasSession
		w.bytes([]byte(msg.Session))
	}
	if msg.Name != nil {
		flags |= hasName
		w.bytes(msg.Name)
	}
	if msg.Handle != 0 {
		flags |= hasHandle
		w.uint64(msg.Handle)
	}
	if msg.Mode != 0 {
		flags |= hasMode
		w.uint32(uint32(msg.Mode))
	}
	if msg.Flags != 0 {
		flags |= hasFlags
		w.uint32(msg.Flags)
	}
	if msg.Force != 0 {
		flags |= hasForce
		w.uint32(uint32(msg.Force))
	}
	if msg.Parent != 0 {
		flags |= hasParent
		w.uint32(msg.Parent)
	}
	if msg.LockID != 0 {
		flags |= hasLockID
		w.uint32(msg.LockID)
	}
	if msg.Status != 0 {
		flags |= hasStatus
		w.uint32(uint32(msg.Status))
	}
	if msg.SBFlags != 0 {
		flags |= hasSBFlags
		w.buf[w.pos] = msg.SBFlags
		w.pos++
	}
	if msg.Value != nil {
		flags |= hasValue
		w.bytes(msg.Value)
	}
	if msg.RC != 0 {
		flags |= hasRC
		w.uint32(uint32(msg.RC))
	}
	if msg.Basts != 0 {
		flags |= hasBasts
		w.uint32(msg.Basts)
	}
	if msg.Err != "" {
		flags |= hasErr
		w.bytes([]byte(msg.Err))
	}
	if msg.Meta != nil {
		flags |= hasMeta
		w.bytes(msg.Meta)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(w.buf[1:3], flags)

	return w.buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	// Read message type and flags
	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])
	r := reader{data: data, pos: headerSize}

	// Absent fields are reset, so msg can be reused
	*msg = common.Message{MsgType: msg.MsgType}

	var err error
	if flags&hasSession != 0 {
		var s []byte
		if s, err = r.bytes("session"); err != nil {
			return err
		}
		msg.Session = string(s)
	}
	if flags&hasName != 0 {
		if msg.Name, err = r.bytes("name"); err != nil {
			return err
		}
	}
	if flags&hasHandle != 0 {
		if msg.Handle, err = r.uint64("handle"); err != nil {
			return err
		}
	}
	if flags&hasMode != 0 {
		var v uint32
		if v, err = r.uint32("mode"); err != nil {
			return err
		}
		msg.Mode = int32(v)
	}
	if flags&hasFlags != 0 {
		if msg.Flags, err = r.uint32("flags"); err != nil {
			return err
		}
	}
	if flags&hasForce != 0 {
		var v uint32
		if v, err = r.uint32("force"); err != nil {
			return err
		}
		msg.Force = int32(v)
	}
	if flags&hasParent != 0 {
		if msg.Parent, err = r.uint32("parent"); err != nil {
			return err
		}
	}
	if flags&hasLockID != 0 {
		if msg.LockID, err = r.uint32("lkid"); err != nil {
			return err
		}
	}
	if flags&hasStatus != 0 {
		var v uint32
		if v, err = r.uint32("status"); err != nil {
			return err
		}
		msg.Status = int32(v)
	}
	if flags&hasSBFlags != 0 {
		if r.pos+1 > len(r.data) {
			return fmt.Errorf("data too short for sb flags")
		}
		msg.SBFlags = r.data[r.pos]
		r.pos++
	}
	if flags&hasValue != 0 {
		if msg.Value, err = r.bytes("value"); err != nil {
			return err
		}
	}
	if flags&hasRC != 0 {
		var v uint32
		if v, err = r.uint32("rc"); err != nil {
			return err
		}
		msg.RC = int32(v)
	}
	if flags&hasBasts != 0 {
		if msg.Basts, err = r.uint32("basts"); err != nil {
			return err
		}
	}
	if flags&hasErr != 0 {
		var s []byte
		if s, err = r.bytes("error"); err != nil {
			return err
		}
		msg.Err = string(s)
	}
	if flags&hasMeta != 0 {
		if msg.Meta, err = r.bytes("meta"); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	// Add sizes for fields that require length encoding
	if msg.Session != "" {
		size += 4 + len(msg.Session)
	}
	if msg.Name != nil {
		size += 4 + len(msg.Name)
	}
	if msg.Handle != 0 {
		size += 8
	}
	for _, present := range []bool{
		msg.Mode != 0, msg.Flags != 0, msg.Force != 0, msg.Parent != 0,
		msg.LockID != 0, msg.Status != 0, msg.RC != 0, msg.Basts != 0,
	} {
		if present {
			size += 4
		}
	}
	if msg.SBFlags != 0 {
		size += 1
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}

// writer appends big endian fields to a presized buffer
type writer struct {
	buf []byte
	pos int
}

func (w *writer) uint32(v uint32) {
	binary.BigEndian.PutUint32(w.buf[w.pos:w.pos+4], v)
	w.pos += 4
}

func (w *writer) uint64(v uint64) {
	binary.BigEndian.PutUint64(w.buf[w.pos:w.pos+8], v)
	w.pos += 8
}

// bytes writes a 4 byte length followed by the data
func (w *writer) bytes(data []byte) {
	w.uint32(uint32(len(data)))
	copy(w.buf[w.pos:w.pos+len(data)], data)
	w.pos += len(data)
}

// reader consumes big endian fields with bounds checks
type reader struct {
	data []byte
	pos  int
}

func (r *reader) uint32(field string) (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s", field)
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64(field string) (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s", field)
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

// bytes reads a length prefixed field into a new slice (empty, not nil,
// for a zero length)
func (r *reader) bytes(field string) ([]byte, error) {
	n, err := r.uint32(field + " length")
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.data) {
		return nil, fmt.Errorf("data too short for %s data", field)
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}
