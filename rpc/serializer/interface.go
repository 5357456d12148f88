package serializer

import "github.com/xzl01/dlm/rpc/common"

// IRPCSerializer is the interface of the wire codecs shared by the RPC
// client and server. Both ends of a connection must use the same codec.
type IRPCSerializer interface {
	// Serialize encodes a Message
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg. Fields absent from b are left zero.
	Deserialize(b []byte, msg *common.Message) error
}

// ByName returns the serializer registered under name (binary, json or gob)
func ByName(name string) (IRPCSerializer, bool) {
	switch name {
	case "binary":
		return NewBinarySerializer(), true
	case "json":
		return NewJSONSerializer(), true
	case "gob":
		return NewGOBSerializer(), true
	default:
		return nil, false
	}
}
