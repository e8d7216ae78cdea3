package scatter

import (
	"gopkg.in/vmihailenco/msgpack.v2"
)

// MsgPackCodec is the grpc.Codec the broker's transport uses instead of
// protobuf, matching the teacher's rpc.MsgPackCodec.
type MsgPackCodec struct{}

func (c *MsgPackCodec) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (c *MsgPackCodec) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

func (c *MsgPackCodec) String() string {
	return "MsgPackCodec"
}
