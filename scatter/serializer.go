package scatter

import (
	"encoding/binary"

	"gopkg.in/vmihailenco/msgpack.v2"

	"github.com/getlantern/qbroker"
)

// Serializer encodes a BrokerRequest once per server group into the
// length-prefixed MsgPack framing the broker's transports exchange.
//
// A Serializer carries no state beyond a reusable scratch buffer, so a
// single instance must not be shared across concurrent calls - each
// goroutine in the Scatter Dispatcher's fan-out gets its own (spec §4.6).
type Serializer struct {
	scratch [4]byte
}

// NewSerializer creates a Serializer for exclusive use by one goroutine.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Serialize encodes req as a 4-byte big-endian length prefix followed by
// its MsgPack encoding.
func (s *Serializer) Serialize(req *qbroker.BrokerRequest) ([]byte, error) {
	body, err := msgpack.Marshal(req)
	if err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint32(s.scratch[:], uint32(len(body)))
	out := make([]byte, 0, len(body)+4)
	out = append(out, s.scratch[:]...)
	out = append(out, body...)
	return out, nil
}

// Deserialize strips the length prefix written by Serialize and decodes the
// MsgPack body into req.
func Deserialize(framed []byte, req *qbroker.BrokerRequest) error {
	if len(framed) < 4 {
		return errShortFrame
	}
	n := binary.BigEndian.Uint32(framed[:4])
	body := framed[4:]
	if uint32(len(body)) != n {
		return errShortFrame
	}
	return msgpack.Unmarshal(body, req)
}
