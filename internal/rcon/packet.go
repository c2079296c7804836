// Package rcon implements the remote-command protocol used to dispatch
// validated command batches to the game server.
package rcon

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Packet types per the wire contract.
const (
	typeCommand  = 2
	typeLogin    = 3
	typeResponse = 0
)

// Little-endian framing: length | request_id | type | payload NUL | NUL.
// Length covers everything after itself.
type packet struct {
	RequestID int32
	Type      int32
	Payload   string
}

const maxPayload = 4096

func encodePacket(p packet) []byte {
	body := len(p.Payload) + 10
	buf := make([]byte, 4+body)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(body))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.RequestID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(p.Type))
	copy(buf[12:], p.Payload)
	// Two trailing NULs: payload terminator plus packet terminator.
	return buf
}

func decodePacket(r io.Reader) (packet, error) {
	var length int32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return packet{}, err
	}
	if length < 10 || length > maxPayload+10 {
		return packet{}, fmt.Errorf("rcon: bad packet length %d", length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return packet{}, err
	}
	p := packet{
		RequestID: int32(binary.LittleEndian.Uint32(body[0:4])),
		Type:      int32(binary.LittleEndian.Uint32(body[4:8])),
		Payload:   string(body[8 : length-2]),
	}
	return p, nil
}
