package p2p

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const maxFrameSize = 1 << 20 // 1 MiB, generous upper bound for an Addresses burst

type frame struct {
	Kind    messageKind
	Payload []byte
}

func writeFrame(conn net.Conn, f frame) error {
	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header[:4], uint32(len(f.Payload)))
	header[4] = byte(f.Kind)
	if _, err := conn.Write(header); err != nil {
		return err
	}
	if len(f.Payload) == 0 {
		return nil
	}
	_, err := conn.Write(f.Payload)
	return err
}

func readFrame(conn net.Conn) (frame, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(conn, header); err != nil {
		return frame{}, err
	}
	length := binary.BigEndian.Uint32(header[:4])
	if length > maxFrameSize {
		return frame{}, fmt.Errorf("frame too large: %d bytes", length)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(conn, payload); err != nil {
			return frame{}, err
		}
	}
	return frame{Kind: messageKind(header[4]), Payload: payload}, nil
}
