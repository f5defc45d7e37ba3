package instrument

import (
	"encoding/binary"
	"fmt"
)

// USBTMC bulk message IDs.
const (
	msgDevDepMsgOut       = 1
	msgRequestDevDepMsgIn = 2
	msgDevDepMsgIn        = 2

	usbtmcHeaderLen = 12
	attrEOM         = 0x01
)

// tagSeq yields bTag values 1..255; zero is reserved.
type tagSeq struct {
	last byte
}

func (s *tagSeq) next() byte {
	s.last++
	if s.last == 0 {
		s.last = 1
	}
	return s.last
}

func usbtmcHeader(msgID, tag byte, size uint32, attr byte) []byte {
	h := make([]byte, usbtmcHeaderLen)
	h[0] = msgID
	h[1] = tag
	h[2] = ^tag
	binary.LittleEndian.PutUint32(h[4:8], size)
	h[8] = attr
	return h
}

// encodeDevDepMsgOut frames payload as one DEV_DEP_MSG_OUT transfer,
// padded to a 4-byte boundary.
func encodeDevDepMsgOut(tag byte, payload []byte, eom bool) []byte {
	var attr byte
	if eom {
		attr = attrEOM
	}
	pkt := append(usbtmcHeader(msgDevDepMsgOut, tag, uint32(len(payload)), attr), payload...)
	for len(pkt)%4 != 0 {
		pkt = append(pkt, 0)
	}
	return pkt
}

// encodeRequestDevDepMsgIn asks the device to send up to maxLen bytes.
func encodeRequestDevDepMsgIn(tag byte, maxLen uint32) []byte {
	return usbtmcHeader(msgRequestDevDepMsgIn, tag, maxLen, 0)
}

// decodeDevDepMsgIn checks a DEV_DEP_MSG_IN transfer against tag and
// returns its payload.
func decodeDevDepMsgIn(tag byte, pkt []byte) ([]byte, bool, error) {
	if len(pkt) < usbtmcHeaderLen {
		return nil, false, fmt.Errorf("usbtmc: short transfer (%d bytes)", len(pkt))
	}
	if pkt[0] != msgDevDepMsgIn {
		return nil, false, fmt.Errorf("usbtmc: unexpected message id %d", pkt[0])
	}
	if pkt[1] != tag || pkt[2] != ^tag {
		return nil, false, fmt.Errorf("usbtmc: tag mismatch: got %d want %d", pkt[1], tag)
	}
	size := binary.LittleEndian.Uint32(pkt[4:8])
	data := pkt[usbtmcHeaderLen:]
	if uint32(len(data)) < size {
		return nil, false, fmt.Errorf("usbtmc: transfer holds %d of %d bytes", len(data), size)
	}
	return data[:size], pkt[8]&attrEOM != 0, nil
}
