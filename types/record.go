package types

import (
	"bytes"
	"encoding/binary"
	"errors"

	json "github.com/goccy/go-json"
)

// Record memory layout

// 1. 2-bytes, 0xC4, 0x5E
// 2. 4-bytes, Body length, uint32 (BE)
// 3. N-bytes, Body, JSON marshaled CommandEvent

var (
	ErrInvalidRecord = errors.New("invalid format of record")
)

var (
	recordMagicBytes = []byte{0xC4, 0x5E}
)

// RecordMarshal frames a CommandEvent for the disk queue.
func RecordMarshal(e CommandEvent) (ret []byte, err error) {
	var body []byte
	if body, err = json.Marshal(e); err != nil {
		return
	}

	ret = make([]byte, 2+4+len(body))
	copy(ret, recordMagicBytes)
	binary.BigEndian.PutUint32(ret[2:], uint32(len(body)))
	copy(ret[6:], body)
	return
}

// RecordUnmarshal recovers a CommandEvent from its framed form.
func RecordUnmarshal(b []byte) (e CommandEvent, err error) {
	if len(b) < 6 || !bytes.Equal(recordMagicBytes, b[0:2]) {
		err = ErrInvalidRecord
		return
	}
	bodyLen := int(binary.BigEndian.Uint32(b[2:6]))
	if len(b) < 6+bodyLen {
		err = ErrInvalidRecord
		return
	}
	err = json.Unmarshal(b[6:6+bodyLen], &e)
	return
}
