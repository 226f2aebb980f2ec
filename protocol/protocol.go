// Package protocol implements the compact binary records the winder keeps in
// non-volatile storage and the byte buffers used by the serial console.
package protocol

import "errors"

// Record framing
const (
	RecordMax     = 64 // Maximum encoded record size
	RecordMin     = 4  // Length + version + CRC
	RecordHeader  = 2  // Length and version bytes
	RecordTrailer = 2  // CRC16, high byte first
)

var (
	ErrRecordShort  = errors.New("record truncated")
	ErrRecordLength = errors.New("record length mismatch")
	ErrRecordCRC    = errors.New("record CRC mismatch")
	ErrRecordFull   = errors.New("record too large")
)

// Record is one versioned list of integers
type Record struct {
	Version uint8
	Values  []int32
}

// EncodeRecord frames a record as length, version, VLQ values and CRC16
func EncodeRecord(r Record) ([]byte, error) {
	output := NewScratchOutput()
	output.Output([]byte{0, r.Version})
	for _, v := range r.Values {
		EncodeVLQInt(output, v)
	}
	if output.CurPosition()+RecordTrailer > RecordMax {
		return nil, ErrRecordFull
	}
	output.Update(0, byte(output.CurPosition()+RecordTrailer))

	crc := CRC16(output.Result())
	output.Output([]byte{byte(crc >> 8), byte(crc & 0xFF)})

	out := make([]byte, output.CurPosition())
	copy(out, output.Result())
	return out, nil
}

// DecodeRecord validates the frame and returns the record it holds
func DecodeRecord(data []byte) (Record, error) {
	if len(data) < RecordMin {
		return Record{}, ErrRecordShort
	}
	if int(data[0]) != len(data) {
		return Record{}, ErrRecordLength
	}

	body := data[:len(data)-RecordTrailer]
	crc := uint16(data[len(data)-2])<<8 | uint16(data[len(data)-1])
	if CRC16(body) != crc {
		return Record{}, ErrRecordCRC
	}

	r := Record{Version: body[1]}
	payload := body[RecordHeader:]
	for len(payload) > 0 {
		v, err := DecodeVLQInt(&payload)
		if err != nil {
			return Record{}, err
		}
		r.Values = append(r.Values, v)
	}
	return r, nil
}
