package delta

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// Wire frame: 4-byte magic, then a snappy block holding a varint-encoded
// header (base length, target length, target CRC, op count) followed by the
// ops. Copy ops encode offset and length; insert ops encode a
// length-prefixed literal.
var frameMagic = [4]byte{'F', 'D', 'L', '1'}

// Encode serializes a delta into its compressed wire frame.
func Encode(d Delta) ([]byte, error) {
	if d.BaseLen < 0 || d.TargetLen < 0 {
		return nil, fmt.Errorf("%w: negative frame length", ErrMismatch)
	}

	var payload bytes.Buffer
	putUvarint(&payload, uint64(d.BaseLen))
	putUvarint(&payload, uint64(d.TargetLen))
	putUvarint(&payload, uint64(d.TargetCRC))
	putUvarint(&payload, uint64(len(d.Ops)))
	for idx, op := range d.Ops {
		payload.WriteByte(byte(op.Kind))
		switch op.Kind {
		case OpCopy:
			if op.Offset < 0 || op.Length < 0 {
				return nil, fmt.Errorf("%w: copy op %d has negative range", ErrMismatch, idx)
			}
			putUvarint(&payload, uint64(op.Offset))
			putUvarint(&payload, uint64(op.Length))
		case OpInsert:
			putUvarint(&payload, uint64(len(op.Data)))
			payload.Write(op.Data)
		default:
			return nil, fmt.Errorf("%w: unknown op kind %d at index %d", ErrMismatch, op.Kind, idx)
		}
	}

	compressed := snappy.Encode(nil, payload.Bytes())
	out := make([]byte, 0, 4+len(compressed))
	out = append(out, frameMagic[:]...)
	out = append(out, compressed...)
	return out, nil
}

// Decode parses a compressed wire frame back into a Delta.
func Decode(frame []byte) (Delta, error) {
	if len(frame) < 4 || !bytes.Equal(frame[:4], frameMagic[:]) {
		return Delta{}, fmt.Errorf("%w: bad frame magic", ErrMismatch)
	}
	payload, err := snappy.Decode(nil, frame[4:])
	if err != nil {
		return Delta{}, fmt.Errorf("%w: decompress frame: %v", ErrMismatch, err)
	}

	r := bytes.NewReader(payload)
	baseLen, err := binary.ReadUvarint(r)
	if err != nil {
		return Delta{}, truncated(err)
	}
	targetLen, err := binary.ReadUvarint(r)
	if err != nil {
		return Delta{}, truncated(err)
	}
	crc, err := binary.ReadUvarint(r)
	if err != nil {
		return Delta{}, truncated(err)
	}
	if crc > 0xFFFFFFFF {
		return Delta{}, fmt.Errorf("%w: checksum out of range", ErrMismatch)
	}
	opCount, err := binary.ReadUvarint(r)
	if err != nil {
		return Delta{}, truncated(err)
	}
	if opCount > uint64(len(payload)) {
		return Delta{}, fmt.Errorf("%w: implausible op count %d", ErrMismatch, opCount)
	}

	d := Delta{
		BaseLen:   int64(baseLen),
		TargetLen: int64(targetLen),
		TargetCRC: uint32(crc),
		Ops:       make([]Op, 0, opCount),
	}
	for i := uint64(0); i < opCount; i++ {
		kindByte, err := r.ReadByte()
		if err != nil {
			return Delta{}, truncated(err)
		}
		switch OpKind(kindByte) {
		case OpCopy:
			offset, err := binary.ReadUvarint(r)
			if err != nil {
				return Delta{}, truncated(err)
			}
			length, err := binary.ReadUvarint(r)
			if err != nil {
				return Delta{}, truncated(err)
			}
			d.Ops = append(d.Ops, Op{Kind: OpCopy, Offset: int64(offset), Length: int64(length)})
		case OpInsert:
			size, err := binary.ReadUvarint(r)
			if err != nil {
				return Delta{}, truncated(err)
			}
			if size > uint64(r.Len()) {
				return Delta{}, fmt.Errorf("%w: insert op %d claims %d bytes with %d remaining", ErrMismatch, i, size, r.Len())
			}
			data := make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return Delta{}, truncated(err)
			}
			d.Ops = append(d.Ops, Op{Kind: OpInsert, Data: data})
		default:
			return Delta{}, fmt.Errorf("%w: unknown op kind %d at index %d", ErrMismatch, kindByte, i)
		}
	}
	if r.Len() != 0 {
		return Delta{}, fmt.Errorf("%w: %d trailing bytes after op list", ErrMismatch, r.Len())
	}
	return d, nil
}

func truncated(err error) error {
	return fmt.Errorf("%w: truncated frame: %v", ErrMismatch, err)
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}
