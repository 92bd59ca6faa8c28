package delta

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
)

// ErrMismatch indicates a delta that cannot be applied to the given base:
// an op referencing bytes outside the base, a malformed op sequence, or a
// reconstruction that fails the target checksum. Apply never truncates or
// returns partial output; it fails with this error instead.
var ErrMismatch = errors.New("delta mismatch")

// OpKind discriminates edit script instructions.
type OpKind byte

const (
	// OpCopy copies Length bytes starting at Offset from the base buffer.
	OpCopy OpKind = iota + 1
	// OpInsert appends the literal Data bytes.
	OpInsert
)

// Op is a single instruction of an edit script.
type Op struct {
	Kind   OpKind
	Offset int64
	Length int64
	Data   []byte
}

// Delta is an ordered edit script that reconstructs a target buffer from a
// base buffer, together with enough framing for Apply to verify the result.
type Delta struct {
	BaseLen   int64
	TargetLen int64
	TargetCRC uint32
	Ops       []Op
}

// blockSize is the granularity of base matching. Edits smaller than a block
// still round-trip; they just encode as literals.
const blockSize = 32

// Calculate produces a deterministic edit script that reconstructs target
// from base. The script is correct for all inputs and compact for
// small-to-medium edits; it is not guaranteed to be minimal.
func Calculate(base, target []byte) Delta {
	d := Delta{
		BaseLen:   int64(len(base)),
		TargetLen: int64(len(target)),
		TargetCRC: crc32.ChecksumIEEE(target),
	}
	if len(target) == 0 {
		return d
	}
	if len(base) < blockSize {
		d.Ops = []Op{{Kind: OpInsert, Data: cloneBytes(target)}}
		return d
	}

	index := buildBlockIndex(base)

	var ops []Op
	litStart := 0
	i := 0
	for i+blockSize <= len(target) {
		candidates := index[blockHash(target[i:i+blockSize])]
		matchOff, matchLen := -1, 0
		for _, off := range candidates {
			if !bytes.Equal(base[off:off+blockSize], target[i:i+blockSize]) {
				continue
			}
			length := blockSize
			for off+length < len(base) && i+length < len(target) && base[off+length] == target[i+length] {
				length++
			}
			if length > matchLen {
				matchOff, matchLen = off, length
			}
		}
		if matchLen == 0 {
			i++
			continue
		}
		if litStart < i {
			ops = append(ops, Op{Kind: OpInsert, Data: cloneBytes(target[litStart:i])})
		}
		ops = appendCopy(ops, int64(matchOff), int64(matchLen))
		i += matchLen
		litStart = i
	}
	if litStart < len(target) {
		ops = append(ops, Op{Kind: OpInsert, Data: cloneBytes(target[litStart:])})
	}

	d.Ops = ops
	return d
}

// Apply replays the edit script against base and returns the reconstructed
// target. Any out-of-bounds reference, malformed op, or checksum failure is
// reported as ErrMismatch.
func Apply(base []byte, d Delta) ([]byte, error) {
	if d.BaseLen != int64(len(base)) {
		return nil, fmt.Errorf("%w: base length %d does not match delta base length %d", ErrMismatch, len(base), d.BaseLen)
	}
	if d.TargetLen < 0 {
		return nil, fmt.Errorf("%w: negative target length %d", ErrMismatch, d.TargetLen)
	}

	out := make([]byte, 0, d.TargetLen)
	for idx, op := range d.Ops {
		switch op.Kind {
		case OpCopy:
			if op.Offset < 0 || op.Length < 0 || op.Offset+op.Length > int64(len(base)) {
				return nil, fmt.Errorf("%w: copy op %d range [%d,%d) exceeds base of %d bytes",
					ErrMismatch, idx, op.Offset, op.Offset+op.Length, len(base))
			}
			out = append(out, base[op.Offset:op.Offset+op.Length]...)
		case OpInsert:
			out = append(out, op.Data...)
		default:
			return nil, fmt.Errorf("%w: unknown op kind %d at index %d", ErrMismatch, op.Kind, idx)
		}
	}

	if int64(len(out)) != d.TargetLen {
		return nil, fmt.Errorf("%w: reconstructed %d bytes, expected %d", ErrMismatch, len(out), d.TargetLen)
	}
	if crc32.ChecksumIEEE(out) != d.TargetCRC {
		return nil, fmt.Errorf("%w: target checksum failed", ErrMismatch)
	}
	return out, nil
}

func appendCopy(ops []Op, offset, length int64) []Op {
	if n := len(ops); n > 0 {
		last := &ops[n-1]
		if last.Kind == OpCopy && last.Offset+last.Length == offset {
			last.Length += length
			return ops
		}
	}
	return append(ops, Op{Kind: OpCopy, Offset: offset, Length: length})
}

func buildBlockIndex(base []byte) map[uint64][]int {
	index := make(map[uint64][]int, len(base)/blockSize+1)
	for off := 0; off+blockSize <= len(base); off += blockSize {
		h := blockHash(base[off : off+blockSize])
		index[h] = append(index[h], off)
	}
	return index
}

// blockHash is FNV-1a over a block. Collisions are resolved by byte
// comparison in Calculate, so only determinism matters here.
func blockHash(block []byte) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for _, b := range block {
		h ^= uint64(b)
		h *= prime64
	}
	return h
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
