package delta_test

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"folio/internal/delta"
)

func roundTrip(t *testing.T, base, target []byte) delta.Delta {
	t.Helper()
	d := delta.Calculate(base, target)
	got, err := delta.Apply(base, d)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !bytes.Equal(got, target) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, target)
	}
	return d
}

func TestRoundTripEdits(t *testing.T) {
	cases := []struct {
		name   string
		base   string
		target string
	}{
		{"insertion_only", "ABC", "ABXYZC"},
		{"deletion_only", "ABCDEF", "ACF"},
		{"full_replacement", "Hello World", "Hello Universe"},
		{"identical", "same content", "same content"},
		{"empty_base", "", "fresh document"},
		{"empty_target", "doomed content", ""},
		{"both_empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			roundTrip(t, []byte(tc.base), []byte(tc.target))
		})
	}
}

func TestRoundTripLargeBuffers(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := make([]byte, 64*1024)
	rng.Read(base)

	// Splice an edit into the middle and drop a range near the end, the
	// shape of a typical incremental document edit.
	target := append([]byte(nil), base[:20_000]...)
	target = append(target, []byte("inserted annotation payload")...)
	target = append(target, base[20_000:50_000]...)
	target = append(target, base[55_000:]...)

	d := roundTrip(t, base, target)
	literal := 0
	for _, op := range d.Ops {
		if op.Kind == delta.OpInsert {
			literal += len(op.Data)
		}
	}
	if literal >= len(target)/2 {
		t.Fatalf("delta should reuse the base for a small edit; %d of %d bytes literal", literal, len(target))
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	base := bytes.Repeat([]byte("abcdefgh"), 100)
	target := append([]byte("prefix-"), base...)
	a := delta.Calculate(base, target)
	b := delta.Calculate(base, target)
	if len(a.Ops) != len(b.Ops) {
		t.Fatalf("op counts differ: %d vs %d", len(a.Ops), len(b.Ops))
	}
	for i := range a.Ops {
		if a.Ops[i].Kind != b.Ops[i].Kind || a.Ops[i].Offset != b.Ops[i].Offset ||
			a.Ops[i].Length != b.Ops[i].Length || !bytes.Equal(a.Ops[i].Data, b.Ops[i].Data) {
			t.Fatalf("op %d differs between runs", i)
		}
	}
}

func TestApplyRejectsOutOfBounds(t *testing.T) {
	base := []byte("short base")
	d := delta.Delta{
		BaseLen:   int64(len(base)),
		TargetLen: 100,
		Ops:       []delta.Op{{Kind: delta.OpCopy, Offset: 0, Length: 100}},
	}
	if _, err := delta.Apply(base, d); !errors.Is(err, delta.ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestApplyRejectsNegativeOffset(t *testing.T) {
	base := []byte("0123456789")
	d := delta.Delta{
		BaseLen:   10,
		TargetLen: 5,
		Ops:       []delta.Op{{Kind: delta.OpCopy, Offset: -1, Length: 5}},
	}
	if _, err := delta.Apply(base, d); !errors.Is(err, delta.ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestApplyRejectsWrongBase(t *testing.T) {
	base := []byte("the original")
	target := []byte("the edited original")
	d := delta.Calculate(base, target)
	if _, err := delta.Apply([]byte("a different base"), d); !errors.Is(err, delta.ErrMismatch) {
		t.Fatalf("expected ErrMismatch for wrong base, got %v", err)
	}
}

func TestApplyRejectsUnknownOpKind(t *testing.T) {
	d := delta.Delta{Ops: []delta.Op{{Kind: delta.OpKind(99)}}}
	if _, err := delta.Apply(nil, d); !errors.Is(err, delta.ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestApplyRejectsChecksumFailure(t *testing.T) {
	base := []byte("checksummed content")
	d := delta.Calculate(base, base)
	d.TargetCRC++
	if _, err := delta.Apply(base, d); !errors.Is(err, delta.ErrMismatch) {
		t.Fatalf("expected checksum ErrMismatch, got %v", err)
	}
}
