package codec

import (
	"testing"

	"github.com/ssargent/freyja-knn/pkg/distlist"
)

func TestIntSerializerRoundTrip(t *testing.T) {
	var s IntSerializer
	b := s.Encode(42)
	if len(b) != s.FixedSize() {
		t.Fatalf("expected %d bytes, got %d", s.FixedSize(), len(b))
	}
	v, err := s.Decode(b)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestIntSerializerDecodeWrongSize(t *testing.T) {
	var s IntSerializer
	if _, err := s.Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding truncated key")
	}
}

func TestDistanceListSerializerRoundTrip(t *testing.T) {
	dl := distlist.New(7, 3)
	dl.AddDistance(2, 3.5)
	dl.AddDistance(3, 1.25)
	dl.AddDistance(4, 9.0)

	var s DistanceListSerializer
	encoded := s.Encode(dl)

	decoded, err := s.Decode(encoded, dl.K())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded.OwnerID() != dl.OwnerID() {
		t.Fatalf("owner id mismatch: %d vs %d", decoded.OwnerID(), dl.OwnerID())
	}
	if decoded.Len() != dl.Len() {
		t.Fatalf("length mismatch: %d vs %d", decoded.Len(), dl.Len())
	}
	want := dl.Entries()
	got := decoded.Entries()
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("entry %d mismatch: want %+v got %+v", i, want[i], got[i])
		}
	}
}

func TestDistanceListSerializerEmptyList(t *testing.T) {
	dl := distlist.New(1, 5)
	var s DistanceListSerializer
	encoded := s.Encode(dl)

	decoded, err := s.Decode(encoded, 5)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Len() != 0 {
		t.Fatalf("expected empty list, got len %d", decoded.Len())
	}
}

func TestDistanceListSerializerTruncatedPayload(t *testing.T) {
	var s DistanceListSerializer
	if _, err := s.Decode([]byte{1, 2, 3}, 1); err == nil {
		t.Fatal("expected error decoding truncated payload")
	}
}
