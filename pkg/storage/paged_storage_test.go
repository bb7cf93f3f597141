package storage

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestDirectStorageAppendAndReadAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "direct.dat")
	s, err := OpenDirect(path)
	if err != nil {
		t.Fatalf("open direct storage: %v", err)
	}
	defer s.Close()

	off1, err := s.Append([]byte("hello"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	off2, err := s.Append([]byte("world!"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if off1 != 0 || off2 != 5 {
		t.Fatalf("unexpected offsets: %d, %d", off1, off2)
	}

	got, err := s.ReadAt(off2, 6)
	if err != nil {
		t.Fatalf("read at: %v", err)
	}
	if !bytes.Equal(got, []byte("world!")) {
		t.Fatalf("expected world!, got %q", got)
	}
}

func TestDirectStorageWriteAtOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "direct.dat")
	s, err := OpenDirect(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.Append([]byte("aaaaa")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.WriteAt(1, []byte("bb")); err != nil {
		t.Fatalf("write at: %v", err)
	}
	got, err := s.ReadAt(0, 5)
	if err != nil {
		t.Fatalf("read at: %v", err)
	}
	if !bytes.Equal(got, []byte("abbaa")) {
		t.Fatalf("expected abbaa, got %q", got)
	}
}

func TestBufferedStorageReadsBackDirtyPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dir.dat")
	s, err := OpenBuffered(path)
	if err != nil {
		t.Fatalf("open buffered storage: %v", err)
	}
	defer s.Close()

	off, err := s.Append([]byte("payload"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := s.ReadAt(off, len("payload"))
	if err != nil {
		t.Fatalf("read at: %v", err)
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("expected payload, got %q", got)
	}
}

func TestBufferedStorageDurableAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dir.dat")
	s, err := OpenBuffered(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Append([]byte("durable")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenDirect(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.ReadAt(0, len("durable"))
	if err != nil {
		t.Fatalf("read at: %v", err)
	}
	if !bytes.Equal(got, []byte("durable")) {
		t.Fatalf("expected durable, got %q", got)
	}
}
