package scrubber

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestReader_ScrubsAcrossReads(t *testing.T) {
	src := io.NopCloser(iotest.OneByteReader(strings.NewReader("foo\n<pre>\nbar\n</pre>\nbaz\n")))
	got, err := io.ReadAll(NewReader(src, NewContext(Options{})))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "foo<pre>\nbar\n</pre>baz" {
		t.Errorf("output = %q", got)
	}
}

func TestReader_SkipsEmptyChunks(t *testing.T) {
	// Every chunk but the last scrubs to nothing.
	src := io.NopCloser(iotest.HalfReader(strings.NewReader("\n\r\n\r\n\n\r\nx")))
	r := NewReader(src, NewContext(Options{}))

	buf := make([]byte, 4)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf[:n]) != "x" {
		t.Errorf("read = %q, want %q", buf[:n], "x")
	}
}

func TestReader_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	src := io.NopCloser(iotest.ErrReader(boom))
	_, err := io.ReadAll(NewReader(src, NewContext(Options{})))
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestReader_Close(t *testing.T) {
	src := &closeRecorder{Reader: strings.NewReader("")}
	r := NewReader(src, NewContext(Options{}))
	if err := r.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !src.closed {
		t.Error("underlying body not closed")
	}
}

func TestReader_ZeroLengthRead(t *testing.T) {
	r := NewReader(io.NopCloser(strings.NewReader("a")), NewContext(Options{}))
	n, err := r.Read(nil)
	if n != 0 || err != nil {
		t.Errorf("Read(nil) = %d, %v; want 0, nil", n, err)
	}
}

type stalledReader struct{ reads int }

func (s *stalledReader) Read([]byte) (int, error) {
	s.reads++
	return 0, nil
}

func TestReader_StalledBody(t *testing.T) {
	src := &stalledReader{}
	r := NewReader(io.NopCloser(src), NewContext(Options{}))

	n, err := r.Read(make([]byte, 8))
	if n != 0 || !errors.Is(err, io.ErrNoProgress) {
		t.Errorf("Read = %d, %v; want 0, %v", n, err, io.ErrNoProgress)
	}
	if src.reads != maxConsecutiveEmptyReads {
		t.Errorf("underlying reads = %d, want %d", src.reads, maxConsecutiveEmptyReads)
	}
}
