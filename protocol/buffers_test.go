package protocol

import "testing"

func TestScratchOutputPatch(t *testing.T) {
	scratch := NewScratchOutput()

	scratch.Output([]byte{0, 7})
	scratch.Output([]byte{1, 2, 3})
	scratch.Update(0, byte(scratch.CurPosition()))

	result := scratch.Result()
	if len(result) != 5 || result[0] != 5 {
		t.Errorf("Expected patched length prefix 5, got %v", result)
	}
	if since := scratch.DataSince(2); len(since) != 3 || since[0] != 1 {
		t.Errorf("Unexpected DataSince(2): %v", since)
	}

	scratch.Reset()
	if scratch.CurPosition() != 0 {
		t.Errorf("Expected position 0 after reset, got %d", scratch.CurPosition())
	}
}

func TestFifoBufferWrapAround(t *testing.T) {
	fifo := NewFifoBuffer(8)

	if n := fifo.Write([]byte("abcdef")); n != 6 {
		t.Fatalf("Expected 6 bytes written, got %d", n)
	}
	fifo.Pop(4)
	if n := fifo.Write([]byte("ghij")); n != 4 {
		t.Fatalf("Expected 4 bytes written after pop, got %d", n)
	}

	if got := string(fifo.Data()); got != "efghij" {
		t.Errorf("Expected contiguous data across the wrap, got %q", got)
	}
	if fifo.Free() != 1 {
		t.Errorf("Expected 1 byte free, got %d", fifo.Free())
	}
	if n := fifo.Write([]byte("xyz")); n != 1 {
		t.Errorf("Expected write to stop when full, wrote %d", n)
	}

	buf := make([]byte, 16)
	if n := fifo.Read(buf); n != 7 || string(buf[:n]) != "efghijx" {
		t.Errorf("Unexpected read %q", buf[:n])
	}
	if !fifo.IsEmpty() {
		t.Error("Expected empty buffer after full read")
	}
}

func TestFifoBufferNextLine(t *testing.T) {
	fifo := NewFifoBuffer(64)

	fifo.Write([]byte("status\r\nwidth 60\nlen"))

	testCases := []string{"status", "width 60"}
	for _, expected := range testCases {
		line, ok := fifo.NextLine()
		if !ok || line != expected {
			t.Errorf("Expected line %q, got %q (ok=%v)", expected, line, ok)
		}
	}

	if line, ok := fifo.NextLine(); ok {
		t.Errorf("Partial line should wait for its terminator, got %q", line)
	}

	fifo.Write([]byte("gth 5000\n"))
	if line, ok := fifo.NextLine(); !ok || line != "length 5000" {
		t.Errorf("Expected completed line, got %q (ok=%v)", line, ok)
	}
	if !fifo.IsEmpty() {
		t.Errorf("Expected buffer drained, %d bytes left", fifo.Available())
	}
}

func TestFifoBufferNextLineOverflow(t *testing.T) {
	fifo := NewFifoBuffer(8)
	fifo.Write([]byte("abcdefghij"))

	line, ok := fifo.NextLine()
	if !ok || line != "abcdefg" {
		t.Errorf("Expected full buffer flushed as a line, got %q (ok=%v)", line, ok)
	}
}
