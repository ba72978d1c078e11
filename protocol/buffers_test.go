package protocol

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSliceInputBuffer(t *testing.T) {
	buf := NewSliceInputBuffer([]byte{1, 2, 3, 4, 5})

	if buf.Available() != 5 {
		t.Errorf("Expected 5 bytes available, got %d", buf.Available())
	}

	buf.Pop(2)
	if diff := cmp.Diff([]byte{3, 4, 5}, buf.Data()); diff != "" {
		t.Errorf("Data after Pop(2) mismatch (-want +got):\n%s", diff)
	}

	buf.Pop(10)
	if buf.Available() != 0 {
		t.Errorf("Pop past the end should empty the buffer, got %d", buf.Available())
	}
}

func TestScratchOutput(t *testing.T) {
	scratch := NewScratchOutput()

	scratch.Output([]byte{1, 2, 3})
	if scratch.CurPosition() != 3 {
		t.Errorf("Expected position 3, got %d", scratch.CurPosition())
	}

	scratch.Output([]byte{4, 5})
	scratch.Update(0, 99)
	if diff := cmp.Diff([]byte{99, 2, 3, 4, 5}, scratch.Result()); diff != "" {
		t.Errorf("Result mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]byte{3, 4, 5}, scratch.DataSince(2)); diff != "" {
		t.Errorf("DataSince(2) mismatch (-want +got):\n%s", diff)
	}

	// Update beyond the written data is ignored
	scratch.Update(7, 1)
	if scratch.CurPosition() != 5 {
		t.Errorf("Update past the end moved position to %d", scratch.CurPosition())
	}

	scratch.Reset()
	if scratch.CurPosition() != 0 {
		t.Errorf("After reset, expected position 0, got %d", scratch.CurPosition())
	}
}

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(10)

	if !fifo.IsEmpty() {
		t.Error("New FIFO should be empty")
	}

	if written := fifo.Write([]byte{1, 2, 3, 4, 5}); written != 5 {
		t.Errorf("Expected to write 5 bytes, wrote %d", written)
	}

	readBuf := make([]byte, 3)
	if read := fifo.Read(readBuf); read != 3 {
		t.Errorf("Expected to read 3 bytes, read %d", read)
	}
	if diff := cmp.Diff([]byte{1, 2, 3}, readBuf); diff != "" {
		t.Errorf("Read data mismatch (-want +got):\n%s", diff)
	}

	fifo.Pop(1)
	if fifo.Available() != 1 {
		t.Errorf("After popping 1, expected 1 available, got %d", fifo.Available())
	}

	fifo.Reset()
	if written := fifo.Write(make([]byte, 12)); written != 10 {
		t.Errorf("Expected to write 10 bytes to size-10 FIFO, wrote %d", written)
	}
	if fifo.Free() != 0 {
		t.Errorf("Full FIFO should have no free space, got %d", fifo.Free())
	}
}

func TestFifoBufferCompacts(t *testing.T) {
	fifo := NewFifoBuffer(5)

	fifo.Write([]byte{1, 2, 3, 4})
	fifo.Read(make([]byte, 2))

	// only one slot is left behind the data; the write must compact
	if written := fifo.Write([]byte{5, 6, 7}); written != 3 {
		t.Errorf("Expected to write 3 bytes, wrote %d", written)
	}

	if diff := cmp.Diff([]byte{3, 4, 5, 6, 7}, fifo.Data()); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}
}
