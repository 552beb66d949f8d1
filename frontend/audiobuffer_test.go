package frontend

import (
	"io"
	"sync"
	"testing"
)

func TestAudioRingBuffer_BasicWriteRead(t *testing.T) {
	rb := NewAudioRingBuffer(16)

	data := []byte{1, 2, 3, 4, 5}
	rb.Write(data)

	if rb.Buffered() != 5 {
		t.Fatalf("expected 5 buffered bytes, got %d", rb.Buffered())
	}

	out := make([]byte, 5)
	n, err := rb.Read(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes read, got %d", n)
	}
	for i, b := range out {
		if b != data[i] {
			t.Fatalf("byte %d: expected %d, got %d", i, data[i], b)
		}
	}
}

func TestAudioRingBuffer_Overflow(t *testing.T) {
	rb := NewAudioRingBuffer(8)

	// Write 6 bytes
	rb.Write([]byte{1, 2, 3, 4, 5, 6})

	// Write 5 more (overflows by 3, drops oldest 3)
	rb.Write([]byte{7, 8, 9, 10, 11})

	if rb.Buffered() != 8 {
		t.Fatalf("expected 8 buffered bytes, got %d", rb.Buffered())
	}

	out := make([]byte, 8)
	n, _ := rb.Read(out)
	if n != 8 {
		t.Fatalf("expected 8 bytes, got %d", n)
	}
	// Should have: 4, 5, 6, 7, 8, 9, 10, 11
	expected := []byte{4, 5, 6, 7, 8, 9, 10, 11}
	for i, b := range out {
		if b != expected[i] {
			t.Fatalf("byte %d: expected %d, got %d", i, expected[i], b)
		}
	}
}

func TestAudioRingBuffer_OverflowLargerThanCapacity(t *testing.T) {
	rb := NewAudioRingBuffer(4)

	// Write more data than capacity
	rb.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})

	if rb.Buffered() != 4 {
		t.Fatalf("expected 4 buffered bytes, got %d", rb.Buffered())
	}

	out := make([]byte, 4)
	n, _ := rb.Read(out)
	if n != 4 {
		t.Fatalf("expected 4 bytes, got %d", n)
	}
	// Should have the last 4 bytes
	expected := []byte{5, 6, 7, 8}
	for i, b := range out {
		if b != expected[i] {
			t.Fatalf("byte %d: expected %d, got %d", i, expected[i], b)
		}
	}
}

func TestAudioRingBuffer_Clear(t *testing.T) {
	rb := NewAudioRingBuffer(16)
	rb.Write([]byte{1, 2, 3, 4})
	rb.Clear()
	if rb.Buffered() != 0 {
		t.Fatalf("expected 0 buffered after clear, got %d", rb.Buffered())
	}
}

func TestAudioRingBuffer_Close(t *testing.T) {
	rb := NewAudioRingBuffer(16)
	rb.Write([]byte{1, 2})
	rb.Close()

	// Should still read remaining data
	out := make([]byte, 2)
	n, err := rb.Read(out)
	if err != nil {
		t.Fatalf("expected no error reading remaining data, got %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 bytes, got %d", n)
	}

	// Now should get EOF
	_, err = rb.Read(out)
	if err != io.EOF {
		t.Fatalf("expected io.EOF after close and drain, got %v", err)
	}
}

func TestAudioRingBuffer_CloseUnblocksReader(t *testing.T) {
	rb := NewAudioRingBuffer(16)

	var wg sync.WaitGroup
	wg.Add(1)
	var readErr error
	go func() {
		defer wg.Done()
		_, readErr = rb.Read(make([]byte, 4))
	}()

	rb.Close()
	wg.Wait()

	if readErr != io.EOF {
		t.Fatalf("expected io.EOF from unblocked reader, got %v", readErr)
	}
}

func TestAudioRingBuffer_WrapAround(t *testing.T) {
	rb := NewAudioRingBuffer(8)

	rb.Write([]byte{1, 2, 3, 4, 5, 6})
	out := make([]byte, 4)
	rb.Read(out)

	// Write wraps around the end of the backing array
	rb.Write([]byte{7, 8, 9, 10})
	if rb.Buffered() != 6 {
		t.Fatalf("expected 6 buffered, got %d", rb.Buffered())
	}

	out = make([]byte, 6)
	n, _ := rb.Read(out)
	if n != 6 {
		t.Fatalf("expected 6 bytes, got %d", n)
	}
	expected := []byte{5, 6, 7, 8, 9, 10}
	for i, b := range out {
		if b != expected[i] {
			t.Fatalf("byte %d: expected %d, got %d", i, expected[i], b)
		}
	}
}
