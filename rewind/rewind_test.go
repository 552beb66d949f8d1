package rewind

import (
	"bytes"
	"math"
	"testing"
)

// fakeCore simulates a serializable core: a fixed-size state mutated
// once per "frame".
type fakeCore struct {
	state []byte
	frame uint32
}

func newFakeCore(size int) *fakeCore {
	return &fakeCore{state: make([]byte, size)}
}

// step mutates a few bytes, imitating the sparse per-frame changes of
// real cores.
func (c *fakeCore) step() {
	c.frame++
	c.state[int(c.frame)%len(c.state)] = byte(c.frame)
	c.state[0] = byte(c.frame)
	c.state[len(c.state)-1] = byte(c.frame >> 8)
}

func (c *fakeCore) serialize(buf []byte) bool {
	copy(buf, c.state)
	return true
}

func (c *fakeCore) restore(buf []byte) bool {
	copy(c.state, buf)
	return true
}

func (c *fakeCore) snapshot() []byte {
	out := make([]byte, len(c.state))
	copy(out, c.state)
	return out
}

func TestNewUnsupported(t *testing.T) {
	if New(0, 60) != nil {
		t.Error("serialize size 0 should disable rewind")
	}
	if New(-1, 60) != nil {
		t.Error("negative serialize size should disable rewind")
	}
	if New(128, 0) != nil {
		t.Error("zero fps should disable rewind")
	}
}

func TestMaxFramesIsSixtySecondsOfPlay(t *testing.T) {
	tests := []struct {
		fps      float64
		expected int
	}{
		{60, 3600},
		{60.0988, int(math.Round(60 * 60.0988))},
		{50, 3000},
		{5, 300},
	}
	for _, tt := range tests {
		b := New(128, tt.fps)
		if b == nil {
			t.Fatalf("fps %f: unexpected nil buffer", tt.fps)
		}
		if b.MaxAvailable() != tt.expected {
			t.Errorf("fps %f: max = %d, want %d", tt.fps, b.MaxAvailable(), tt.expected)
		}
	}
}

func TestCaptureRewindRoundTrip(t *testing.T) {
	core := newFakeCore(64)
	b := New(64, 60)
	if !b.Prime(core.serialize) {
		t.Fatal("prime failed")
	}

	// Record the state before each frame so rewind targets can be
	// checked byte for byte.
	var history [][]byte
	for i := 0; i < 10; i++ {
		history = append(history, core.snapshot())
		core.step()
		b.Capture(core.serialize)
	}

	if b.Available() != 10 {
		t.Fatalf("available = %d, want 10", b.Available())
	}

	// Rewind 4 frames: state must match what it was before frame 6.
	if got := b.Rewind(4, core.restore); got != 4 {
		t.Fatalf("rewound %d, want 4", got)
	}
	if b.Available() != 6 {
		t.Errorf("available = %d, want 6", b.Available())
	}
	if !bytes.Equal(core.state, history[6]) {
		t.Error("state after rewind(4) does not match frame 6")
	}

	// Rewind the rest: back to the primed initial state.
	if got := b.Rewind(100, core.restore); got != 6 {
		t.Fatalf("rewound %d, want 6", got)
	}
	if b.Available() != 0 {
		t.Errorf("available = %d, want 0", b.Available())
	}
	if !bytes.Equal(core.state, history[0]) {
		t.Error("state after full rewind does not match initial state")
	}
}

func TestRewindEmpty(t *testing.T) {
	core := newFakeCore(32)
	b := New(32, 60)
	b.Prime(core.serialize)

	restored := false
	got := b.Rewind(5, func(buf []byte) bool {
		restored = true
		return true
	})
	if got != 0 {
		t.Errorf("rewound %d from empty log, want 0", got)
	}
	if restored {
		t.Error("restore must not run when nothing was rewound")
	}
}

func TestRingNeverExceedsMaxFrames(t *testing.T) {
	core := newFakeCore(16)
	b := New(16, 5) // max 300 frames
	b.Prime(core.serialize)

	for i := 0; i < 700; i++ {
		core.step()
		b.Capture(core.serialize)
		if b.Available() > b.MaxAvailable() {
			t.Fatalf("frame %d: available %d exceeds max %d", i, b.Available(), b.MaxAvailable())
		}
	}
	if b.Available() != b.MaxAvailable() {
		t.Errorf("available = %d, want full ring %d", b.Available(), b.MaxAvailable())
	}
}

func TestEvictionKeepsNewestFrames(t *testing.T) {
	core := newFakeCore(16)
	b := New(16, 5)
	b.Prime(core.serialize)

	max := b.MaxAvailable()
	var history [][]byte
	for i := 0; i < max+50; i++ {
		history = append(history, core.snapshot())
		core.step()
		b.Capture(core.serialize)
	}

	// A full rewind lands on the oldest retained frame: the one
	// before capture number 50, not the initial state.
	b.Rewind(max+1000, core.restore)
	if !bytes.Equal(core.state, history[50]) {
		t.Error("full rewind should reconstruct the oldest retained frame")
	}
}

func TestDeltaAppliedTwiceIsIdentity(t *testing.T) {
	delta := []deltaPair{{index: 0, xor: 0xdeadbeef}, {index: 3, xor: 0x1}}
	state := []uint32{10, 20, 30, 40}
	want := []uint32{10, 20, 30, 40}

	for i := 0; i < 2; i++ {
		for _, d := range delta {
			state[d.index] ^= d.xor
		}
	}
	for i := range state {
		if state[i] != want[i] {
			t.Fatalf("word %d = %d, want %d", i, state[i], want[i])
		}
	}
}

func TestCaptureSkipsOnSerializeFailure(t *testing.T) {
	core := newFakeCore(32)
	b := New(32, 60)
	b.Prime(core.serialize)

	core.step()
	b.Capture(core.serialize)

	before := b.Available()
	b.Capture(func(buf []byte) bool { return false })
	if b.Available() != before {
		t.Error("failed capture must not grow the log")
	}

	// Captures must keep growing the log after the failed capture.
	core.step()
	b.Capture(core.serialize)
	if b.Available() != before+1 {
		t.Errorf("available = %d, want %d", b.Available(), before+1)
	}
}

func TestOddSerializeSize(t *testing.T) {
	// Sizes that are not word multiples round up to whole words.
	core := newFakeCore(33)
	b := New(33, 60)
	if !b.Prime(core.serialize) {
		t.Fatal("prime failed")
	}

	initial := core.snapshot()
	core.step()
	b.Capture(core.serialize)
	b.Rewind(1, core.restore)
	if !bytes.Equal(core.state, initial) {
		t.Error("round trip failed for odd state size")
	}
}

func TestReset(t *testing.T) {
	core := newFakeCore(32)
	b := New(32, 60)
	b.Prime(core.serialize)

	for i := 0; i < 5; i++ {
		core.step()
		b.Capture(core.serialize)
	}
	b.Reset()
	if b.Available() != 0 {
		t.Errorf("available = %d after reset, want 0", b.Available())
	}
	if got := b.Rewind(3, core.restore); got != 0 {
		t.Errorf("rewound %d after reset, want 0", got)
	}
}
