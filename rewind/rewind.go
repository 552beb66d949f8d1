// Package rewind keeps a bounded delta log of serialized core state,
// captured once per frame, so playback can seek backward with frame
// granularity.
//
// Snapshots are viewed as arrays of 32-bit words. Each frame stores
// only the sparse XOR difference against the previous snapshot;
// because XOR is self-inverse, re-applying the newest delta to the
// current snapshot reconstructs the prior one exactly. Space is
// bounded by maxFrames * state size in the dense worst case; observed
// density is a few percent.
package rewind

import (
	"math"
	"sync"
	"unsafe"

	log "github.com/sirupsen/logrus"
)

// deltaPair records one changed word between consecutive snapshots.
type deltaPair struct {
	index uint32
	xor   uint32
}

// Buffer is the per-frame delta ring. Capture and Rewind are mutually
// exclusive; the caller may invoke them from different goroutines.
type Buffer struct {
	mu        sync.Mutex
	lastState []uint32 // snapshot at current time T
	scratch   []uint32 // reused serialization target
	ring      [][]deltaPair
	head      int // next write slot
	count     int
	size      int // serialized state length in bytes
	maxFrames int
}

// New creates a delta log for states of serializeSize bytes, holding
// roughly sixty seconds of play at the given framerate. Returns nil
// when serializeSize is zero: rewind is unsupported for that core.
func New(serializeSize int, fps float64) *Buffer {
	if serializeSize <= 0 || fps <= 0 {
		return nil
	}
	maxFrames := int(math.Round(60 * fps))
	if maxFrames <= 0 {
		return nil
	}
	words := (serializeSize + 3) / 4
	return &Buffer{
		lastState: make([]uint32, words),
		scratch:   make([]uint32, words),
		ring:      make([][]deltaPair, maxFrames),
		size:      serializeSize,
		maxFrames: maxFrames,
	}
}

// wordBytes views a word slice as the byte buffer handed to the
// core's serialize/unserialize entry points.
func wordBytes(w []uint32, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&w[0])), size)
}

// Prime takes the initial full snapshot right after a game loads.
// The delta log stays empty; deltas accumulate from the next Capture.
func (b *Buffer) Prime(serialize func(buf []byte) bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !serialize(wordBytes(b.lastState, b.size)) {
		log.Error("core failed to serialize initial state")
		return false
	}
	return true
}

// Capture snapshots the core after a frame and appends the XOR delta
// against the previous snapshot to the ring, evicting the oldest
// entries past capacity. A core that claims serialization support but
// fails mid-run is logged and the capture is skipped, leaving the log
// untouched.
func (b *Buffer) Capture(serialize func(buf []byte) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !serialize(wordBytes(b.scratch, b.size)) {
		log.Error("core claimed it could serialize, but failed")
		return
	}

	var delta []deltaPair
	for i, w := range b.scratch {
		if x := b.lastState[i] ^ w; x != 0 {
			delta = append(delta, deltaPair{index: uint32(i), xor: x})
		}
	}

	// The scratch buffer becomes the new current snapshot; the old
	// snapshot's storage is recycled as next frame's scratch.
	b.lastState, b.scratch = b.scratch, b.lastState

	b.ring[b.head] = delta
	b.head = (b.head + 1) % b.maxFrames
	if b.count < b.maxFrames {
		b.count++
	}
}

// Rewind walks back up to frames deltas, newest first, XOR-applying
// each into the current snapshot. If at least one frame was rolled
// back, the reconstructed snapshot is re-installed into the core via
// restore. Returns the number of frames actually rewound.
func (b *Buffer) Rewind(frames int, restore func(buf []byte) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	rewound := 0
	for frames > 0 && b.count > 0 {
		b.head = (b.head - 1 + b.maxFrames) % b.maxFrames
		for _, d := range b.ring[b.head] {
			b.lastState[d.index] ^= d.xor
		}
		b.ring[b.head] = nil
		b.count--
		rewound++
		frames--
	}

	if rewound > 0 {
		if !restore(wordBytes(b.lastState, b.size)) {
			log.Error("core failed to restore rewound state")
		}
	}
	return rewound
}

// Available returns how many frames of rewind are currently banked.
func (b *Buffer) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// MaxAvailable returns the ceiling on banked frames.
func (b *Buffer) MaxAvailable() int {
	return b.maxFrames
}

// Reset drops all banked deltas, keeping the current snapshot.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.ring {
		b.ring[i] = nil
	}
	b.head = 0
	b.count = 0
}
