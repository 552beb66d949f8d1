package frontend

import (
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	log "github.com/sirupsen/logrus"
)

// ringBufferCapacity is ~170ms of stereo 16-bit audio at 48kHz.
const ringBufferCapacity = 32768

// AudioPlayer plays the engine's audio through oto. Samples are
// written into a ring buffer which oto's player drains in a pull
// model. Implements player.AudioSink.
type AudioPlayer struct {
	mu         sync.Mutex
	player     *oto.Player
	ringBuffer *AudioRingBuffer
	volume     float64
	audioBytes []byte // reused int16-to-byte conversion buffer
}

// oto only supports one context per process; it is created on the
// first Start and shared by later sessions.
var (
	otoCtx      *oto.Context
	otoRate     int
	otoInitOnce sync.Once
	otoInitErr  error
)

func ensureOtoContext(sampleRate int) (*oto.Context, error) {
	otoInitOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   50 * time.Millisecond,
		}
		var readyChan chan struct{}
		otoCtx, readyChan, otoInitErr = oto.NewContext(op)
		if otoInitErr != nil {
			return
		}
		otoRate = sampleRate
		<-readyChan
	})
	if otoInitErr != nil {
		return nil, otoInitErr
	}
	if otoRate != sampleRate {
		log.WithFields(log.Fields{
			"want": sampleRate,
			"have": otoRate,
		}).Warn("audio context already opened at a different sample rate")
	}
	return otoCtx, nil
}

// NewAudioPlayer creates an audio sink with the given initial volume
// (0.0 silent, 1.0 normal).
func NewAudioPlayer(volume float64) *AudioPlayer {
	return &AudioPlayer{volume: volume}
}

// Start opens the audio device at the session's sample rate and
// begins draining the ring buffer.
func (a *AudioPlayer) Start(sampleRate int) {
	ctx, err := ensureOtoContext(sampleRate)
	if err != nil {
		log.WithError(err).Error("audio not available")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.ringBuffer = NewAudioRingBuffer(ringBufferCapacity)
	a.player = ctx.NewPlayer(a.ringBuffer)
	a.player.SetVolume(a.volume)
	a.player.Play()
}

// Stop closes the device and drops buffered audio.
func (a *AudioPlayer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ringBuffer != nil {
		a.ringBuffer.Close()
		a.ringBuffer = nil
	}
	if a.player != nil {
		a.player.Close()
		a.player = nil
	}
}

// Pause suspends the device without dropping buffered audio.
func (a *AudioPlayer) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.player != nil {
		a.player.Pause()
	}
}

// Unpause resumes a paused device.
func (a *AudioPlayer) Unpause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.player != nil {
		a.player.Play()
	}
}

// SendFrames queues interleaved stereo samples. The buffer is copied
// before the call returns.
func (a *AudioPlayer) SendFrames(buf []int16, frames int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ringBuffer == nil || frames == 0 {
		return
	}

	samples := buf[:frames*2]
	needed := len(samples) * 2
	if cap(a.audioBytes) < needed {
		a.audioBytes = make([]byte, 0, needed)
	}
	a.audioBytes = a.audioBytes[:0]
	for _, sample := range samples {
		a.audioBytes = append(a.audioBytes, byte(sample), byte(sample>>8))
	}
	a.ringBuffer.Write(a.audioBytes)
}

// ClearQueue flushes buffered audio, e.g. when rewinding.
func (a *AudioPlayer) ClearQueue() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ringBuffer != nil {
		a.ringBuffer.Clear()
	}
}

// SetVolume sets playback volume, clamped to [0,2].
func (a *AudioPlayer) SetVolume(vol float64) {
	if vol < 0 {
		vol = 0
	} else if vol > 2.0 {
		vol = 2.0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.volume = vol
	if a.player != nil {
		a.player.SetVolume(vol)
	}
}

// BufferLevel returns the bytes of audio currently queued.
func (a *AudioPlayer) BufferLevel() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ringBuffer == nil {
		return 0
	}
	n := a.ringBuffer.Buffered()
	if a.player != nil {
		n += a.player.BufferedSize()
	}
	return n
}
