package player

import (
	"github.com/user-none/coreplay/libretro"
)

// VideoSink receives decoded frames from the playback engine. Start
// and Stop bracket a session; Pause/Unpause follow the engine's pause
// state. SendFrame and Tickle are invoked from the frame-pump
// goroutine.
type VideoSink interface {
	Start(fps float64)
	Stop()
	Pause()
	Unpause()
	EnableFullscreen(on bool)

	// SetPixelFormat is the negotiation target for a core's
	// SET_PIXEL_FORMAT query. Reports whether the sink can render the
	// format.
	SetPixelFormat(format libretro.PixelFormat) bool

	// SendFrame delivers one frame. The data slice is only valid for
	// the duration of the call. A nil slice means "reuse the previous
	// frame".
	SendFrame(data []byte, width, height, pitch int)

	// Tickle is poked once per pumped frame.
	Tickle()
}

// AudioSink receives interleaved stereo int16 sample frames. The
// buffer handed to SendFrames is valid only for the duration of the
// call; the sink must copy what it keeps.
type AudioSink interface {
	Start(sampleRate int)
	Stop()
	Pause()
	Unpause()
	SendFrames(buf []int16, frames int)
}

// InputSink answers the core's input state queries. Query is invoked
// synchronously from inside the core's run, on the frame-pump
// goroutine, and must not block.
type InputSink interface {
	Begin()
	Finish()
	Query(port, device, index, id uint32) int16
}

// nullVideo, nullAudio and nullInput stand in for absent sinks so the
// engine never nil-checks on the frame path.

type nullVideo struct{}

func (nullVideo) Start(float64)                            {}
func (nullVideo) Stop()                                    {}
func (nullVideo) Pause()                                   {}
func (nullVideo) Unpause()                                 {}
func (nullVideo) EnableFullscreen(bool)                    {}
func (nullVideo) SetPixelFormat(libretro.PixelFormat) bool { return true }
func (nullVideo) SendFrame([]byte, int, int, int)          {}
func (nullVideo) Tickle()                                  {}

type nullAudio struct{}

func (nullAudio) Start(int)               {}
func (nullAudio) Stop()                   {}
func (nullAudio) Pause()                  {}
func (nullAudio) Unpause()                {}
func (nullAudio) SendFrames([]int16, int) {}

type nullInput struct{}

func (nullInput) Begin()                                     {}
func (nullInput) Finish()                                    {}
func (nullInput) Query(uint32, uint32, uint32, uint32) int16 { return 0 }
