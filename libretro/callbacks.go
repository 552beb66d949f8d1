package libretro

import (
	"unsafe"

	"github.com/ebitengine/purego"
)

// FrameHandlers receives the data callbacks a core fires from inside
// retro_run. Handlers execute on the goroutine that called Run and
// must not call back into the core.
//
// The libretro ABI takes bare function pointers with no user-data
// slot; each handler is wrapped in a purego.NewCallback trampoline
// that closes over this struct, so no process-global state is needed
// to recover the receiver. Trampolines are created once per
// FrameHandlers value (callback slots are a finite process resource).
type FrameHandlers struct {
	// Video receives one frame. A nil data slice means "reuse the
	// previous frame" (the host answers GET_CAN_DUPE with true).
	Video func(data []byte, width, height, pitch int)

	// AudioSample receives a single stereo sample pair.
	AudioSample func(left, right int16)

	// AudioBatch receives interleaved stereo int16 samples. The slice
	// aliases core-owned memory and is only valid for the duration of
	// the call. Returns the number of frames consumed.
	AudioBatch func(samples []int16, frames int) int

	// InputPoll is invoked once per frame before input state queries.
	InputPoll func()

	// InputState answers one input query.
	InputState func(port, device, index, id uint32) int16

	videoPtr       uintptr
	audioSamplePtr uintptr
	audioBatchPtr  uintptr
	inputPollPtr   uintptr
	inputStatePtr  uintptr
}

func (h *FrameHandlers) videoTrampoline() uintptr {
	if h.videoPtr == 0 {
		h.videoPtr = purego.NewCallback(func(data unsafe.Pointer, width, height uint32, pitch uintptr) {
			if h.Video == nil {
				return
			}
			var buf []byte
			if data != nil && height > 0 && pitch > 0 {
				buf = unsafe.Slice((*byte)(data), int(pitch)*int(height))
			}
			h.Video(buf, int(width), int(height), int(pitch))
		})
	}
	return h.videoPtr
}

func (h *FrameHandlers) audioSampleTrampoline() uintptr {
	if h.audioSamplePtr == 0 {
		h.audioSamplePtr = purego.NewCallback(func(left, right int16) {
			if h.AudioSample != nil {
				h.AudioSample(left, right)
			}
		})
	}
	return h.audioSamplePtr
}

func (h *FrameHandlers) audioBatchTrampoline() uintptr {
	if h.audioBatchPtr == 0 {
		h.audioBatchPtr = purego.NewCallback(func(data unsafe.Pointer, frames uintptr) uintptr {
			if h.AudioBatch == nil || data == nil || frames == 0 {
				return frames
			}
			samples := unsafe.Slice((*int16)(data), int(frames)*2)
			return uintptr(h.AudioBatch(samples, int(frames)))
		})
	}
	return h.audioBatchPtr
}

func (h *FrameHandlers) inputPollTrampoline() uintptr {
	if h.inputPollPtr == 0 {
		h.inputPollPtr = purego.NewCallback(func() {
			if h.InputPoll != nil {
				h.InputPoll()
			}
		})
	}
	return h.inputPollPtr
}

func (h *FrameHandlers) inputStateTrampoline() uintptr {
	if h.inputStatePtr == 0 {
		h.inputStatePtr = purego.NewCallback(func(port, device, index, id uint32) int16 {
			if h.InputState == nil {
				return 0
			}
			return h.InputState(port, device, index, id)
		})
	}
	return h.inputStatePtr
}
