package frontend

import (
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/user-none/coreplay/libretro"
)

const maxPorts = 2

// keyMapping maps keyboard keys to retropad button IDs for port 0.
var keyMapping = map[ebiten.Key]int{
	ebiten.KeyArrowUp:    libretro.JoypadUp,
	ebiten.KeyArrowDown:  libretro.JoypadDown,
	ebiten.KeyArrowLeft:  libretro.JoypadLeft,
	ebiten.KeyArrowRight: libretro.JoypadRight,
	ebiten.KeyZ:          libretro.JoypadB,
	ebiten.KeyX:          libretro.JoypadA,
	ebiten.KeyA:          libretro.JoypadY,
	ebiten.KeyS:          libretro.JoypadX,
	ebiten.KeyQ:          libretro.JoypadL,
	ebiten.KeyW:          libretro.JoypadR,
	ebiten.KeyEnter:      libretro.JoypadStart,
	ebiten.KeyBackspace:  libretro.JoypadSelect,
}

// padMapping maps standard gamepad buttons to retropad button IDs.
var padMapping = map[ebiten.StandardGamepadButton]int{
	ebiten.StandardGamepadButtonLeftTop:       libretro.JoypadUp,
	ebiten.StandardGamepadButtonLeftBottom:    libretro.JoypadDown,
	ebiten.StandardGamepadButtonLeftLeft:      libretro.JoypadLeft,
	ebiten.StandardGamepadButtonLeftRight:     libretro.JoypadRight,
	ebiten.StandardGamepadButtonRightBottom:   libretro.JoypadB,
	ebiten.StandardGamepadButtonRightRight:    libretro.JoypadA,
	ebiten.StandardGamepadButtonRightLeft:     libretro.JoypadY,
	ebiten.StandardGamepadButtonRightTop:      libretro.JoypadX,
	ebiten.StandardGamepadButtonFrontTopLeft:  libretro.JoypadL,
	ebiten.StandardGamepadButtonFrontTopRight: libretro.JoypadR,
	ebiten.StandardGamepadButtonCenterLeft:    libretro.JoypadSelect,
	ebiten.StandardGamepadButtonCenterRight:   libretro.JoypadStart,
}

// Retropad answers the core's joypad queries from per-port button
// bitmasks. The ebiten thread writes via Poll, the frame pump reads
// via Query. Implements player.InputSink.
type Retropad struct {
	mu      sync.Mutex
	buttons [maxPorts]uint32
	active  bool
}

// NewRetropad creates an input sink with no buttons held.
func NewRetropad() *Retropad {
	return &Retropad{}
}

// Begin marks the start of an input session.
func (r *Retropad) Begin() {
	r.mu.Lock()
	r.active = true
	r.buttons = [maxPorts]uint32{}
	r.mu.Unlock()
}

// Finish ends the session; queries answer 0 afterwards.
func (r *Retropad) Finish() {
	r.mu.Lock()
	r.active = false
	r.buttons = [maxPorts]uint32{}
	r.mu.Unlock()
}

// Poll reads keyboard and gamepad state into the port bitmasks. Call
// once per frame from the ebiten update loop.
func (r *Retropad) Poll() {
	var masks [maxPorts]uint32

	// Port 0: keyboard plus first gamepad.
	for key, id := range keyMapping {
		if ebiten.IsKeyPressed(key) {
			masks[0] |= 1 << uint(id)
		}
	}

	gamepadIDs := ebiten.AppendGamepadIDs(nil)
	for i, gid := range gamepadIDs {
		if i >= maxPorts {
			break
		}
		for button, id := range padMapping {
			if ebiten.IsStandardGamepadButtonPressed(gid, button) {
				masks[i] |= 1 << uint(id)
			}
		}
	}

	r.mu.Lock()
	r.buttons = masks
	r.mu.Unlock()
}

// Set overrides a port's bitmask directly. Used by hosts that poll
// input themselves.
func (r *Retropad) Set(port int, buttons uint32) {
	if port < 0 || port >= maxPorts {
		return
	}
	r.mu.Lock()
	r.buttons[port] = buttons
	r.mu.Unlock()
}

// Query answers one input state lookup from the core.
func (r *Retropad) Query(port, device, index, id uint32) int16 {
	if device != libretro.DeviceJoypad || port >= maxPorts || id > libretro.JoypadR3 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return 0
	}
	if r.buttons[port]&(1<<id) != 0 {
		return 1
	}
	return 0
}
