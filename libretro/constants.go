// Package libretro binds a libretro-conforming shared object into the
// process and exposes it as a typed Core handle. It also carries the
// host side of the environment callback contract.
//
// The numeric values in this file are ABI compatibility constants and
// must match libretro.h bit for bit.
package libretro

// APIVersion is the libretro API version this host speaks. A core
// reporting any other value is rejected at load time.
const APIVersion = 1

// Environment command IDs.
const (
	EnvSetRotation         = 1
	EnvGetOverscan         = 2
	EnvGetCanDupe          = 3
	EnvSetMessage          = 6
	EnvShutdown            = 7
	EnvSetPerformanceLevel = 8
	EnvGetSystemDirectory  = 9
	EnvSetPixelFormat      = 10
	EnvSetInputDescriptors = 11
	EnvSetKeyboardCallback = 12
	EnvSetHWRender         = 14
	EnvGetVariable         = 15
	EnvSetVariables        = 16
	EnvGetVariableUpdate   = 17
)

// PixelFormat is the framebuffer pixel layout a core renders in.
type PixelFormat int

// Pixel formats. The default until a core negotiates otherwise is
// PixelFormat0RGB1555.
const (
	PixelFormat0RGB1555 PixelFormat = 0
	PixelFormatXRGB8888 PixelFormat = 1
	PixelFormatRGB565   PixelFormat = 2
)

// String returns the libretro.h name of the pixel format.
func (p PixelFormat) String() string {
	switch p {
	case PixelFormat0RGB1555:
		return "0RGB1555"
	case PixelFormatXRGB8888:
		return "XRGB8888"
	case PixelFormatRGB565:
		return "RGB565"
	}
	return "unknown"
}

// Valid reports whether the host supports this pixel format.
func (p PixelFormat) Valid() bool {
	switch p {
	case PixelFormat0RGB1555, PixelFormatXRGB8888, PixelFormatRGB565:
		return true
	}
	return false
}

// Region codes returned by retro_get_region.
const (
	RegionNTSC = 0
	RegionPAL  = 1
)

// Input device types.
const (
	DeviceNone     = 0
	DeviceJoypad   = 1
	DeviceMouse    = 2
	DeviceKeyboard = 3
	DeviceLightgun = 4
	DeviceAnalog   = 5
	DevicePointer  = 6
)

// Joypad button IDs for DeviceJoypad input state queries.
const (
	JoypadB = iota
	JoypadY
	JoypadSelect
	JoypadStart
	JoypadUp
	JoypadDown
	JoypadLeft
	JoypadRight
	JoypadA
	JoypadX
	JoypadL
	JoypadR
	JoypadL2
	JoypadR2
	JoypadL3
	JoypadR3
)
