package frontend

import (
	"bytes"
	"encoding/binary"
	"image/png"
	"testing"

	"github.com/user-none/coreplay/libretro"
)

func pack16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func TestConvert0RGB1555(t *testing.T) {
	// Pure red, green, blue at full 5-bit intensity.
	src := append(append(pack16(0x1f<<10), pack16(0x1f<<5)...), pack16(0x1f)...)
	dst := make([]byte, 3*4)
	convert0RGB1555(dst, src, 3, 1, 6)

	expected := []byte{
		0xff, 0, 0, 0xff,
		0, 0xff, 0, 0xff,
		0, 0, 0xff, 0xff,
	}
	if !bytes.Equal(dst, expected) {
		t.Errorf("dst = %v, want %v", dst, expected)
	}
}

func TestConvertRGB565(t *testing.T) {
	src := append(append(pack16(0x1f<<11), pack16(0x3f<<5)...), pack16(0x1f)...)
	dst := make([]byte, 3*4)
	convertRGB565(dst, src, 3, 1, 6)

	expected := []byte{
		0xff, 0, 0, 0xff,
		0, 0xff, 0, 0xff,
		0, 0, 0xff, 0xff,
	}
	if !bytes.Equal(dst, expected) {
		t.Errorf("dst = %v, want %v", dst, expected)
	}
}

func TestConvertXRGB8888(t *testing.T) {
	// One pixel: X=0, R=0x11, G=0x22, B=0x33 little-endian (B,G,R,X).
	src := []byte{0x33, 0x22, 0x11, 0x00}
	dst := make([]byte, 4)
	convertXRGB8888(dst, src, 1, 1, 4)

	expected := []byte{0x11, 0x22, 0x33, 0xff}
	if !bytes.Equal(dst, expected) {
		t.Errorf("dst = %v, want %v", dst, expected)
	}
}

func TestConvertRespectsPitch(t *testing.T) {
	// 1x2 frame with 8-byte rows, pixel data in the first 2 bytes of
	// each row. The padding must not leak into the output.
	src := make([]byte, 16)
	copy(src[0:], pack16(0x1f<<10)) // red
	copy(src[8:], pack16(0x1f))     // blue
	dst := make([]byte, 2*4)
	convert0RGB1555(dst, src, 1, 2, 8)

	expected := []byte{
		0xff, 0, 0, 0xff,
		0, 0, 0xff, 0xff,
	}
	if !bytes.Equal(dst, expected) {
		t.Errorf("dst = %v, want %v", dst, expected)
	}
}

func TestDisplaySendFrame(t *testing.T) {
	d := NewDisplay()
	d.Start(60)

	if !d.SetPixelFormat(libretro.PixelFormatXRGB8888) {
		t.Fatal("XRGB8888 should be accepted")
	}
	if d.SetPixelFormat(libretro.PixelFormat(7)) {
		t.Fatal("unknown pixel format should be rejected")
	}

	frame := []byte{0x33, 0x22, 0x11, 0x00}
	d.SendFrame(frame, 1, 1, 4)

	pixels, w, h := d.snapshot()
	if w != 1 || h != 1 {
		t.Fatalf("dimensions %dx%d, want 1x1", w, h)
	}
	if !bytes.Equal(pixels, []byte{0x11, 0x22, 0x33, 0xff}) {
		t.Errorf("pixels = %v", pixels)
	}
}

func TestDisplayNilFrameReusesPrevious(t *testing.T) {
	d := NewDisplay()
	d.Start(60)
	d.SetPixelFormat(libretro.PixelFormatXRGB8888)

	d.SendFrame([]byte{0x33, 0x22, 0x11, 0x00}, 1, 1, 4)
	d.SendFrame(nil, 0, 0, 0)

	pixels, w, h := d.snapshot()
	if w != 1 || h != 1 || !bytes.Equal(pixels, []byte{0x11, 0x22, 0x33, 0xff}) {
		t.Error("nil frame must keep the previous pixels")
	}
}

func TestDisplayScreenshot(t *testing.T) {
	d := NewDisplay()
	d.Start(60)
	d.SetPixelFormat(libretro.PixelFormatXRGB8888)

	var buf bytes.Buffer
	if err := d.Screenshot(&buf, 2); err == nil {
		t.Error("screenshot before any frame should fail")
	}

	d.SendFrame([]byte{0x33, 0x22, 0x11, 0x00}, 1, 1, 4)
	if err := d.Screenshot(&buf, 2); err != nil {
		t.Fatalf("screenshot failed: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("invalid png: %v", err)
	}
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Errorf("bounds = %v, want 2x2 upscale", img.Bounds())
	}
}

func TestDisplayTickleCounts(t *testing.T) {
	d := NewDisplay()
	d.Start(60)
	for i := 0; i < 5; i++ {
		d.Tickle()
	}
	if d.FrameCount() != 5 {
		t.Errorf("frames = %d, want 5", d.FrameCount())
	}
}

func TestRetropadQuery(t *testing.T) {
	pad := NewRetropad()
	pad.Begin()
	pad.Set(0, 1<<libretro.JoypadA|1<<libretro.JoypadUp)

	tests := []struct {
		port, device, id uint32
		expected         int16
	}{
		{0, libretro.DeviceJoypad, libretro.JoypadA, 1},
		{0, libretro.DeviceJoypad, libretro.JoypadUp, 1},
		{0, libretro.DeviceJoypad, libretro.JoypadB, 0},
		{1, libretro.DeviceJoypad, libretro.JoypadA, 0},
		{0, libretro.DeviceMouse, libretro.JoypadA, 0},
		{5, libretro.DeviceJoypad, libretro.JoypadA, 0},
	}
	for _, tt := range tests {
		if got := pad.Query(tt.port, tt.device, 0, tt.id); got != tt.expected {
			t.Errorf("Query(%d,%d,%d) = %d, want %d", tt.port, tt.device, tt.id, got, tt.expected)
		}
	}

	pad.Finish()
	if pad.Query(0, libretro.DeviceJoypad, 0, libretro.JoypadA) != 0 {
		t.Error("queries after Finish must answer 0")
	}
}
