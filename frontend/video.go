package frontend

import (
	"encoding/binary"
	"errors"
	"image"
	"image/png"
	"io"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	log "github.com/sirupsen/logrus"
	xdraw "golang.org/x/image/draw"

	"github.com/user-none/coreplay/libretro"
)

// errNoFrame is returned when a screenshot is requested before the
// first frame arrives.
var errNoFrame = errors.New("no frame available")

// Display receives frames from the playback engine, converts them
// from the core's pixel format to RGBA, and renders them with ebiten.
// Implements player.VideoSink.
//
// The frame pump writes pixels and the render thread reads them;
// separate write and read buffers let both proceed with only a short
// copy under the lock.
type Display struct {
	mu          sync.Mutex
	format      libretro.PixelFormat
	writePixels []byte // RGBA, written by the pump under lock
	readPixels  []byte // snapshot handed to Draw
	width       int
	height      int
	frames      uint64 // tickle counter
	running     bool
	paused      bool
	offscreen   *ebiten.Image
	drawOpts    ebiten.DrawImageOptions
}

// NewDisplay creates a video sink. The pixel format defaults to
// 0RGB1555 until the core negotiates another.
func NewDisplay() *Display {
	return &Display{format: libretro.PixelFormat0RGB1555}
}

// Start begins a video session at the given framerate.
func (d *Display) Start(fps float64) {
	d.mu.Lock()
	d.running = true
	d.paused = false
	d.mu.Unlock()
	log.WithField("fps", fps).Debug("video sink started")
}

// Stop ends the session and drops the current frame.
func (d *Display) Stop() {
	d.mu.Lock()
	d.running = false
	d.width = 0
	d.height = 0
	d.mu.Unlock()
}

// Pause freezes the display on the current frame.
func (d *Display) Pause() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
}

// Unpause resumes updates.
func (d *Display) Unpause() {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
}

// EnableFullscreen switches the window in or out of fullscreen.
func (d *Display) EnableFullscreen(on bool) {
	ebiten.SetFullscreen(on)
}

// SetPixelFormat is the core's pixel-format negotiation target.
func (d *Display) SetPixelFormat(format libretro.PixelFormat) bool {
	if !format.Valid() {
		return false
	}
	d.mu.Lock()
	d.format = format
	d.mu.Unlock()
	return true
}

// SendFrame converts one core frame to RGBA. A nil data slice means
// "reuse the previous frame" and leaves the buffer untouched.
func (d *Display) SendFrame(data []byte, width, height, pitch int) {
	if data == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	need := width * height * 4
	if cap(d.writePixels) < need {
		d.writePixels = make([]byte, need)
		d.readPixels = make([]byte, need)
	}
	d.writePixels = d.writePixels[:need]
	d.readPixels = d.readPixels[:need]
	d.width = width
	d.height = height

	switch d.format {
	case libretro.PixelFormatXRGB8888:
		convertXRGB8888(d.writePixels, data, width, height, pitch)
	case libretro.PixelFormatRGB565:
		convertRGB565(d.writePixels, data, width, height, pitch)
	default:
		convert0RGB1555(d.writePixels, data, width, height, pitch)
	}
}

// Tickle is poked once per pumped frame.
func (d *Display) Tickle() {
	d.mu.Lock()
	d.frames++
	d.mu.Unlock()
}

// FrameCount returns how many frames have been pumped this session.
func (d *Display) FrameCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// snapshot copies the current frame into the read buffer and returns
// it with its dimensions. Returns nil when no frame has arrived yet.
func (d *Display) snapshot() ([]byte, int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.width == 0 || d.height == 0 {
		return nil, 0, 0
	}
	copy(d.readPixels, d.writePixels)
	return d.readPixels, d.width, d.height
}

// Draw renders the current frame to screen with aspect-preserving
// nearest-neighbor scaling.
func (d *Display) Draw(screen *ebiten.Image) {
	pixels, width, height := d.snapshot()
	if pixels == nil {
		return
	}

	if d.offscreen == nil || d.offscreen.Bounds().Dx() != width || d.offscreen.Bounds().Dy() != height {
		d.offscreen = ebiten.NewImage(width, height)
	}
	d.offscreen.WritePixels(pixels)

	screenW, screenH := screen.Bounds().Dx(), screen.Bounds().Dy()
	scaleX := float64(screenW) / float64(width)
	scaleY := float64(screenH) / float64(height)
	scale := scaleX
	if scaleY < scaleX {
		scale = scaleY
	}

	offsetX := (float64(screenW) - float64(width)*scale) / 2
	offsetY := (float64(screenH) - float64(height)*scale) / 2

	d.drawOpts = ebiten.DrawImageOptions{}
	d.drawOpts.GeoM.Scale(scale, scale)
	d.drawOpts.GeoM.Translate(offsetX, offsetY)
	d.drawOpts.Filter = ebiten.FilterNearest
	screen.DrawImage(d.offscreen, &d.drawOpts)
}

// Screenshot writes the current frame as a PNG, integer-upscaled by
// scale.
func (d *Display) Screenshot(w io.Writer, scale int) error {
	pixels, width, height := d.snapshot()
	if pixels == nil {
		return errNoFrame
	}
	if scale < 1 {
		scale = 1
	}

	src := &image.RGBA{Pix: pixels, Stride: width * 4, Rect: image.Rect(0, 0, width, height)}
	dst := image.NewRGBA(image.Rect(0, 0, width*scale, height*scale))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return png.Encode(w, dst)
}

// convert0RGB1555 expands 15-bit 0RGB pixels to RGBA.
func convert0RGB1555(dst, src []byte, width, height, pitch int) {
	for y := 0; y < height; y++ {
		row := src[y*pitch:]
		for x := 0; x < width; x++ {
			v := binary.LittleEndian.Uint16(row[x*2:])
			r := byte(v>>10) & 0x1f
			g := byte(v>>5) & 0x1f
			b := byte(v) & 0x1f
			i := (y*width + x) * 4
			dst[i+0] = r<<3 | r>>2
			dst[i+1] = g<<3 | g>>2
			dst[i+2] = b<<3 | b>>2
			dst[i+3] = 0xff
		}
	}
}

// convertRGB565 expands 16-bit RGB pixels to RGBA.
func convertRGB565(dst, src []byte, width, height, pitch int) {
	for y := 0; y < height; y++ {
		row := src[y*pitch:]
		for x := 0; x < width; x++ {
			v := binary.LittleEndian.Uint16(row[x*2:])
			r := byte(v>>11) & 0x1f
			g := byte(v>>5) & 0x3f
			b := byte(v) & 0x1f
			i := (y*width + x) * 4
			dst[i+0] = r<<3 | r>>2
			dst[i+1] = g<<2 | g>>4
			dst[i+2] = b<<3 | b>>2
			dst[i+3] = 0xff
		}
	}
}

// convertXRGB8888 swizzles 32-bit XRGB pixels to RGBA.
func convertXRGB8888(dst, src []byte, width, height, pitch int) {
	for y := 0; y < height; y++ {
		row := src[y*pitch:]
		for x := 0; x < width; x++ {
			s := x * 4
			i := (y*width + x) * 4
			dst[i+0] = row[s+2]
			dst[i+1] = row[s+1]
			dst[i+2] = row[s+0]
			dst[i+3] = 0xff
		}
	}
}
