package libretro

import (
	"strings"
	"unsafe"
)

// SystemInfo holds the capabilities a core declares before a game is
// loaded, parsed from retro_get_system_info.
type SystemInfo struct {
	Name    string
	Version string

	// Extensions is the set of accepted file extensions, lowercase
	// with a leading dot. Empty means the core will try anything.
	Extensions []string

	// NeedsFullPath means the core must be handed a filesystem path
	// rather than an in-memory buffer.
	NeedsFullPath bool

	// BlockExtract means the host must not transparently extract
	// archives; the archive path itself is presented.
	BlockExtract bool
}

// AllowsVFS reports whether the core accepts in-memory game data.
func (si SystemInfo) AllowsVFS() bool {
	return !si.NeedsFullPath
}

// IsExtensionValid reports whether the core accepts the given
// extension (with or without leading dot, any case). A core with an
// empty extension set accepts everything.
func (si SystemInfo) IsExtensionValid(ext string) bool {
	if len(si.Extensions) == 0 {
		return true
	}
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, e := range si.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// parseExtensions splits the pipe-separated extension list from
// retro_system_info into a normalized set. The zip extension is
// dropped unless allowZip is set: many cores advertise zip support
// and then crash on it.
func parseExtensions(list string, allowZip bool) []string {
	var exts []string
	for _, e := range strings.Split(list, "|") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		e = strings.ToLower(e)
		if e == "zip" && !allowZip {
			continue
		}
		e = "." + strings.TrimPrefix(e, ".")
		if !containsString(exts, e) {
			exts = append(exts, e)
		}
	}
	return exts
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Geometry describes a core's video output dimensions.
type Geometry struct {
	BaseWidth   int
	BaseHeight  int
	MaxWidth    int
	MaxHeight   int
	AspectRatio float64
}

// AVInfo holds a core's timing and geometry, valid after load_game.
type AVInfo struct {
	Geometry   Geometry
	FPS        float64
	SampleRate float64
}

// Raw ABI structs. Field order and widths mirror libretro.h; these are
// only ever handled through unsafe pointers handed to or received from
// a core.

type rawSystemInfo struct {
	libraryName     *byte
	libraryVersion  *byte
	validExtensions *byte
	needFullpath    bool
	blockExtract    bool
}

type rawGameGeometry struct {
	baseWidth   uint32
	baseHeight  uint32
	maxWidth    uint32
	maxHeight   uint32
	aspectRatio float32
	_           [4]byte
}

type rawSystemTiming struct {
	fps        float64
	sampleRate float64
}

type rawSystemAVInfo struct {
	geometry rawGameGeometry
	timing   rawSystemTiming
}

type rawGameInfo struct {
	path *byte
	data unsafe.Pointer
	size uintptr
	meta *byte
}

type rawVariable struct {
	key   *byte
	value *byte
}

type rawMessage struct {
	msg    *byte
	frames uint32
}

type rawKeyboardCallback struct {
	callback uintptr
}

type rawInputDescriptor struct {
	port        uint32
	device      uint32
	index       uint32
	id          uint32
	description *byte
}

// goString copies a NUL-terminated C string into a Go string. Returns
// "" for a nil pointer.
func goString(p *byte) string {
	if p == nil {
		return ""
	}
	var n int
	for ptr := unsafe.Pointer(p); *(*byte)(ptr) != 0; ptr = unsafe.Add(ptr, 1) {
		n++
	}
	return string(unsafe.Slice(p, n))
}

// cString returns a NUL-terminated byte buffer for s. The buffer must
// be kept alive for as long as the core may read it.
func cString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}
