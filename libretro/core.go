package libretro

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
	log "github.com/sirupsen/logrus"
)

// Errors surfaced while constructing a core handle. All are fatal for
// that core.
var (
	ErrCoreNotFound       = errors.New("core library not found")
	ErrCoreLoadFailed     = errors.New("core library load failed")
	ErrAPIVersionMismatch = errors.New("core API version mismatch")
)

// LoadOptions adjust how a core's declared capabilities are parsed.
type LoadOptions struct {
	// AllowZip keeps "zip" in the core's accepted extension set.
	AllowZip bool
}

// requiredSymbols are resolved before the handle is constructed; any
// missing symbol rejects the library.
var requiredSymbols = []string{
	"retro_init",
	"retro_deinit",
	"retro_api_version",
	"retro_get_system_info",
	"retro_get_system_av_info",
	"retro_set_environment",
	"retro_set_video_refresh",
	"retro_set_audio_sample",
	"retro_set_audio_sample_batch",
	"retro_set_input_poll",
	"retro_set_input_state",
	"retro_load_game",
	"retro_unload_game",
	"retro_run",
	"retro_reset",
	"retro_serialize_size",
	"retro_serialize",
	"retro_unserialize",
	"retro_set_controller_port_device",
	"retro_get_region",
}

// Core is a loaded libretro shared object with its symbol table
// resolved. It owns the library handle: Close tears down in order
// unload-game, deinit, dlclose, at most once.
//
// A Core is not safe for concurrent use; the playback engine confines
// it to the frame-pump goroutine and serializes rewind access itself.
type Core struct {
	handle uintptr
	path   string
	info   SystemInfo

	inited     bool
	gameLoaded bool
	closed     bool

	// Keeps the game presentation's backing memory alive across the
	// load_game call.
	gamePath []byte
	gameData []byte

	retroInit                    func()
	retroDeinit                  func()
	retroAPIVersion              func() uint32
	retroGetSystemInfo           func(unsafe.Pointer)
	retroGetSystemAVInfo         func(unsafe.Pointer)
	retroSetEnvironment          func(uintptr)
	retroSetVideoRefresh         func(uintptr)
	retroSetAudioSample          func(uintptr)
	retroSetAudioSampleBatch     func(uintptr)
	retroSetInputPoll            func(uintptr)
	retroSetInputState           func(uintptr)
	retroLoadGame                func(unsafe.Pointer) bool
	retroUnloadGame              func()
	retroRun                     func()
	retroReset                   func()
	retroSerializeSize           func() uintptr
	retroSerialize               func(unsafe.Pointer, uintptr) bool
	retroUnserialize             func(unsafe.Pointer, uintptr) bool
	retroSetControllerPortDevice func(uint32, uint32)
	retroGetRegion               func() uint32
}

// Load opens the shared object at path, resolves the full libretro
// symbol table and verifies the API version. The returned handle has
// not yet run retro_init; call Init with an Environment first.
func Load(path string, opts LoadOptions) (*Core, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCoreNotFound, path)
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCoreLoadFailed, path, err)
	}

	for _, sym := range requiredSymbols {
		if _, err := purego.Dlsym(handle, sym); err != nil {
			purego.Dlclose(handle)
			return nil, fmt.Errorf("%w: %s: missing symbol %s", ErrCoreLoadFailed, path, sym)
		}
	}

	c := &Core{handle: handle, path: path}
	purego.RegisterLibFunc(&c.retroInit, handle, "retro_init")
	purego.RegisterLibFunc(&c.retroDeinit, handle, "retro_deinit")
	purego.RegisterLibFunc(&c.retroAPIVersion, handle, "retro_api_version")
	purego.RegisterLibFunc(&c.retroGetSystemInfo, handle, "retro_get_system_info")
	purego.RegisterLibFunc(&c.retroGetSystemAVInfo, handle, "retro_get_system_av_info")
	purego.RegisterLibFunc(&c.retroSetEnvironment, handle, "retro_set_environment")
	purego.RegisterLibFunc(&c.retroSetVideoRefresh, handle, "retro_set_video_refresh")
	purego.RegisterLibFunc(&c.retroSetAudioSample, handle, "retro_set_audio_sample")
	purego.RegisterLibFunc(&c.retroSetAudioSampleBatch, handle, "retro_set_audio_sample_batch")
	purego.RegisterLibFunc(&c.retroSetInputPoll, handle, "retro_set_input_poll")
	purego.RegisterLibFunc(&c.retroSetInputState, handle, "retro_set_input_state")
	purego.RegisterLibFunc(&c.retroLoadGame, handle, "retro_load_game")
	purego.RegisterLibFunc(&c.retroUnloadGame, handle, "retro_unload_game")
	purego.RegisterLibFunc(&c.retroRun, handle, "retro_run")
	purego.RegisterLibFunc(&c.retroReset, handle, "retro_reset")
	purego.RegisterLibFunc(&c.retroSerializeSize, handle, "retro_serialize_size")
	purego.RegisterLibFunc(&c.retroSerialize, handle, "retro_serialize")
	purego.RegisterLibFunc(&c.retroUnserialize, handle, "retro_unserialize")
	purego.RegisterLibFunc(&c.retroSetControllerPortDevice, handle, "retro_set_controller_port_device")
	purego.RegisterLibFunc(&c.retroGetRegion, handle, "retro_get_region")

	if v := c.retroAPIVersion(); v != APIVersion {
		purego.Dlclose(handle)
		return nil, fmt.Errorf("%w: host is at version %d, %s is at version %d",
			ErrAPIVersionMismatch, APIVersion, path, v)
	}

	var raw rawSystemInfo
	c.retroGetSystemInfo(unsafe.Pointer(&raw))
	c.info = SystemInfo{
		Name:          goString(raw.libraryName),
		Version:       goString(raw.libraryVersion),
		Extensions:    parseExtensions(goString(raw.validExtensions), opts.AllowZip),
		NeedsFullPath: raw.needFullpath,
		BlockExtract:  raw.blockExtract,
	}
	if c.info.Name == "" {
		c.info.Name = "Unknown"
	}
	if c.info.Version == "" {
		c.info.Version = "v0.0"
	}

	log.WithFields(log.Fields{
		"core":          c.info.Name,
		"version":       c.info.Version,
		"extensions":    c.info.Extensions,
		"needsFullPath": c.info.NeedsFullPath,
		"blockExtract":  c.info.BlockExtract,
	}).Info("loaded core")

	return c, nil
}

// Info returns the core's declared capabilities.
func (c *Core) Info() SystemInfo {
	return c.info
}

// Path returns the shared object path the core was loaded from.
func (c *Core) Path() string {
	return c.path
}

// Init installs the environment callback and runs retro_init. The
// environment must be installed before init; Init enforces the order
// and is a no-op when already initialized.
func (c *Core) Init(env *Environment) {
	if c.inited {
		return
	}
	c.retroSetEnvironment(env.trampoline())
	c.retroInit()
	c.inited = true
}

// SetHandlers installs the video, audio sample, audio batch, input poll
// and input state callbacks. Must be called before the first Run.
func (c *Core) SetHandlers(h *FrameHandlers) {
	c.retroSetVideoRefresh(h.videoTrampoline())
	c.retroSetAudioSample(h.audioSampleTrampoline())
	c.retroSetAudioSampleBatch(h.audioBatchTrampoline())
	c.retroSetInputPoll(h.inputPollTrampoline())
	c.retroSetInputState(h.inputStateTrampoline())
}

// LoadGameFromPath hands the core a filesystem path.
func (c *Core) LoadGameFromPath(path string) bool {
	c.gamePath = cString(path)
	info := rawGameInfo{path: &c.gamePath[0]}
	ok := c.retroLoadGame(unsafe.Pointer(&info))
	runtime.KeepAlive(c.gamePath)
	c.gameLoaded = ok
	return ok
}

// LoadGameFromMemory hands the core an in-memory game image. The
// buffer is retained until the game is unloaded; cores are permitted
// to read from it for the lifetime of the session.
func (c *Core) LoadGameFromMemory(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	c.gameData = data
	info := rawGameInfo{
		data: unsafe.Pointer(&c.gameData[0]),
		size: uintptr(len(data)),
	}
	ok := c.retroLoadGame(unsafe.Pointer(&info))
	runtime.KeepAlive(c.gameData)
	c.gameLoaded = ok
	return ok
}

// UnloadGame tells the core to drop the loaded game. Safe to call when
// no game is loaded.
func (c *Core) UnloadGame() {
	if !c.gameLoaded {
		return
	}
	c.retroUnloadGame()
	c.gameLoaded = false
	c.gamePath = nil
	c.gameData = nil
}

// GameLoaded reports whether the core currently has a game loaded.
func (c *Core) GameLoaded() bool {
	return c.gameLoaded
}

// AVInfo queries timing and geometry. Valid only after a successful
// game load.
func (c *Core) AVInfo() AVInfo {
	var raw rawSystemAVInfo
	c.retroGetSystemAVInfo(unsafe.Pointer(&raw))
	return AVInfo{
		Geometry: Geometry{
			BaseWidth:   int(raw.geometry.baseWidth),
			BaseHeight:  int(raw.geometry.baseHeight),
			MaxWidth:    int(raw.geometry.maxWidth),
			MaxHeight:   int(raw.geometry.maxHeight),
			AspectRatio: float64(raw.geometry.aspectRatio),
		},
		FPS:        raw.timing.fps,
		SampleRate: raw.timing.sampleRate,
	}
}

// Run advances the core one frame. The core synchronously drives the
// installed data callbacks from inside this call.
func (c *Core) Run() {
	c.retroRun()
}

// Reset performs a soft reset of the loaded game.
func (c *Core) Reset() {
	c.retroReset()
}

// SerializeSize returns the fixed byte length of one serialized state
// snapshot. Zero means the core does not support serialization.
func (c *Core) SerializeSize() int {
	return int(c.retroSerializeSize())
}

// Serialize asks the core to write its state into buf. Only valid
// between load_game and unload_game.
func (c *Core) Serialize(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	return c.retroSerialize(unsafe.Pointer(&buf[0]), uintptr(len(buf)))
}

// Unserialize restores core state from buf. Only valid between
// load_game and unload_game.
func (c *Core) Unserialize(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	return c.retroUnserialize(unsafe.Pointer(&buf[0]), uintptr(len(buf)))
}

// SetControllerPortDevice assigns a device type to a controller port.
func (c *Core) SetControllerPortDevice(port, device uint32) {
	c.retroSetControllerPortDevice(port, device)
}

// Region returns RegionNTSC or RegionPAL.
func (c *Core) Region() int {
	return int(c.retroGetRegion())
}

// Close tears the core down: unload-game, deinit, then the library
// handle, in that order, at most once.
func (c *Core) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	c.UnloadGame()
	if c.inited {
		c.retroDeinit()
		c.inited = false
	}
	if err := purego.Dlclose(c.handle); err != nil {
		return fmt.Errorf("unloading %s: %w", c.path, err)
	}
	return nil
}
