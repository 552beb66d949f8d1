// Package player is the playback engine: it opens a core and a game,
// clocks the core at its declared framerate on a dedicated goroutine,
// demultiplexes the core's audio/video/input callbacks to external
// sinks, and navigates time backward through the rewind delta log.
package player

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/user-none/coreplay/libretro"
	"github.com/user-none/coreplay/rewind"
	"github.com/user-none/coreplay/romloader"
)

// Speed values in permille of real time. SpeedNormal plays in real
// time; SpeedPaused blocks the pump. Values above 1000 fast-forward,
// values in (0,1000) run slow motion. Reverse is never expressed as a
// speed; rewind is the only backward mechanism.
const (
	SpeedPaused = 0
	SpeedNormal = 1000
)

// ErrInvalidFrameRate is returned by Open when a core reports a
// framerate outside [5,100].
var ErrInvalidFrameRate = errors.New("core reported invalid framerate")

// Frame rate and sample rate sanity bounds.
const (
	minFrameRate  = 5.0
	maxFrameRate  = 100.0
	maxSampleRate = 384000.0
)

// Core is the engine's view of a loaded libretro core, implemented by
// *libretro.Core.
type Core interface {
	Info() libretro.SystemInfo
	Init(env *libretro.Environment)
	SetHandlers(h *libretro.FrameHandlers)
	LoadGameFromPath(path string) bool
	LoadGameFromMemory(data []byte) bool
	AVInfo() libretro.AVInfo
	Run()
	Reset()
	SerializeSize() int
	Serialize(buf []byte) bool
	Unserialize(buf []byte) bool
	SetControllerPortDevice(port, device uint32)
	Region() int
	Close() error
}

// Config is the process-level configuration the engine consumes.
type Config struct {
	// PreferVFS reorders the load strategies so in-memory
	// presentations are attempted before path presentations.
	PreferVFS bool

	// AllowZip keeps "zip" in a core's accepted extension set.
	AllowZip bool

	// SystemDir is handed to cores asking for a system directory.
	// Empty returns null to the core.
	SystemDir string

	// Variables seeds the environment's GET_VARIABLE map.
	Variables map[string]string

	// Seek step sizes in seconds. Zero values take the defaults of
	// 1s (small) and 10s (large).
	SmallStepSec int
	LargeStepSec int
}

// OpenOptions are per-open settings.
type OpenOptions struct {
	Fullscreen bool
}

type state int

const (
	stateIdle state = iota
	stateOpening
	statePlaying
	stateClosing
)

// Player drives one playback session at a time. Public methods may be
// called from any goroutine; each is atomic with respect to the
// others. The frame pump owns the core for the duration of a session.
type Player struct {
	mu    sync.Mutex
	state state

	fs    afero.Fs
	video VideoSink
	audio AudioSink
	input InputSink
	cfg   Config

	onStopRequest func()

	// openCore constructs the core binding; swapped out in tests.
	openCore func(path string, opts libretro.LoadOptions) (Core, error)

	// Session state, valid while state == statePlaying.
	core         Core
	env          *libretro.Environment
	handlers     *libretro.FrameHandlers
	rew          *rewind.Buffer
	geometry     libretro.Geometry
	gameFPS      float64 // as reported by the core; clocks rewind math
	pumpFPS      float64 // audio-aligned; clocks the frame pump
	sampleRate   int
	audioEnabled bool

	speed   atomic.Int32
	abortCh chan struct{}
	wakeCh  chan struct{}
	doneCh  chan struct{}

	// coreMu serializes frame advance + capture against rewind's
	// unserialize. Core callbacks never take it.
	coreMu sync.Mutex

	audioPool sync.Pool
}

// New creates an idle playback engine wired to the given sinks. Nil
// sinks are replaced with no-ops.
func New(fs afero.Fs, video VideoSink, audio AudioSink, input InputSink, cfg Config) *Player {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if video == nil {
		video = nullVideo{}
	}
	if audio == nil {
		audio = nullAudio{}
	}
	if input == nil {
		input = nullInput{}
	}
	if cfg.SmallStepSec <= 0 {
		cfg.SmallStepSec = 1
	}
	if cfg.LargeStepSec <= 0 {
		cfg.LargeStepSec = 10
	}
	return &Player{
		fs:    fs,
		video: video,
		audio: audio,
		input: input,
		cfg:   cfg,
		openCore: func(path string, opts libretro.LoadOptions) (Core, error) {
			return libretro.Load(path, opts)
		},
	}
}

// SetStopRequestHook installs the hook fired when the core requests
// shutdown. The engine keeps running until Close; the hook is how the
// surrounding application learns it should stop the session.
func (p *Player) SetStopRequestHook(hook func()) {
	p.mu.Lock()
	p.onStopRequest = hook
	p.mu.Unlock()
}

// Open loads the core at corePath, resolves a presentation of file,
// hands it to the core and starts the frame pump. A failed step
// unwinds everything acquired so far and leaves the engine idle.
// Opening while a session is active closes it first.
func (p *Player) Open(corePath string, file romloader.GameFile, opts OpenOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateIdle {
		p.closeLocked()
	}
	p.state = stateOpening

	err := p.openLocked(corePath, file, opts)
	if err != nil {
		p.state = stateIdle
		log.WithField("path", file.Path).WithError(err).Error("open failed")
		return err
	}
	p.state = statePlaying
	return nil
}

func (p *Player) openLocked(corePath string, file romloader.GameFile, opts OpenOptions) error {
	core, err := p.openCore(corePath, libretro.LoadOptions{AllowZip: p.cfg.AllowZip})
	if err != nil {
		return err
	}

	env := libretro.NewEnvironment(p.cfg.Variables)
	env.SetSystemDirectory(p.cfg.SystemDir)
	env.SetPixelFormatSink(p.video.SetPixelFormat)
	env.SetShutdownHook(p.stopRequested)
	// Defaults until the core negotiates otherwise.
	p.video.SetPixelFormat(libretro.PixelFormat0RGB1555)
	core.Init(env)

	load := func(pr romloader.Presentation) bool {
		if pr.InMemory() {
			return core.LoadGameFromMemory(pr.Data)
		}
		return core.LoadGameFromPath(pr.Path)
	}
	if err := romloader.Resolve(p.fs, file, core.Info(), p.cfg.PreferVFS, load); err != nil {
		env.ClearKeyboardCallback()
		core.Close()
		return err
	}

	av := core.AVInfo()
	log.WithFields(log.Fields{
		"baseWidth":  av.Geometry.BaseWidth,
		"baseHeight": av.Geometry.BaseHeight,
		"maxWidth":   av.Geometry.MaxWidth,
		"maxHeight":  av.Geometry.MaxHeight,
		"aspect":     av.Geometry.AspectRatio,
		"fps":        av.FPS,
		"sampleRate": av.SampleRate,
	}).Info("core A/V info")

	if av.FPS < minFrameRate || av.FPS > maxFrameRate {
		env.ClearKeyboardCallback()
		core.Close()
		return fmt.Errorf("%w: %f", ErrInvalidFrameRate, av.FPS)
	}

	p.geometry = av.Geometry
	p.gameFPS = av.FPS
	p.pumpFPS, p.sampleRate, p.audioEnabled = alignRates(av.FPS, av.SampleRate)
	if !p.audioEnabled {
		log.WithField("sampleRate", av.SampleRate).Warn("sample rate out of range, continuing without sound")
	}

	if size := core.SerializeSize(); size > 0 {
		p.rew = rewind.New(size, p.gameFPS)
		p.rew.Prime(core.Serialize)
	} else {
		p.rew = nil
		log.Info("core does not support serialization, rewind disabled")
	}

	p.handlers = &libretro.FrameHandlers{
		Video:       p.onVideoFrame,
		AudioSample: p.onAudioSample,
		AudioBatch:  p.onAudioBatch,
		InputPoll:   func() {},
		InputState:  p.input.Query,
	}
	core.SetHandlers(p.handlers)
	core.SetControllerPortDevice(0, libretro.DeviceJoypad)

	p.video.EnableFullscreen(opts.Fullscreen)

	p.core = core
	p.env = env
	p.speed.Store(SpeedNormal)
	p.abortCh = make(chan struct{})
	p.wakeCh = make(chan struct{}, 1)
	p.doneCh = make(chan struct{})

	// Sinks are started before Open returns; the pump stops them on exit.
	p.video.Start(p.pumpFPS)
	if p.audioEnabled {
		p.audio.Start(p.sampleRate)
	}
	p.input.Begin()

	go p.pump()
	return nil
}

// alignRates snaps a fractional sample rate to the nearest integer
// and scales the framerate by the same ratio so audio keeps clocking
// the system. An out-of-range sample rate disables audio and leaves
// the framerate untouched.
func alignRates(fps, sampleRate float64) (adjustedFPS float64, rate int, enabled bool) {
	if sampleRate < 1 || sampleRate > maxSampleRate {
		return fps, 0, false
	}
	rate = int(sampleRate)
	if float64(rate) != sampleRate {
		adjusted := fps * float64(rate) / sampleRate
		log.WithFields(log.Fields{
			"fps":        adjusted,
			"sampleRate": rate,
		}).Debug("aligned A/V rates")
		return adjusted, rate, true
	}
	return fps, rate, true
}

// Close stops the pump, tears the session down and returns the engine
// to idle. Idempotent.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *Player) closeLocked() {
	if p.state != statePlaying {
		p.state = stateIdle
		return
	}
	p.state = stateClosing

	close(p.abortCh)
	p.signalWake()
	<-p.doneCh

	p.env.ClearKeyboardCallback()
	if err := p.core.Close(); err != nil {
		log.WithError(err).Error("core teardown failed")
	}

	p.core = nil
	p.env = nil
	p.handlers = nil
	p.rew = nil
	p.state = stateIdle
}

// Playing reports whether a session is active.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == statePlaying
}

// Pause toggles between paused and normal speed.
func (p *Player) Pause() {
	if p.speed.Load() == SpeedPaused {
		p.SetSpeed(SpeedNormal)
	} else {
		p.SetSpeed(SpeedPaused)
	}
}

// Paused reports whether playback is currently paused.
func (p *Player) Paused() bool {
	return p.speed.Load() == SpeedPaused
}

// SetSpeed sets the playback speed in permille. Values at or below
// zero pause. A user-visible "speed xN" knob multiplies by 1000
// before calling here.
func (p *Player) SetSpeed(permille int) {
	if permille < 0 {
		permille = SpeedPaused
	}
	wasPaused := p.speed.Load() == SpeedPaused
	p.speed.Store(int32(permille))
	if wasPaused && permille > 0 {
		p.signalWake()
	}
}

// Speed returns the current playback speed in permille.
func (p *Player) Speed() int {
	return int(p.speed.Load())
}

func (p *Player) signalWake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *Player) stopRequested() {
	// Fired from the core-callback context; must not take the engine
	// lock. The hook is read without it: installed before playback
	// starts and never swapped mid-session.
	if p.onStopRequest != nil {
		p.onStopRequest()
	}
}

// SeekBackward rewinds one small or large step (1s / 10s of frames by
// default). Forward seeking is unsupported; time only moves forward
// through execution.
func (p *Player) SeekBackward(large bool) {
	step := p.cfg.SmallStepSec
	if large {
		step = p.cfg.LargeStepSec
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rewindFrames(int(float64(step) * p.gameFPS))
}

// SeekToPercent rewinds so the banked rewind log is at pct of its
// ceiling. Targets above the current position are forward seeks and
// are ignored.
func (p *Player) SeekToPercent(pct float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rew == nil {
		return
	}
	target := int(float64(p.rew.MaxAvailable()) * pct / 100)
	p.rewindFrames(p.rew.Available() - target)
}

// SeekToTime rewinds toward the given absolute session time. The
// target frame is computed as round(fps*1000/ms), reproducing the
// original player's formula (which inverts the intuitive
// ms*fps/1000); kept verbatim rather than second-guessed.
func (p *Player) SeekToTime(ms int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rew == nil || ms <= 0 {
		return
	}
	target := int(math.Round(p.gameFPS * 1000 / float64(ms)))
	p.rewindFrames(p.rew.Available() - target)
}

// Rewind rolls back up to frames frames. Returns the count actually
// rewound, which may be less when the delta log runs dry.
func (p *Player) Rewind(frames int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rewindFrames(frames)
}

// rewindFrames rolls back up to n frames and re-installs the
// reconstructed state into the core. Caller holds p.mu.
func (p *Player) rewindFrames(n int) int {
	if p.state != statePlaying || p.rew == nil || n <= 0 {
		return 0
	}
	p.coreMu.Lock()
	defer p.coreMu.Unlock()
	return p.rew.Rewind(n, p.core.Unserialize)
}

// CurrentTimeMS reports how far playback can rewind, in milliseconds.
func (p *Player) CurrentTimeMS() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rew == nil || p.gameFPS == 0 {
		return 0
	}
	return int64(1000 * float64(p.rew.Available()) / p.gameFPS)
}

// TotalTimeMS reports the rewind ceiling in milliseconds. Zero means
// rewind is unsupported for the loaded core.
func (p *Player) TotalTimeMS() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rew == nil || p.gameFPS == 0 {
		return 0
	}
	return int64(1000 * float64(p.rew.MaxAvailable()) / p.gameFPS)
}

// CurrentPercent reports the fill level of the rewind log, 0 when
// rewind is unsupported.
func (p *Player) CurrentPercent() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rew == nil || p.rew.MaxAvailable() == 0 {
		return 0
	}
	return 100 * float64(p.rew.Available()) / float64(p.rew.MaxAvailable())
}

// Geometry returns the loaded core's video geometry. Zero value when
// idle.
func (p *Player) Geometry() libretro.Geometry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != statePlaying {
		return libretro.Geometry{}
	}
	return p.geometry
}

// FPS returns the audio-aligned framerate the pump runs at.
func (p *Player) FPS() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pumpFPS
}

// Reset soft-resets the loaded game.
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != statePlaying {
		return
	}
	p.coreMu.Lock()
	p.core.Reset()
	p.coreMu.Unlock()
}

// SendKeyboardEvent forwards a host key event to a keyboard callback
// the core registered through the environment.
func (p *Player) SendKeyboardEvent(down bool, keycode, character uint32, modifiers uint16) {
	p.mu.Lock()
	env := p.env
	p.mu.Unlock()
	if env != nil {
		env.KeyboardEvent(down, keycode, character, modifiers)
	}
}

// onVideoFrame forwards a frame to the video sink. Zero-valued
// arguments are dropped; the core's output is treated as untrusted.
func (p *Player) onVideoFrame(data []byte, width, height, pitch int) {
	if data == nil || width == 0 || height == 0 || pitch == 0 {
		return
	}
	p.video.SendFrame(data, width, height, pitch)
}

// onAudioSample wraps a single sample pair as a one-frame batch.
func (p *Player) onAudioSample(left, right int16) {
	p.onAudioBatch([]int16{left, right}, 1)
}

// onAudioBatch copies a batch out of core-owned memory and hands it
// to the audio sink. Anything but normal speed mutes: fast-forward
// and slow-motion produce no audio.
func (p *Player) onAudioBatch(samples []int16, frames int) int {
	if !p.audioEnabled || p.speed.Load() != SpeedNormal {
		return frames
	}
	n := frames * 2
	buf, _ := p.audioPool.Get().([]int16)
	if cap(buf) < n {
		buf = make([]int16, n)
	}
	buf = buf[:n]
	copy(buf, samples[:n])
	p.audio.SendFrames(buf, frames)
	p.audioPool.Put(buf[:cap(buf)])
	return frames
}
