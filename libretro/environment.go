package libretro

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
	log "github.com/sirupsen/logrus"
)

// CoreVariable is a variable descriptor a core registers through
// SET_VARIABLES. Informational: the host surfaces these so a frontend
// can build a settings UI.
type CoreVariable struct {
	Key         string
	Description string
}

// Environment answers the queries a core makes back into the host. A
// single instance is installed per core via Core.Init; the core
// invokes Callback synchronously from inside init, load_game or run.
//
// Every query that carries a payload is pointer-checked before any
// dereference. A query with a missing required payload returns false
// without side effects.
type Environment struct {
	mu          sync.Mutex
	vars        map[string]string
	varsChanged bool
	varValues   [][]byte // C strings handed out by GET_VARIABLE
	coreVars    []CoreVariable

	// keyboardCallback holds the core's registered keyboard event
	// function pointer. Written from the core-callback context, read
	// from the controller thread, so swaps are atomic.
	keyboardCallback atomic.Uintptr

	pixelFormatSink func(PixelFormat) bool
	onShutdown      func()

	systemDir     string
	systemDirBuf  []byte
	trampolinePtr uintptr
}

// NewEnvironment creates an environment service seeded with the
// host-provided variable map (may be nil).
func NewEnvironment(vars map[string]string) *Environment {
	e := &Environment{vars: make(map[string]string)}
	for k, v := range vars {
		e.vars[k] = v
	}
	return e
}

// SetPixelFormatSink installs the receiver for SET_PIXEL_FORMAT
// negotiations. The sink reports whether the host accepts the format.
func (e *Environment) SetPixelFormatSink(sink func(PixelFormat) bool) {
	e.pixelFormatSink = sink
}

// SetShutdownHook installs the hook fired when the core requests
// SHUTDOWN.
func (e *Environment) SetShutdownHook(hook func()) {
	e.onShutdown = hook
}

// SetSystemDirectory sets the directory handed to cores that ask for
// GET_SYSTEM_DIRECTORY. Empty means "none": the query then returns a
// null pointer, which cores must cope with.
func (e *Environment) SetSystemDirectory(dir string) {
	e.systemDir = dir
	e.systemDirBuf = nil
}

// SetVariable updates a host variable and flags the change for
// GET_VARIABLE_UPDATE polling.
func (e *Environment) SetVariable(key, value string) {
	e.mu.Lock()
	e.vars[key] = value
	e.varsChanged = true
	e.mu.Unlock()
}

// CoreVariables returns the descriptors the core offered through
// SET_VARIABLES.
func (e *Environment) CoreVariables() []CoreVariable {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]CoreVariable, len(e.coreVars))
	copy(out, e.coreVars)
	return out
}

// HasKeyboardCallback reports whether the core registered a keyboard
// event callback.
func (e *Environment) HasKeyboardCallback() bool {
	return e.keyboardCallback.Load() != 0
}

// KeyboardEvent forwards a host key event to the core's registered
// keyboard callback, if any.
func (e *Environment) KeyboardEvent(down bool, keycode, character uint32, modifiers uint16) {
	fn := e.keyboardCallback.Load()
	if fn == 0 {
		return
	}
	var d uintptr
	if down {
		d = 1
	}
	purego.SyscallN(fn, d, uintptr(keycode), uintptr(character), uintptr(modifiers))
}

// ClearKeyboardCallback unsets the keyboard callback slot. Called when
// the session closes so a stale core pointer cannot be invoked.
func (e *Environment) ClearKeyboardCallback() {
	e.keyboardCallback.Store(0)
}

func (e *Environment) trampoline() uintptr {
	if e.trampolinePtr == 0 {
		e.trampolinePtr = purego.NewCallback(func(cmd uint32, data unsafe.Pointer) bool {
			return e.Callback(cmd, data)
		})
	}
	return e.trampolinePtr
}

// Callback is the environment query dispatcher. Returns false for
// unhandled queries and malformed payloads.
func (e *Environment) Callback(cmd uint32, data unsafe.Pointer) bool {
	// SHUTDOWN is the only query with no payload at all.
	if data == nil && cmd != EnvShutdown {
		log.WithField("cmd", cmd).Error("environment query with nil payload")
		return false
	}

	switch cmd {
	case EnvGetOverscan:
		// Crop away overscan.
		*(*bool)(data) = false

	case EnvGetCanDupe:
		// A nil video frame means "reuse the previous frame".
		*(*bool)(data) = true

	case EnvGetVariable:
		return e.getVariable((*rawVariable)(data))

	case EnvSetVariables:
		return e.setVariables((*rawVariable)(data))

	case EnvGetVariableUpdate:
		e.mu.Lock()
		*(*bool)(data) = e.varsChanged
		e.varsChanged = false
		e.mu.Unlock()

	case EnvSetMessage:
		msg := (*rawMessage)(data)
		if msg.msg == nil {
			return false
		}
		log.WithFields(log.Fields{
			"text":   goString(msg.msg),
			"frames": msg.frames,
		}).Info("core message")

	case EnvSetRotation:
		rotation := *(*uint32)(data)
		if rotation <= 3 {
			log.WithField("degrees", rotation*90).Info("core set screen rotation")
		} else {
			log.WithField("rotation", rotation).Error("core sent invalid rotation")
		}

	case EnvShutdown:
		log.Info("core requested shutdown")
		if e.onShutdown != nil {
			e.onShutdown()
		}

	case EnvSetPerformanceLevel:
		log.WithField("level", *(*uint32)(data)).Info("core performance hint")

	case EnvGetSystemDirectory:
		if e.systemDir == "" {
			*(**byte)(data) = nil
		} else {
			if e.systemDirBuf == nil {
				e.systemDirBuf = cString(e.systemDir)
			}
			*(**byte)(data) = &e.systemDirBuf[0]
		}

	case EnvSetPixelFormat:
		format := PixelFormat(*(*int32)(data))
		if !format.Valid() {
			log.WithField("format", int32(format)).Error("core requested unsupported pixel format")
			return false
		}
		log.WithField("format", format.String()).Info("core set pixel format")
		if e.pixelFormatSink != nil {
			return e.pixelFormatSink(format)
		}

	case EnvSetInputDescriptors:
		return e.setInputDescriptors((*rawInputDescriptor)(data))

	case EnvSetKeyboardCallback:
		cb := (*rawKeyboardCallback)(data)
		if cb.callback == 0 {
			return false
		}
		e.keyboardCallback.Store(cb.callback)
		log.Info("core registered keyboard callback")

	default:
		log.WithField("cmd", cmd).Warn("unhandled environment query")
		return false
	}
	return true
}

func (e *Environment) getVariable(v *rawVariable) bool {
	if v.key == nil {
		log.Error("GET_VARIABLE with no key")
		return false
	}
	key := goString(v.key)

	e.mu.Lock()
	defer e.mu.Unlock()
	value, ok := e.vars[key]
	if !ok {
		v.value = nil
		log.WithField("key", key).Debug("undefined variable requested")
		return true
	}

	// The returned pointer must outlive the call; the backing buffer
	// is retained for the environment's lifetime.
	buf := cString(value)
	e.varValues = append(e.varValues, buf)
	v.value = &buf[0]
	return true
}

func (e *Environment) setVariables(vars *rawVariable) bool {
	if vars.key == nil {
		log.Error("SET_VARIABLES with empty descriptor list")
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.coreVars = e.coreVars[:0]
	for p := vars; p != nil && p.key != nil; p = (*rawVariable)(unsafe.Add(unsafe.Pointer(p), unsafe.Sizeof(rawVariable{}))) {
		cv := CoreVariable{Key: goString(p.key), Description: goString(p.value)}
		e.coreVars = append(e.coreVars, cv)
		log.WithFields(log.Fields{
			"key":         cv.Key,
			"description": cv.Description,
		}).Debug("core offered variable")
	}
	return true
}

func (e *Environment) setInputDescriptors(desc *rawInputDescriptor) bool {
	if desc.description == nil {
		log.Error("SET_INPUT_DESCRIPTORS with empty list")
		return false
	}
	for p := desc; p != nil && p.description != nil; p = (*rawInputDescriptor)(unsafe.Add(unsafe.Pointer(p), unsafe.Sizeof(rawInputDescriptor{}))) {
		log.WithFields(log.Fields{
			"description": goString(p.description),
			"port":        p.port,
			"device":      p.device,
			"index":       p.index,
			"id":          p.id,
		}).Debug("core described input")
	}
	return true
}
