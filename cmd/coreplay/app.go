package main

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	log "github.com/sirupsen/logrus"

	"github.com/user-none/coreplay/frontend"
	"github.com/user-none/coreplay/player"
)

// speedSteps is the F4 fast-forward cycle, in permille.
var speedSteps = []int{player.SpeedNormal, 2000, 3000}

// app hosts a playback session inside an ebiten window: it polls
// input for the retropad, maps hotkeys onto the engine, and draws the
// display's current frame.
type app struct {
	player  *player.Player
	display *frontend.Display
	audio   *frontend.AudioPlayer
	pad     *frontend.Retropad

	stopRequested atomic.Bool
	rewindHold    int
	speedIdx      int
}

func (a *app) requestStop() {
	a.stopRequested.Store(true)
}

func (a *app) Update() error {
	if a.stopRequested.Load() {
		return ebiten.Termination
	}

	a.pad.Poll()

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		a.player.Pause()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF4) {
		a.speedIdx = (a.speedIdx + 1) % len(speedSteps)
		a.player.SetSpeed(speedSteps[a.speedIdx])
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		ebiten.SetFullscreen(!ebiten.IsFullscreen())
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		a.saveScreenshot()
	}

	a.handleRewindKey()

	return nil
}

// handleRewindKey steps backward while R is held, accelerating with
// hold duration. Audio already queued is flushed so stale sound does
// not play over reconstructed frames.
func (a *app) handleRewindKey() {
	if !ebiten.IsKeyPressed(ebiten.KeyR) {
		a.rewindHold = 0
		return
	}
	a.rewindHold++
	frames := rewindFramesForHold(a.rewindHold)
	if frames == 0 {
		return
	}
	if a.player.Rewind(frames) > 0 {
		a.audio.ClearQueue()
	}
}

// rewindFramesForHold returns how many frames to rewind on this tick
// given how long the rewind key has been held, in update ticks. The
// curve starts at single steps and accelerates to two frames per
// tick after a second.
func rewindFramesForHold(hold int) int {
	switch {
	case hold <= 0:
		return 0
	case hold == 1:
		return 1
	case hold <= 15:
		if hold%4 == 0 {
			return 1
		}
		return 0
	case hold <= 30:
		if hold%2 == 0 {
			return 1
		}
		return 0
	case hold <= 60:
		return 1
	default:
		return 2
	}
}

func (a *app) saveScreenshot() {
	name := fmt.Sprintf("coreplay-%s.png", time.Now().Format("20060102-150405"))
	f, err := os.Create(name)
	if err != nil {
		log.WithError(err).Error("screenshot failed")
		return
	}
	defer f.Close()
	if err := a.display.Screenshot(f, 2); err != nil {
		log.WithError(err).Error("screenshot failed")
		return
	}
	log.WithField("file", name).Info("saved screenshot")
}

func (a *app) Draw(screen *ebiten.Image) {
	a.display.Draw(screen)
}

func (a *app) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}
