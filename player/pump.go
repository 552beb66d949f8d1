package player

import (
	"time"
)

// pump is the frame loop. It owns the core for the session: only this
// goroutine calls Run, and state capture happens here under the same
// lock rewind takes, so a rewind can never race a frame advance.
//
// The loop suspends in exactly two places, the wall-clock wait for
// the next frame deadline and the pause wait, and both are cut short
// by the abort channel.
func (p *Player) pump() {
	defer close(p.doneCh)

	framePeriod := time.Duration(float64(time.Second) / p.pumpFPS)
	next := time.Now().Add(framePeriod)

	for !p.aborted() {
		speed := p.speed.Load()
		if speed <= SpeedPaused {
			p.video.Pause()
			p.audio.Pause()
			p.waitUnpause()
			// The deadline is stale after a pause of any length.
			next = time.Now().Add(framePeriod)
			p.video.Unpause()
			p.audio.Unpause()
			continue
		}

		p.advanceFrame()
		p.video.Tickle()

		p.sleepUntil(next)
		next = next.Add(framePeriod * time.Duration(SpeedNormal) / time.Duration(speed))
	}

	p.video.Stop()
	if p.audioEnabled {
		p.audio.Stop()
	}
	p.input.Finish()
}

// advanceFrame runs the core one frame and captures the rewind delta,
// both under the core lock.
func (p *Player) advanceFrame() {
	p.coreMu.Lock()
	defer p.coreMu.Unlock()
	p.core.Run()
	if p.rew != nil {
		p.rew.Capture(p.core.Serialize)
	}
}

func (p *Player) aborted() bool {
	select {
	case <-p.abortCh:
		return true
	default:
		return false
	}
}

// waitUnpause blocks until the speed leaves zero or the session is
// aborted.
func (p *Player) waitUnpause() {
	for p.speed.Load() <= SpeedPaused {
		select {
		case <-p.wakeCh:
		case <-p.abortCh:
			return
		}
	}
}

// sleepUntil waits for the wall clock to reach t, returning early on
// abort.
func (p *Player) sleepUntil(t time.Time) {
	d := time.Until(t)
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-p.abortCh:
	}
}
