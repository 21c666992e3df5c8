// SPDX-License-Identifier: MIT
package display

import (
	"errors"
	"fmt"

	"spectro/internal/decode"
	"spectro/internal/render"
)

var (
	// ErrNotRunning is returned by Controls once the display loop has exited.
	ErrNotRunning = errors.New("display: not running")

	// ErrNoMicrophone is returned by StartMicrophone without a capture source.
	ErrNoMicrophone = errors.New("display: no microphone configured")
)

type commandKind int

const (
	cmdStartMic commandKind = iota
	cmdStartTrack
	cmdStop
	cmdClear
	cmdResize
	cmdParameters
	cmdRun
)

type command struct {
	kind   commandKind
	track  *decode.Track
	w, h   int
	update render.ParameterUpdate
	fn     func()
	reply  chan error
}

// Controls is the command surface of a Display. Methods may be called from
// any goroutine, before Run starts or while it runs; commands queue and are
// applied in order.
type Controls struct {
	d *Display
}

// StartMicrophone starts live capture. From the paused state it resumes onto
// the existing picture; otherwise the picture is cleared first. It waits for
// the display loop and returns the device error, if any, in which case
// nothing changed.
func (c *Controls) StartMicrophone() error {
	return c.d.call(command{kind: cmdStartMic})
}

// StartFile decodes data and plays it in real time. A decode error leaves
// the display untouched.
func (c *Controls) StartFile(name string, data []byte) error {
	track, err := decode.Decode(data)
	if err != nil {
		return fmt.Errorf("display: start %s: %w", name, err)
	}
	track.Name = name
	return c.StartTrack(track)
}

// StartTrack plays an already decoded track.
func (c *Controls) StartTrack(t *decode.Track) error {
	return c.d.call(command{kind: cmdStartTrack, track: t})
}

// Stop detaches the source. Stopping the microphone pauses.
func (c *Controls) Stop() error {
	return c.d.send(command{kind: cmdStop})
}

// Clear stops the source and wipes the picture and the pitch label.
func (c *Controls) Clear() error {
	return c.d.send(command{kind: cmdClear})
}

// Resize stretches the current frame to w by h at once and rebuilds the
// history and canvas at that size once resizing settles.
func (c *Controls) Resize(w, h int) error {
	return c.d.send(command{kind: cmdResize, w: w, h: h})
}

// UpdateParameters merges u into the render parameters.
func (c *Controls) UpdateParameters(u render.ParameterUpdate) error {
	if u.IsZero() {
		return nil
	}
	return c.d.send(command{kind: cmdParameters, update: u})
}

func (d *Display) send(cmd command) error {
	select {
	case <-d.done:
		return ErrNotRunning
	default:
	}
	select {
	case d.cmds <- cmd:
		return nil
	case <-d.done:
		return ErrNotRunning
	}
}

func (d *Display) call(cmd command) error {
	cmd.reply = make(chan error, 1)
	if err := d.send(cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-d.done:
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrNotRunning
		}
	}
}

// sync runs fn on the display goroutine and waits for it.
func (d *Display) sync(fn func()) error {
	return d.call(command{kind: cmdRun, fn: fn})
}
