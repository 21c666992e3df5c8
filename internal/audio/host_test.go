// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"testing"

	"github.com/gordonklaus/portaudio"
)

// fakeHost replaces PortAudio for the duration of a test.
type fakeHost struct {
	devices []*portaudio.DeviceInfo
	def     *portaudio.DeviceInfo

	initErr, devErr, openErr, startErr error

	inits, terms int
	params       portaudio.StreamParameters
	cb           func([]float32)
	stream       *fakeStream
}

type fakeStream struct {
	started, stopped, closed bool
}

func (s *fakeStream) Start() error { s.started = true; return nil }
func (s *fakeStream) Stop() error  { s.stopped = true; return nil }
func (s *fakeStream) Close() error { s.closed = true; return nil }

var (
	testMic = &portaudio.DeviceInfo{
		Name:              "Built-in Microphone",
		MaxInputChannels:  2,
		DefaultSampleRate: 48000,
	}
	testSpeaker = &portaudio.DeviceInfo{
		Name:              "Built-in Output",
		MaxOutputChannels: 2,
		DefaultSampleRate: 48000,
	}
	testInterface = &portaudio.DeviceInfo{
		Name:              "USB Interface",
		MaxInputChannels:  1,
		MaxOutputChannels: 2,
		DefaultSampleRate: 44100,
	}
)

func stubHost(t *testing.T) *fakeHost {
	t.Helper()
	h := &fakeHost{
		devices: []*portaudio.DeviceInfo{testSpeaker, testMic, testInterface},
		def:     testMic,
	}

	oldInit, oldTerm, oldDevices, oldDefault, oldOpen := paInitialize, paTerminate, paDevicesFunc, paDefaultInput, openStream
	t.Cleanup(func() {
		paInitialize, paTerminate, paDevicesFunc, paDefaultInput, openStream = oldInit, oldTerm, oldDevices, oldDefault, oldOpen
	})

	paInitialize = func() error {
		if h.initErr != nil {
			return h.initErr
		}
		h.inits++
		return nil
	}
	paTerminate = func() error {
		h.terms++
		return nil
	}
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return h.devices, h.devErr
	}
	paDefaultInput = func() (*portaudio.DeviceInfo, error) {
		if h.def == nil {
			return nil, errors.New("no default input")
		}
		return h.def, nil
	}
	openStream = func(p portaudio.StreamParameters, cb func([]float32)) (stream, error) {
		if h.openErr != nil {
			return nil, h.openErr
		}
		h.params, h.cb = p, cb
		h.stream = &fakeStream{}
		if h.startErr != nil {
			return &failingStream{fakeStream: h.stream, err: h.startErr}, nil
		}
		return h.stream, nil
	}
	return h
}

type failingStream struct {
	*fakeStream
	err error
}

func (s *failingStream) Start() error { return s.err }
