package audio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudio backs Enumerator and GraphBuilder with the system PortAudio
// library. Initialize/Terminate bracket the process lifetime, not individual
// sessions, so a cached graph survives session stop.
type PortAudio struct {
	initOnce sync.Once
	initErr  error
}

func NewPortAudio() *PortAudio {
	return &PortAudio{}
}

func (p *PortAudio) init() error {
	p.initOnce.Do(func() {
		p.initErr = portaudio.Initialize()
	})
	return p.initErr
}

// Terminate releases the PortAudio runtime. Call once at process exit, after
// Engine.Invalidate.
func (p *PortAudio) Terminate() error {
	return portaudio.Terminate()
}

func (p *PortAudio) InputDevices() ([]Device, error) {
	if err := p.init(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list portaudio devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []Device
	for _, info := range infos {
		if info.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{
			UID:        deviceUID(info),
			Name:       info.Name,
			BuiltIn:    builtInName(info.Name),
			Default:    def != nil && info.Name == def.Name,
			SampleRate: info.DefaultSampleRate,
			info:       info,
		})
	}
	return out, nil
}

// deviceUID derives a stable identifier from the host API and device name.
// PortAudio exposes no hardware UID, and indices shift as devices come and
// go, so the name pair is the most stable handle available.
func deviceUID(info *portaudio.DeviceInfo) string {
	api := "unknown"
	if info.HostApi != nil {
		api = info.HostApi.Name
	}
	return api + "/" + info.Name
}

func builtInName(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range []string{"built-in", "builtin", "internal", "macbook"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Build opens a mono input stream on dev at its native rate, with a
// resampler to the target rate in the callback path.
func (p *PortAudio) Build(dev Device, format Format) (Graph, error) {
	if err := p.init(); err != nil {
		return nil, &EngineError{Reason: FailureFormatCreation, Err: err}
	}
	if dev.info == nil {
		return nil, &EngineError{Reason: FailureFormatCreation, Err: fmt.Errorf("device %q has no live handle", dev.UID)}
	}

	rs, err := NewResampler(dev.SampleRate, float64(format.SampleRate))
	if err != nil {
		return nil, err
	}

	g := &portAudioGraph{resampler: rs}

	params := portaudio.LowLatencyParameters(dev.info, nil)
	params.Input.Channels = 1
	params.SampleRate = dev.SampleRate

	stream, err := portaudio.OpenStream(params, g.callback)
	if err != nil {
		return nil, &EngineError{Reason: FailureBufferAllocation, Err: err}
	}
	g.stream = stream
	return g, nil
}

type portAudioGraph struct {
	stream    *portaudio.Stream
	resampler *Resampler

	mu  sync.Mutex
	tap func([]float32)
}

func (g *portAudioGraph) callback(in []float32) {
	g.mu.Lock()
	tap := g.tap
	g.mu.Unlock()
	if tap == nil {
		return
	}
	out := g.resampler.Process(in)
	if len(out) > 0 {
		tap(out)
	}
}

func (g *portAudioGraph) Start() error  { return g.stream.Start() }
func (g *portAudioGraph) Stop() error   { return g.stream.Stop() }
func (g *portAudioGraph) Pause() error  { return g.stream.Stop() }
func (g *portAudioGraph) Resume() error { return g.stream.Start() }
func (g *portAudioGraph) Close() error  { return g.stream.Close() }

func (g *portAudioGraph) SetTap(tap func([]float32)) {
	g.mu.Lock()
	g.tap = tap
	g.mu.Unlock()
}
