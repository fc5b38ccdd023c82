// Package malgo implements the audiocore platform layer on miniaudio.
// Devices are opened in F32 format with a period of one engine chunk; a
// period adapter absorbs any callback that asks for a different size.
package malgo

import (
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/tphakala/lanemix/internal/audiocore"
	"github.com/tphakala/lanemix/internal/audiocore/devices/period"
	"github.com/tphakala/lanemix/internal/errors"
	"github.com/tphakala/lanemix/internal/logging"
)

const (
	componentName   = "audiocore.malgo"
	devicesCacheKey = "devices"
	defaultCacheTTL = 30 * time.Second
	defaultPeriods  = 2
)

// Config selects the miniaudio backend and tunes device handling.
type Config struct {
	// Backend is one of auto, alsa, pulseaudio, jack, wasapi, coreaudio or null.
	Backend string
	// DeviceCacheTTL controls how long device enumeration results are reused.
	DeviceCacheTTL time.Duration
	// Periods is the number of device periods requested from miniaudio.
	Periods int
}

// Backend opens miniaudio playback and duplex devices.
type Backend struct {
	cfg     Config
	logger  *slog.Logger
	devices *cache.Cache
	warn    *rate.Limiter
}

// New creates a miniaudio backend.
func New(cfg Config) *Backend {
	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "malgo")

	ttl := cfg.DeviceCacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if cfg.Periods <= 0 {
		cfg.Periods = defaultPeriods
	}

	return &Backend{
		cfg:     cfg,
		logger:  logger,
		devices: cache.New(ttl, 2*ttl),
		warn:    rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// platformBackends maps the configured backend name to miniaudio backends.
func (b *Backend) platformBackends() ([]malgo.Backend, error) {
	switch strings.ToLower(b.cfg.Backend) {
	case "alsa":
		return []malgo.Backend{malgo.BackendAlsa}, nil
	case "pulseaudio":
		return []malgo.Backend{malgo.BackendPulseaudio}, nil
	case "jack":
		return []malgo.Backend{malgo.BackendJack}, nil
	case "wasapi":
		return []malgo.Backend{malgo.BackendWasapi}, nil
	case "coreaudio":
		return []malgo.Backend{malgo.BackendCoreaudio}, nil
	case "null":
		return []malgo.Backend{malgo.BackendNull}, nil
	case "", "auto":
	default:
		return nil, errors.Newf("unknown audio backend %q", b.cfg.Backend).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa, malgo.BackendPulseaudio}, nil
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}, nil
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}, nil
	default:
		return nil, errors.Newf("unsupported operating system %s", runtime.GOOS).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("os", runtime.GOOS).
			Build()
	}
}

func (b *Backend) initContext() (*malgo.AllocatedContext, error) {
	backends, err := b.platformBackends()
	if err != nil {
		return nil, err
	}
	ctx, err := malgo.InitContext(backends, malgo.ContextConfig{}, func(message string) {
		b.logger.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_context").
			Context("backend", b.cfg.Backend).
			Build()
	}
	return ctx, nil
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

// Devices lists playback and capture devices. Results are cached.
func (b *Backend) Devices() ([]audiocore.DeviceInfo, error) {
	if cached, ok := b.devices.Get(devicesCacheKey); ok {
		if devices, ok := cached.([]audiocore.DeviceInfo); ok {
			return devices, nil
		}
	}

	ctx, err := b.initContext()
	if err != nil {
		return nil, err
	}
	defer freeContext(ctx)

	var devices []audiocore.DeviceInfo
	for _, kind := range []malgo.DeviceType{malgo.Playback, malgo.Capture} {
		infos, err := ctx.Devices(kind)
		if err != nil {
			return nil, errors.New(err).
				Component(componentName).
				Category(errors.CategoryAudioDevice).
				Context("operation", "enumerate_devices").
				Build()
		}
		for i := range infos {
			devices = append(devices, audiocore.DeviceInfo{
				Index:     i,
				Name:      infos[i].Name(),
				ID:        infos[i].ID.String(),
				IsDefault: infos[i].IsDefault == 1,
				Playback:  kind == malgo.Playback,
				Capture:   kind == malgo.Capture,
			})
		}
	}

	b.devices.SetDefault(devicesCacheKey, devices)
	return devices, nil
}

// selectDevice returns the device at index, or nil for the default device.
func selectDevice(ctx *malgo.AllocatedContext, kind malgo.DeviceType, index *int) (*malgo.DeviceInfo, error) {
	if index == nil {
		return nil, nil
	}
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("operation", "enumerate_devices").
			Build()
	}
	if *index < 0 || *index >= len(infos) {
		return nil, errors.Newf("device index %d out of range", *index).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("available_devices", len(infos)).
			Build()
	}
	return &infos[*index], nil
}

func (b *Backend) baseConfig(kind malgo.DeviceType, params audiocore.StreamParameters) malgo.DeviceConfig {
	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.SampleRate = uint32(params.SampleRate)
	cfg.PeriodSizeInFrames = uint32(params.Chunk)
	cfg.Periods = uint32(b.cfg.Periods)
	cfg.Alsa.NoMMap = 1
	return cfg
}

// OpenOutput opens a playback device that pulls blocks from render.
func (b *Backend) OpenOutput(params audiocore.StreamParameters, render audiocore.OutputCallback) (audiocore.Stream, error) {
	ctx, err := b.initContext()
	if err != nil {
		return nil, err
	}

	cfg := b.baseConfig(malgo.Playback, params)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(params.OutChannels)

	info, err := selectDevice(ctx, malgo.Playback, params.OutDevice)
	if err != nil {
		freeContext(ctx)
		return nil, err
	}
	if info != nil {
		cfg.Playback.DeviceID = info.ID.Pointer()
	}

	adapter := period.NewOutputAdapter(params.FrameLen(), period.Renderer(render))
	s := &stream{ctx: ctx, logger: b.logger, params: params, periods: b.cfg.Periods}
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			adapter.Fill(out)
		},
		Stop: s.onDeviceStop,
	}

	if err := s.init(cfg, callbacks, deviceName(info)); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenDuplex opens a full-duplex device that feeds captured blocks to process.
func (b *Backend) OpenDuplex(params audiocore.StreamParameters, process audiocore.DuplexCallback) (audiocore.Stream, error) {
	ctx, err := b.initContext()
	if err != nil {
		return nil, err
	}

	cfg := b.baseConfig(malgo.Duplex, params)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(params.InChannels)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(params.OutChannels)

	in, err := selectDevice(ctx, malgo.Capture, params.InDevice)
	if err != nil {
		freeContext(ctx)
		return nil, err
	}
	if in != nil {
		cfg.Capture.DeviceID = in.ID.Pointer()
	}
	out, err := selectDevice(ctx, malgo.Playback, params.OutDevice)
	if err != nil {
		freeContext(ctx)
		return nil, err
	}
	if out != nil {
		cfg.Playback.DeviceID = out.ID.Pointer()
	}

	adapter := period.NewDuplexAdapter(params.InputLen(), params.FrameLen(), period.Processor(process))
	s := &stream{ctx: ctx, logger: b.logger, params: params, periods: b.cfg.Periods, duplex: true}
	callbacks := malgo.DeviceCallbacks{
		Data: func(outBytes, inBytes []byte, _ uint32) {
			if adapter.Transfer(outBytes, inBytes) && b.warn.Allow() {
				b.logger.Warn("duplex output underrun",
					"underruns", adapter.Underruns(),
					"overruns", adapter.Overruns())
			}
		},
		Stop: s.onDeviceStop,
	}

	if err := s.init(cfg, callbacks, deviceName(out)); err != nil {
		return nil, err
	}
	return s, nil
}

func deviceName(info *malgo.DeviceInfo) string {
	if info == nil {
		return "default"
	}
	return info.Name()
}

// stream owns one miniaudio context and device.
type stream struct {
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	logger  *slog.Logger
	params  audiocore.StreamParameters
	periods int
	duplex  bool

	mu      sync.Mutex
	started bool
	closed  bool
	// stopping is read from the miniaudio stop callback, which may run
	// while mu is held by Stop or Close.
	stopping atomic.Bool
}

func (s *stream) init(cfg malgo.DeviceConfig, callbacks malgo.DeviceCallbacks, name string) error {
	device, err := malgo.InitDevice(s.ctx.Context, cfg, callbacks)
	if err != nil {
		freeContext(s.ctx)
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_device").
			Context("device", name).
			Context("duplex", s.duplex).
			Build()
	}
	s.device = device
	s.logger.Debug("device initialized",
		"device", name,
		"duplex", s.duplex,
		"requested_rate", s.params.SampleRate,
		"actual_rate", device.SampleRate())
	return nil
}

func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Newf("device closed").
			Component(componentName).
			Category(errors.CategoryState).
			Build()
	}
	if err := s.device.Start(); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("operation", "start_device").
			Build()
	}
	s.started = true
	return nil
}

func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.closed {
		return nil
	}
	s.stopping.Store(true)
	s.started = false
	if err := s.device.Stop(); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("operation", "stop_device").
			Build()
	}
	return nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stopping.Store(true)
	s.device.Uninit()
	freeContext(s.ctx)
	return nil
}

// Latency estimates device latency from the configured period layout.
func (s *stream) Latency() audiocore.StreamLatency {
	rate := s.params.SampleRate
	if s.device != nil {
		rate = int(s.device.SampleRate())
	}
	if rate <= 0 {
		return audiocore.StreamLatency{}
	}
	frames := time.Duration(s.params.Chunk * s.periods)
	lat := frames * time.Second / time.Duration(rate)
	out := audiocore.StreamLatency{Output: lat}
	if s.duplex {
		out.Input = lat
	}
	return out
}

// onDeviceStop is called by miniaudio whenever the device stops.
func (s *stream) onDeviceStop() {
	if !s.stopping.Load() {
		s.logger.Warn("audio device stopped unexpectedly", "duplex", s.duplex)
	}
}
