package conf

import (
	"github.com/spf13/viper"

	"github.com/tphakala/lanemix/internal/audiocore"
)

// setDefaultConfig sets default values for every key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxsize", 100)
	v.SetDefault("log.maxbackups", 3)
	v.SetDefault("log.maxage", 28)

	v.SetDefault("output.name", "main")
	v.SetDefault("output.chunk", audiocore.DefaultChunk)
	v.SetDefault("output.samplerate", audiocore.DefaultSampleRate)
	v.SetDefault("output.channels", audiocore.DefaultOutChannels)
	v.SetDefault("output.device", -1)
	v.SetDefault("output.gain", 1.0)

	v.SetDefault("duplex.enabled", false)
	v.SetDefault("duplex.chunk", audiocore.DefaultChunk)
	v.SetDefault("duplex.samplerate", audiocore.DefaultSampleRate)
	v.SetDefault("duplex.inchannels", audiocore.DefaultInChannels)
	v.SetDefault("duplex.outchannels", audiocore.DefaultOutChannels)
	v.SetDefault("duplex.indevice", -1)
	v.SetDefault("duplex.outdevice", -1)
	v.SetDefault("duplex.gain", 1.0)

	v.SetDefault("engine.closedelay", audiocore.DefaultCloseDelay)
	v.SetDefault("engine.graceperiod", audiocore.DefaultGracePeriod)
	v.SetDefault("engine.reapinterval", audiocore.DefaultReapInterval)
	v.SetDefault("engine.poolsize", 0)
	v.SetDefault("engine.backend", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", "127.0.0.1:9090")
	v.SetDefault("telemetry.sentrydsn", "")
	v.SetDefault("telemetry.reportall", false)
}
