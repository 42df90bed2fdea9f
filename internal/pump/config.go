package pump

import "time"

// DeriveConfig computes the transfer configuration from the two
// endpoints' properties and optional hints (spec §4.7 "Configuration
// derivation").
func DeriveConfig(bottom, top Endpoint, hints Hints) (Config, error) {
	clockedPacketSamps := 0
	for _, ep := range []Endpoint{bottom, top} {
		if !ep.Clocked() {
			continue
		}
		if clockedPacketSamps == 0 || ep.PacketSamples() < clockedPacketSamps {
			clockedPacketSamps = ep.PacketSamples()
		}
	}
	if clockedPacketSamps == 0 {
		return Config{}, ErrBadPumpConfig
	}

	packetIntervalMs := hints.PacketIntervalMs
	if packetIntervalMs <= 0 {
		packetIntervalMs = 20
	}

	filterPacketSamps := gcd(bottom.PacketSamples(), top.PacketSamples())
	if filterPacketSamps == 0 {
		filterPacketSamps = clockedPacketSamps
	}

	minFillSamps := samplesFromMs(hints.MinBufferFillMs)
	jitterSamps := samplesFromMs(hints.JitterWindowMs)

	var cfg Config
	cfg.Format = Format{SampleRateHz: SampleRateHz, BytesPerRecord: BytesPerRecord, PacketSamps: clockedPacketSamps}

	for _, r := range [2]Role{Bottom, Top} {
		ep := epFor(bottom, top, r)
		limit := ep.OutCapacity()
		if minFillSamps > 0 && minFillSamps < limit {
			limit = minFillSamps
		}
		if jitterSamps > 0 && jitterSamps < limit {
			limit = jitterSamps
		}
		if ep.Clocked() {
			for filterPacketSamps > limit/2 && filterPacketSamps > 1 {
				filterPacketSamps /= 2
			}
		}
	}
	if filterPacketSamps < 1 {
		filterPacketSamps = 1
	}
	cfg.FilterPacketSamps = filterPacketSamps

	for _, r := range [2]Role{Bottom, Top} {
		ep := epFor(bottom, top, r)
		outMin := ep.PacketSamples()
		if hints.MinBufferFillMs > 0 && minFillSamps > outMin {
			outMin = minFillSamps
		}
		if cap := ep.OutCapacity() - ep.PacketSamples(); cap >= 0 && outMin > cap {
			outMin = cap
		}
		window := 3 * ep.PacketSamples()
		if jitterSamps > window {
			window = jitterSamps
		}
		outMax := outMin + window
		if outMax > ep.OutCapacity() {
			outMax = ep.OutCapacity()
		}
		cfg.OutMin[r] = outMin
		cfg.OutMax[r] = outMax
		cfg.InMax[r] = outMax - outMin
	}

	watchdogMs := packetIntervalMs * 15
	if watchdogMs < 500 {
		watchdogMs = 500
	}
	cfg.WatchdogTimeout = time.Duration(watchdogMs) * time.Millisecond
	cfg.WatchdogStrikes = 2
	cfg.WatchdogMinFrac = 0.25
	cfg.WatchdogMaxFrac = 2.0

	return cfg, nil
}

func epFor(bottom, top Endpoint, r Role) Endpoint {
	if r == Bottom {
		return bottom
	}
	return top
}

func samplesFromMs(ms int) int {
	if ms <= 0 {
		return 0
	}
	return ms * SampleRateHz / 1000
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// SampleRateHz and BytesPerRecord mirror internal/sco's fixed PCM
// format; the pump doesn't import internal/sco directly to keep its
// Endpoint interface adapter-agnostic.
const (
	SampleRateHz   = 8000
	BytesPerRecord = 2
)
