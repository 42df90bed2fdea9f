package pump

// armWatchdog (re)schedules the watchdog timer. Called once from New
// and again from the timer callback itself as long as the pump keeps
// running (spec §4.7 "Watchdog").
func (p *Pump) armWatchdog() {
	if p.clock == nil {
		return
	}
	p.watchdogTimer = p.clock.AfterFunc(p.cfg.WatchdogTimeout, p.checkWatchdog)
}

// checkWatchdog runs on timer fire: for each clocked endpoint's active
// directions, it compares samples delivered this window against the
// nominal bounds and accumulates strikes (spec §4.7 "Watchdog").
func (p *Pump) checkWatchdog() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}

	nominal := nominalSamplesPerPeriod(p.cfg)
	minProgress := float64(nominal) * p.cfg.WatchdogMinFrac
	maxProgress := float64(nominal) * p.cfg.WatchdogMaxFrac

	stop := false
	for _, r := range [2]Role{Bottom, Top} {
		if !p.endpoints[r].Clocked() {
			continue
		}
		inSamples := float64(p.inCounters[r].Process)
		outSamples := float64(p.outCounters[r].Process)

		if p.strike(r, 0, inSamples, minProgress, maxProgress) {
			stop = true
		}
		if p.strike(r, 1, outSamples, minProgress, maxProgress) {
			stop = true
		}
	}

	p.inCounters[Bottom] = Counters{}
	p.inCounters[Top] = Counters{}
	p.outCounters[Bottom] = Counters{}
	p.outCounters[Top] = Counters{}

	if stop {
		p.stop(ErrWatchdogTimeout)
		p.mu.Unlock()
		return
	}
	p.armWatchdog()
	p.mu.Unlock()
}

// strike records progress for one endpoint/direction this window,
// returning true once the accumulated strikes exceed
// watchdog_strikes (spec "±(strikes+1) in excess of watchdog_strikes
// stops the pump with WatchdogTimeout").
func (p *Pump) strike(r Role, dir int, progress, min, max float64) bool {
	if progress >= min && progress <= max {
		p.watchdogStrikes[r][dir] = 0
		return false
	}
	p.watchdogStrikes[r][dir]++
	return p.watchdogStrikes[r][dir] > p.cfg.WatchdogStrikes
}

// nominalSamplesPerPeriod is the clocked sample count expected during
// one watchdog_timeout window, used as the progress-bounds baseline.
func nominalSamplesPerPeriod(cfg Config) int {
	seconds := cfg.WatchdogTimeout.Seconds()
	return int(seconds * float64(cfg.Format.SampleRateHz))
}
