package metrics

import (
	"expvar"
	"runtime"
)

// can be accessed concurrently thanks to expvar package.
type Metrics struct {
	goroutines *expvar.Int
	processed  *expvar.Int
	errors     *expvar.Int
	poison     *expvar.Int
	dryRuns    *expvar.Int
	panics     *expvar.Int
}

func New() *Metrics {
	m := Metrics{
		goroutines: expvar.NewInt("goroutines"),
		processed:  expvar.NewInt("processed"),
		errors:     expvar.NewInt("errors"),
		poison:     expvar.NewInt("poison"),
		dryRuns:    expvar.NewInt("dryruns"),
		panics:     expvar.NewInt("panics"),
	}

	return &m
}

func (m *Metrics) AddGoroutine() int {
	gs := runtime.NumGoroutine()
	m.goroutines.Add(int64(gs))
	return gs
}

func (m *Metrics) AddProcessed() int {
	m.processed.Add(1)
	return int(m.processed.Value())
}

func (m *Metrics) AddError() int {
	m.errors.Add(1)
	return int(m.errors.Value())
}

func (m *Metrics) AddPoison() int {
	m.poison.Add(1)
	return int(m.poison.Value())
}

func (m *Metrics) AddDryRun() int {
	m.dryRuns.Add(1)
	return int(m.dryRuns.Value())
}

func (m *Metrics) AddPanic() int {
	m.panics.Add(1)
	return int(m.panics.Value())
}
