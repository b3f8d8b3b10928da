package scheduler

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

const displayTickInterval = time.Second

// DisplayClock drives the seconds hand and digital readout. It runs independently of the
// bucket Scheduler so image lookups can never delay a tick.
type DisplayClock struct {
	clock  clock.WithTicker
	onTick func(time.Time)

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDisplayClock(c clock.WithTicker, onTick func(time.Time)) *DisplayClock {
	if c == nil {
		c = clock.RealClock{}
	}
	return &DisplayClock{clock: c, onTick: onTick}
}

func (d *DisplayClock) Start(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.cancel != nil {
		return ErrAlreadyRunning
	}

	ticker := d.clock.NewTicker(displayTickInterval)
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case t := <-ticker.C():
				d.onTick(t)
			}
		}
	}()
	return nil
}

func (d *DisplayClock) Stop() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.cancel == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
	d.cancel = nil
}
