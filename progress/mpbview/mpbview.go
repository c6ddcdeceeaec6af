// Package mpbview renders the progress bus as live terminal bars, one per
// concurrently fanned-out target, grounded on the teacher's mpb-based
// progress.Progress helper.
package mpbview

import (
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/toolza/gobyte/progress"
)

// View owns one mpb.Progress container and one bar per target, since
// spec §4.5 fans a send out to multiple targets concurrently and each
// deserves its own visible line.
type View struct {
	container *mpb.Progress
	sub       *progress.Subscriber

	mu   sync.Mutex
	bars map[string]*targetBar
}

type targetBar struct {
	bar   *mpb.Bar
	total int64
}

// New subscribes to bus and starts rendering until Close is called.
func New(bus *progress.Bus) *View {
	v := &View{
		container: mpb.New(),
		sub:       bus.Subscribe(),
		bars:      make(map[string]*targetBar),
	}

	go v.run()

	return v
}

func (v *View) run() {
	for e := range v.sub.Events() {
		switch ev := e.(type) {
		case progress.Started:
			v.barFor(ev.Target, ev.Path, int64(ev.Size))
		case progress.Progress:
			v.advance(ev.Target, int64(ev.BytesDelta))
		case progress.Finished, progress.Skipped, progress.Failed, progress.SessionEnded:
			// No per-event bar action; the bar completes naturally once
			// its total is reached, or stays short on failure — visible
			// as a stalled bar, which is informative on its own.
		}
	}
}

func (v *View) barFor(target, label string, total int64) *targetBar {
	v.mu.Lock()
	defer v.mu.Unlock()

	if tb, ok := v.bars[target]; ok {
		return tb
	}

	bar := v.container.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(target+" "+label, decor.WC{W: 20, C: decor.DindentRight}),
			decor.CountersKibiByte(" % .2f / % .2f", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Elapsed(1, decor.WC{W: 12, C: decor.DindentRight}),
		),
	)

	tb := &targetBar{bar: bar, total: total}
	v.bars[target] = tb
	return tb
}

func (v *View) advance(target string, delta int64) {
	v.mu.Lock()
	tb, ok := v.bars[target]
	v.mu.Unlock()

	if !ok {
		return
	}

	tb.bar.IncrInt64(delta)
}

// Wait blocks until every bar has completed rendering.
func (v *View) Wait() {
	v.container.Wait()
}

// Close unsubscribes from the bus.
func (v *View) Close() {
	v.sub.Close()
}
