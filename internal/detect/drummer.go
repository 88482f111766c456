package detect

import "github.com/austinkregel/local-media/musicd/internal/params"

// Drummer detects full-band amplitude transients: a rise in the fast
// envelope above the slow envelope, gated by a minimum (positive) rise
// rate so a merely-loud-but-steady signal never fires (spec.md §4.4).
type Drummer struct {
	adaptiveThreshold
}

func (d *Drummer) reset() { d.adaptiveThreshold.reset() }

func (d *Drummer) update(ctx Context, p params.Detector) Result {
	riseRate := (ctx.FastEnv - ctx.PrevFastEnv) / params.HopMs
	if riseRate <= 0 {
		return d.step(0, ctx.NowMs, p)
	}

	df := ctx.FastEnv - ctx.SlowEnv
	if df < 0 {
		df = 0
	}
	return d.step(df, ctx.NowMs, p)
}
