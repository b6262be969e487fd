package driver

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BuildAll compiles every unit, fanning out across workers. Each unit is
// still compiled synchronously end to end. The returned slice is indexed
// like units; a unit that failed has a nil-text artifact with its
// diagnostics in the bag, and the first failure is also returned as the
// build error after all units finish.
func BuildAll(ctx context.Context, units []*Unit, opts Options) ([]*Artifact, error) {
	opts = opts.withDefaults()
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if len(units) == 0 {
		return nil, nil
	}

	artifacts := make([]*Artifact, len(units))
	failures := make([]error, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(units)))
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			artifacts[i] = compileCached(u, opts)
			if artifacts[i].Bag != nil && artifacts[i].Bag.HasErrors() {
				failures[i] = errors.New("unit " + u.Name + " failed")
			}
			// Unit failures do not cancel sibling units.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return artifacts, err
	}
	return artifacts, errors.Join(failures...)
}

// compileCached consults the artifact cache before compiling and records
// fresh results after. Cache misses and IO failures both fall back to a
// real compile.
func compileCached(u *Unit, opts Options) *Artifact {
	if opts.Cache != nil && u.ContentHash != (Digest{}) {
		if art, ok := opts.Cache.Get(u.ContentHash); ok {
			art.Unit = u.Name
			return art
		}
	}
	art, err := Compile(u, opts)
	if err == nil && opts.Cache != nil && u.ContentHash != (Digest{}) {
		// Best effort; a full cache or unwritable disk never fails a build.
		_ = opts.Cache.Put(u.ContentHash, art)
	}
	return art
}
