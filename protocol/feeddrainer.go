package protocol

import (
	"context"
	"io"
)

// Feeder reads records from a source. The EoF convention follows that
// of io.Reader: either `records, EoF` or `records, nil` followed by
// `nil, EoF`.
type Feeder interface {
	Feed(ctx context.Context) (recs Records, err error)
}

type FeedCloser interface {
	Feeder
	io.Closer
}

// Drainer writes records to a destination.
type Drainer interface {
	Drain(ctx context.Context, recs Records) error
}

type DrainCloser interface {
	Drainer
	io.Closer
}

type FeedDrainCloser interface {
	Feeder
	Drainer
	io.Closer
}

// Relay performs a single feed-drain hop between a feeder and a
// drainer; records that arrived together stay together.
func Relay(ctx context.Context, feeder Feeder, drainer Drainer) error {
	recs, err := feeder.Feed(ctx)
	if err != nil {
		if len(recs) > 0 {
			_ = drainer.Drain(ctx, recs)
		}
		return err
	}
	return drainer.Drain(ctx, recs)
}

// Pump relays records until an error or context cancellation.
func Pump(ctx context.Context, feeder Feeder, drainer Drainer) (err error) {
	for err == nil && ctx.Err() == nil {
		err = Relay(ctx, feeder, drainer)
	}
	return
}

// PumpThenClose pumps until an error, then closes both ends. The feed
// error wins over the drain error.
func PumpThenClose(ctx context.Context, feed FeedCloser, drain DrainCloser) error {
	var ferr, derr error
	for ferr == nil && derr == nil {
		var recs Records
		recs, ferr = feed.Feed(ctx)
		if len(recs) > 0 { // Feed may return data AND EoF
			derr = drain.Drain(ctx, recs)
		}
	}
	_ = feed.Close()
	_ = drain.Close()
	if ferr != nil {
		return ferr
	}
	return derr
}
