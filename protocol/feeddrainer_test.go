package protocol

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sliceFeeder struct {
	batches []Records
}

func (f *sliceFeeder) Feed(ctx context.Context) (Records, error) {
	if len(f.batches) == 0 {
		return nil, io.EOF
	}
	recs := f.batches[0]
	f.batches = f.batches[1:]
	return recs, nil
}

func (f *sliceFeeder) Close() error { return nil }

type collectDrainer struct {
	got Records
}

func (d *collectDrainer) Drain(ctx context.Context, recs Records) error {
	d.got = append(d.got, recs...)
	return nil
}

func (d *collectDrainer) Close() error { return nil }

func TestRelay(t *testing.T) {
	feeder := &sliceFeeder{batches: []Records{{[]byte("a"), []byte("b")}}}
	drainer := &collectDrainer{}

	assert.Nil(t, Relay(context.Background(), feeder, drainer))
	assert.Equal(t, Records{[]byte("a"), []byte("b")}, drainer.got)
}

func TestPump(t *testing.T) {
	feeder := &sliceFeeder{batches: []Records{{[]byte("x")}, {[]byte("y")}}}
	drainer := &collectDrainer{}

	err := Pump(context.Background(), feeder, drainer)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, Records{[]byte("x"), []byte("y")}, drainer.got)
}

func TestPumpThenClose(t *testing.T) {
	feeder := &sliceFeeder{batches: []Records{
		{[]byte("one")},
		{[]byte("two"), []byte("three")},
	}}
	drainer := &collectDrainer{}

	err := PumpThenClose(context.Background(), feeder, drainer)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, Records{[]byte("one"), []byte("two"), []byte("three")}, drainer.got)
	assert.Equal(t, int64(11), drainer.got.TotalLen())
}
