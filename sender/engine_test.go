package sender

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolza/gobyte/plan"
	"github.com/toolza/gobyte/progress"
)

func TestFailRemainingPublishesFailedForEachUnattemptedEntry(t *testing.T) {
	bus := progress.NewBus()
	sub := bus.SubscribeBuffered(8)
	defer sub.Close()

	e := &Engine{Opts: plan.Options{}, Bus: bus, Logger: zerolog.Nop()}
	p := plan.Plan{Entries: []plan.Entry{
		{RelativePath: "a.bin"},
		{RelativePath: "b.bin"},
		{RelativePath: "c.bin"},
	}}
	cause := errors.New("boom")

	e.failRemaining("host:1234", p, 1, cause)

	var got []progress.Failed
	for i := 0; i < 2; i++ {
		ev := <-sub.Events()
		f, ok := ev.(progress.Failed)
		require.True(t, ok)
		got = append(got, f)
	}

	require.Len(t, got, 2)
	assert.Equal(t, uint32(1), got[0].Entry)
	assert.Equal(t, uint32(2), got[1].Entry)
	for _, f := range got {
		assert.Equal(t, "host:1234", f.Target)
		assert.ErrorIs(t, f.Err, cause)
	}
}
