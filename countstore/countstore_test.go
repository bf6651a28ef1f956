package countstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemCountStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	c, err := cs.GetCount(ctx, "acct-eval", "alice", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.Increment(ctx, "acct-eval", "alice"))
	assert.NoError(cs.Increment(ctx, "acct-eval", "alice"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCount(ctx, "acct-eval", "alice", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}

	c, err = cs.GetCountDistinct(ctx, "post-commenters", "p1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.IncrementDistinct(ctx, "post-commenters", "p1", "alice"))
	assert.NoError(cs.IncrementDistinct(ctx, "post-commenters", "p1", "alice"))
	assert.NoError(cs.IncrementDistinct(ctx, "post-commenters", "p1", "alice"))
	c, err = cs.GetCountDistinct(ctx, "post-commenters", "p1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)

	assert.NoError(cs.IncrementDistinct(ctx, "post-commenters", "p1", "bob"))
	assert.NoError(cs.IncrementDistinct(ctx, "post-commenters", "p1", "carol"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCountDistinct(ctx, "post-commenters", "p1", period)
		assert.NoError(err)
		assert.Equal(3, c)
	}
}

func TestMemCountStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	// Increment two different values from four goroutines while two more
	// read. Run with `-race`; the final counts must equal the sum of writes.
	var wg sync.WaitGroup
	fnInc := func(name, val string, times int) {
		for i := 0; i < times; i++ {
			assert.NoError(cs.Increment(ctx, name, val))
			assert.NoError(cs.IncrementDistinct(ctx, name, name, val))
			time.Sleep(time.Nanosecond)
		}
		wg.Done()
	}
	fnRead := func(name, val string, times int) {
		for i := 0; i < times; i++ {
			_, err := cs.GetCount(ctx, name, val, PeriodTotal)
			assert.NoError(err)
			time.Sleep(time.Nanosecond)
		}
	}
	wg.Add(4)
	go fnInc("acct-eval", "alice", 10)
	go fnInc("acct-eval", "alice", 10)
	go fnRead("acct-eval", "alice", 10)
	go fnInc("acct-eval", "bob", 6)
	go fnInc("acct-eval", "bob", 6)
	go fnRead("acct-eval", "bob", 6)
	wg.Wait()

	c, err := cs.GetCount(ctx, "acct-eval", "alice", PeriodTotal)
	assert.NoError(err)
	assert.Equal(20, c)
	c, err = cs.GetCount(ctx, "acct-eval", "bob", PeriodTotal)
	assert.NoError(err)
	assert.Equal(12, c)

	// both usernames were written under the same distinct bucket
	c, err = cs.GetCountDistinct(ctx, "acct-eval", "acct-eval", PeriodTotal)
	assert.NoError(err)
	assert.Equal(2, c)
}
