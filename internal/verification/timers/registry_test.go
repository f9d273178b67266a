package timers_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"gatekeeper/internal/verification/models"
	"gatekeeper/internal/verification/timers"
	"gatekeeper/internal/verification/timers/timertest"
)

type RegistrySuite struct {
	suite.Suite
	clock    *timertest.Clock
	registry *timers.Registry
	key      models.Key
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.clock = timertest.NewClock(time.Unix(1_700_000_000, 0))
	s.registry = timers.New(s.clock.AfterFunc)
	s.key = models.NewKey(-100, 42)
}

func (s *RegistrySuite) pending() models.PendingChallenge {
	return models.PendingChallenge{Key: s.key, OriginalMessageID: 10, ChallengeMessageID: 11}
}

func (s *RegistrySuite) TestRegister() {
	s.Run("fires once after delay and removes the entry first", func() {
		var fired []models.PendingChallenge
		err := s.registry.Register(s.key, 15*time.Second, s.pending(), func(p models.PendingChallenge) {
			s.False(s.registry.Has(s.key), "entry must be gone before callback runs")
			fired = append(fired, p)
		})
		s.Require().NoError(err)
		s.True(s.registry.Has(s.key))

		s.clock.Advance(14 * time.Second)
		s.Empty(fired)

		s.clock.Advance(time.Second)
		s.Require().Len(fired, 1)
		s.Equal(11, fired[0].ChallengeMessageID)
		s.Equal(0, s.registry.Len())

		s.clock.Advance(time.Minute)
		s.Len(fired, 1)
	})

	s.Run("second registration for the same key fails", func() {
		s.SetupTest()
		s.Require().NoError(s.registry.Register(s.key, time.Second, s.pending(), func(models.PendingChallenge) {}))
		err := s.registry.Register(s.key, time.Second, s.pending(), func(models.PendingChallenge) {})
		s.ErrorIs(err, timers.ErrAlreadyRegistered)
		s.Equal(1, s.registry.Len())
	})

	s.Run("different keys are independent", func() {
		s.SetupTest()
		other := models.NewKey(-100, 43)
		s.Require().NoError(s.registry.Register(s.key, time.Second, s.pending(), func(models.PendingChallenge) {}))
		s.Require().NoError(s.registry.Register(other, time.Second, models.PendingChallenge{Key: other}, func(models.PendingChallenge) {}))
		s.Equal(2, s.registry.Len())
	})
}

func (s *RegistrySuite) TestCancel() {
	s.Run("cancel prevents firing", func() {
		fired := false
		s.Require().NoError(s.registry.Register(s.key, time.Second, s.pending(), func(models.PendingChallenge) { fired = true }))

		p, ok := s.registry.Cancel(s.key)
		s.True(ok)
		s.Equal(10, p.OriginalMessageID)

		s.clock.Advance(time.Minute)
		s.False(fired)
		s.Equal(0, s.clock.Scheduled())
	})

	s.Run("cancel of absent key is a no-op", func() {
		s.SetupTest()
		_, ok := s.registry.Cancel(s.key)
		s.False(ok)
	})

	s.Run("key can be registered again after cancel", func() {
		s.SetupTest()
		s.Require().NoError(s.registry.Register(s.key, time.Second, s.pending(), func(models.PendingChallenge) {}))
		s.registry.Cancel(s.key)
		s.NoError(s.registry.Register(s.key, time.Second, s.pending(), func(models.PendingChallenge) {}))
	})
}

func (s *RegistrySuite) TestStopAll() {
	for i := int64(0); i < 3; i++ {
		key := models.NewKey(-100, i)
		s.Require().NoError(s.registry.Register(key, time.Second, models.PendingChallenge{Key: key}, func(models.PendingChallenge) {
			s.Fail("stopped timer fired")
		}))
	}

	dropped := s.registry.StopAll()
	s.Len(dropped, 3)
	s.Equal(0, s.registry.Len())
	s.clock.Advance(time.Minute)
}

// A timer whose Stop loses the race with its own expiry must not run the
// callback once Cancel has removed the entry.
func TestCancelWinsOverLateFire(t *testing.T) {
	var captured func()
	registry := timers.New(func(_ time.Duration, f func()) timers.Timer {
		captured = f
		return stubTimer{}
	})
	key := models.NewKey(1, 2)

	var fired atomic.Bool
	require.NoError(t, registry.Register(key, time.Second, models.PendingChallenge{Key: key}, func(models.PendingChallenge) {
		fired.Store(true)
	}))

	_, ok := registry.Cancel(key)
	require.True(t, ok)
	captured()

	assert.False(t, fired.Load())
}

// A late fire from an old entry must not remove a newer registration.
func TestLateFireDoesNotRemoveNewEntry(t *testing.T) {
	var fns []func()
	registry := timers.New(func(_ time.Duration, f func()) timers.Timer {
		fns = append(fns, f)
		return stubTimer{}
	})
	key := models.NewKey(1, 2)

	var count atomic.Int32
	fire := func(models.PendingChallenge) { count.Add(1) }
	require.NoError(t, registry.Register(key, time.Second, models.PendingChallenge{Key: key, ChallengeMessageID: 1}, fire))
	registry.Cancel(key)
	require.NoError(t, registry.Register(key, time.Second, models.PendingChallenge{Key: key, ChallengeMessageID: 2}, fire))

	fns[0]()
	assert.True(t, registry.Has(key))
	assert.Equal(t, int32(0), count.Load())

	fns[1]()
	assert.False(t, registry.Has(key))
	assert.Equal(t, int32(1), count.Load())
}

func TestRealTimersFireOrCancelExactlyOnce(t *testing.T) {
	registry := timers.New(nil)
	var fired, cancelled atomic.Int32
	var done sync.WaitGroup
	var cancels sync.WaitGroup
	for i := int64(0); i < 100; i++ {
		key := models.NewKey(-1, i)
		done.Add(1)
		require.NoError(t, registry.Register(key, time.Millisecond, models.PendingChallenge{Key: key}, func(models.PendingChallenge) {
			fired.Add(1)
			done.Done()
		}))
		cancels.Add(1)
		go func() {
			defer cancels.Done()
			if _, ok := registry.Cancel(key); ok {
				cancelled.Add(1)
				done.Done()
			}
		}()
	}
	cancels.Wait()
	done.Wait()

	assert.Equal(t, int32(100), fired.Load()+cancelled.Load())
	assert.Equal(t, 0, registry.Len())
}

type stubTimer struct{}

func (stubTimer) Stop() bool { return false }
