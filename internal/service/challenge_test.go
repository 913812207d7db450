package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/rendezvous-server-go/internal/errors"
	"github.com/openclaw/rendezvous-server-go/internal/model"
	"github.com/openclaw/rendezvous-server-go/internal/repository"
	"github.com/openclaw/rendezvous-server-go/internal/sse"
)

type challengeFixture struct {
	svc        *ChallengeService
	devices    repository.DeviceRepository
	challenges repository.ChallengeRepository
	broker     *sse.Broker
}

func newChallengeFixture(maxWait, pollInterval time.Duration) *challengeFixture {
	devices := repository.NewDeviceRepository()
	challenges := repository.NewChallengeRepository()
	broker := sse.NewBroker()
	devices.Pair("pc-1", "Office PC", "phone-1")

	return &challengeFixture{
		svc:        NewChallengeService(devices, challenges, broker, nil, maxWait, pollInterval),
		devices:    devices,
		challenges: challenges,
		broker:     broker,
	}
}

type awaitResult struct {
	verified bool
	err      error
}

func (f *challengeFixture) awaitAsync(ctx context.Context, pcID string, timeout time.Duration) <-chan awaitResult {
	out := make(chan awaitResult, 1)
	go func() {
		verified, err := f.svc.Await(ctx, pcID, timeout)
		out <- awaitResult{verified: verified, err: err}
	}()
	return out
}

// waitForWatcher gives a freshly started Await time to block.
func waitForWatcher() {
	time.Sleep(20 * time.Millisecond)
}

func receive(t *testing.T, ch <-chan awaitResult) awaitResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("await did not return in time")
		return awaitResult{}
	}
}

func TestChallengeService_PushValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("missing pc id", func(t *testing.T) {
		f := newChallengeFixture(time.Second, time.Second)
		_, err := f.svc.Push(ctx, "")
		assertAppCode(t, err, apperrors.ErrCodeMissingRequired)
	})

	t.Run("unknown device", func(t *testing.T) {
		f := newChallengeFixture(time.Second, time.Second)
		_, err := f.svc.Push(ctx, "pc-404")
		assertAppCode(t, err, apperrors.ErrCodeDeviceNotFound)
	})

	t.Run("smartphone cannot push", func(t *testing.T) {
		f := newChallengeFixture(time.Second, time.Second)
		_, err := f.svc.Push(ctx, "phone-1")
		assertAppCode(t, err, apperrors.ErrCodeWrongDeviceRole)
	})

	t.Run("PC whose smartphone re-paired elsewhere still pushes", func(t *testing.T) {
		f := newChallengeFixture(time.Second, time.Second)
		f.devices.Pair("pc-2", "Home PC", "phone-1")

		pushed, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)
		assert.Equal(t, "phone-1", pushed.SmartphoneID)
		assert.Equal(t, "pc-1", pushed.PCID)
	})

	t.Run("partner re-paired as a PC", func(t *testing.T) {
		f := newChallengeFixture(time.Second, time.Second)
		f.devices.Pair("phone-1", "Phone as PC", "phone-2")

		_, err := f.svc.Push(ctx, "pc-1")
		assertAppCode(t, err, apperrors.ErrCodePartnerRoleInvalid)
		assert.Equal(t, 0, f.challenges.Count())

		_, err = f.svc.Await(ctx, "pc-1", 0)
		assertAppCode(t, err, apperrors.ErrCodePartnerRoleInvalid)
	})
}

func TestChallengeService_RoundTrip(t *testing.T) {
	ctx := context.Background()

	t.Run("push, pull, verify, await", func(t *testing.T) {
		f := newChallengeFixture(time.Second, time.Hour)

		pushed, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)
		assert.Regexp(t, `^[A-Z]{6}$`, pushed.ComparisonCode)

		pulled, err := f.svc.Pull(ctx, "phone-1")
		require.NoError(t, err)
		assert.Equal(t, pushed.ComparisonCode, pulled.ComparisonCode)

		resolved, err := f.svc.Verify(ctx, "phone-1", pushed.ComparisonCode)
		require.NoError(t, err)
		assert.True(t, resolved.Verdict.Approved())

		verified, err := f.svc.Await(ctx, "pc-1", 0)
		require.NoError(t, err)
		assert.True(t, verified)

		_, err = f.svc.Verify(ctx, "phone-1", pushed.ComparisonCode)
		assertAppCode(t, err, apperrors.ErrCodeNoChallenge)

		_, err = f.svc.Await(ctx, "pc-1", 0)
		assertAppCode(t, err, apperrors.ErrCodeNoChallenge)
	})

	t.Run("wrong code is a denial, not an error", func(t *testing.T) {
		f := newChallengeFixture(time.Second, time.Hour)

		_, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)

		resolved, err := f.svc.Verify(ctx, "phone-1", "WRONG!")
		require.NoError(t, err)
		assert.Equal(t, model.VerdictDenied, resolved.Verdict)

		verified, err := f.svc.Await(ctx, "pc-1", 0)
		require.NoError(t, err)
		assert.False(t, verified)
	})

	t.Run("comparison is case sensitive", func(t *testing.T) {
		f := newChallengeFixture(time.Second, time.Hour)
		f.svc.newCode = func() (string, error) { return "ABCDEF", nil }

		_, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)

		resolved, err := f.svc.Verify(ctx, "phone-1", "abcdef")
		require.NoError(t, err)
		assert.Equal(t, model.VerdictDenied, resolved.Verdict)
	})

	t.Run("pull does not consume the challenge", func(t *testing.T) {
		f := newChallengeFixture(time.Second, time.Hour)

		pushed, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			pulled, err := f.svc.Pull(ctx, "phone-1")
			require.NoError(t, err)
			assert.Equal(t, pushed.ID, pulled.ID)
		}
	})

	t.Run("pull still returns a resolved challenge until it is drained", func(t *testing.T) {
		f := newChallengeFixture(time.Second, time.Hour)

		pushed, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)

		_, err = f.svc.Verify(ctx, "phone-1", pushed.ComparisonCode)
		require.NoError(t, err)

		pulled, err := f.svc.Pull(ctx, "phone-1")
		require.NoError(t, err)
		assert.Equal(t, pushed.ComparisonCode, pulled.ComparisonCode)

		verified, err := f.svc.Await(ctx, "pc-1", 0)
		require.NoError(t, err)
		assert.True(t, verified)

		_, err = f.svc.Pull(ctx, "phone-1")
		assertAppCode(t, err, apperrors.ErrCodeNoChallenge)
	})

	t.Run("a second verify cannot overwrite the verdict", func(t *testing.T) {
		f := newChallengeFixture(time.Second, time.Hour)

		pushed, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)

		_, err = f.svc.Verify(ctx, "phone-1", "WRONG!")
		require.NoError(t, err)

		_, err = f.svc.Verify(ctx, "phone-1", pushed.ComparisonCode)
		assertAppCode(t, err, apperrors.ErrCodeNoChallenge)

		verified, err := f.svc.Await(ctx, "pc-1", 0)
		require.NoError(t, err)
		assert.False(t, verified)
	})
}

func TestChallengeService_PullAndVerifyValidation(t *testing.T) {
	ctx := context.Background()
	f := newChallengeFixture(time.Second, time.Second)

	t.Run("pull by unknown device", func(t *testing.T) {
		_, err := f.svc.Pull(ctx, "phone-404")
		assertAppCode(t, err, apperrors.ErrCodeDeviceNotFound)
	})

	t.Run("pull by PC", func(t *testing.T) {
		_, err := f.svc.Pull(ctx, "pc-1")
		assertAppCode(t, err, apperrors.ErrCodeWrongDeviceRole)
	})

	t.Run("pull without challenge", func(t *testing.T) {
		_, err := f.svc.Pull(ctx, "phone-1")
		assertAppCode(t, err, apperrors.ErrCodeNoChallenge)
	})

	t.Run("verify missing fields", func(t *testing.T) {
		_, err := f.svc.Verify(ctx, "phone-1", "")
		assertAppCode(t, err, apperrors.ErrCodeMissingRequired)

		_, err = f.svc.Verify(ctx, "", "ABCDEF")
		assertAppCode(t, err, apperrors.ErrCodeMissingRequired)
	})

	t.Run("verify by PC", func(t *testing.T) {
		_, err := f.svc.Verify(ctx, "pc-1", "ABCDEF")
		assertAppCode(t, err, apperrors.ErrCodeWrongDeviceRole)
	})

	t.Run("verify without challenge", func(t *testing.T) {
		_, err := f.svc.Verify(ctx, "phone-1", "ABCDEF")
		assertAppCode(t, err, apperrors.ErrCodeNoChallenge)
	})

	t.Run("await without challenge returns immediately", func(t *testing.T) {
		_, err := f.svc.Await(ctx, "pc-1", 0)
		assertAppCode(t, err, apperrors.ErrCodeNoChallenge)
	})

	t.Run("await by smartphone", func(t *testing.T) {
		_, err := f.svc.Await(ctx, "phone-1", 0)
		assertAppCode(t, err, apperrors.ErrCodeWrongDeviceRole)
	})
}

func TestChallengeService_Await(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked await is woken by verify without polling", func(t *testing.T) {
		f := newChallengeFixture(5*time.Second, time.Hour)

		pushed, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)

		result := f.awaitAsync(ctx, "pc-1", 0)
		waitForWatcher()

		started := time.Now()
		_, err = f.svc.Verify(ctx, "phone-1", pushed.ComparisonCode)
		require.NoError(t, err)

		res := receive(t, result)
		require.NoError(t, res.err)
		assert.True(t, res.verified)
		assert.Less(t, time.Since(started), time.Second)
		assert.Equal(t, 0, f.challenges.Count())
	})

	t.Run("blocked await reports a denial", func(t *testing.T) {
		f := newChallengeFixture(5*time.Second, time.Hour)

		_, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)

		result := f.awaitAsync(ctx, "pc-1", 0)
		waitForWatcher()

		_, err = f.svc.Verify(ctx, "phone-1", "WRONG!")
		require.NoError(t, err)

		res := receive(t, result)
		require.NoError(t, res.err)
		assert.False(t, res.verified)
	})

	t.Run("timeout keeps the verdict for a retry", func(t *testing.T) {
		f := newChallengeFixture(50*time.Millisecond, time.Hour)

		pushed, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)

		_, err = f.svc.Await(ctx, "pc-1", 0)
		assertAppCode(t, err, apperrors.ErrCodeAwaitTimeout)
		assert.Equal(t, 1, f.challenges.Count())

		_, err = f.svc.Verify(ctx, "phone-1", pushed.ComparisonCode)
		require.NoError(t, err)

		verified, err := f.svc.Await(ctx, "pc-1", 0)
		require.NoError(t, err)
		assert.True(t, verified)
	})

	t.Run("caller timeout shorter than the server maximum", func(t *testing.T) {
		f := newChallengeFixture(time.Hour, time.Hour)

		_, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)

		started := time.Now()
		_, err = f.svc.Await(ctx, "pc-1", 30*time.Millisecond)
		assertAppCode(t, err, apperrors.ErrCodeAwaitTimeout)
		assert.Less(t, time.Since(started), time.Second)
	})

	t.Run("cancellation leaves the challenge drainable", func(t *testing.T) {
		f := newChallengeFixture(5*time.Second, time.Hour)

		pushed, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)

		cancelCtx, cancel := context.WithCancel(ctx)
		result := f.awaitAsync(cancelCtx, "pc-1", 0)
		waitForWatcher()
		cancel()

		res := receive(t, result)
		assert.ErrorIs(t, res.err, context.Canceled)

		_, err = f.svc.Verify(ctx, "phone-1", pushed.ComparisonCode)
		require.NoError(t, err)

		verified, err := f.svc.Await(ctx, "pc-1", 0)
		require.NoError(t, err)
		assert.True(t, verified)
	})

	t.Run("fallback poll observes a verdict", func(t *testing.T) {
		f := newChallengeFixture(5*time.Second, 10*time.Millisecond)

		pushed, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)

		result := f.awaitAsync(ctx, "pc-1", 0)
		waitForWatcher()

		_, err = f.svc.Verify(ctx, "phone-1", pushed.ComparisonCode)
		require.NoError(t, err)

		res := receive(t, result)
		require.NoError(t, res.err)
		assert.True(t, res.verified)
	})

	t.Run("displaced challenge: await follows the newest push", func(t *testing.T) {
		f := newChallengeFixture(5*time.Second, time.Hour)

		first, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)

		result := f.awaitAsync(ctx, "pc-1", 0)
		waitForWatcher()

		second, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
		assert.NotEqual(t, first.ComparisonCode, second.ComparisonCode)

		pulled, err := f.svc.Pull(ctx, "phone-1")
		require.NoError(t, err)
		assert.Equal(t, second.ID, pulled.ID)

		_, err = f.svc.Verify(ctx, "phone-1", second.ComparisonCode)
		require.NoError(t, err)

		res := receive(t, result)
		require.NoError(t, res.err)
		assert.True(t, res.verified)
	})

	t.Run("concurrent awaiters: the verdict is delivered once", func(t *testing.T) {
		f := newChallengeFixture(5*time.Second, time.Hour)

		pushed, err := f.svc.Push(ctx, "pc-1")
		require.NoError(t, err)

		const waiters = 5
		results := make([]<-chan awaitResult, waiters)
		for i := range results {
			results[i] = f.awaitAsync(ctx, "pc-1", 0)
		}
		waitForWatcher()

		_, err = f.svc.Verify(ctx, "phone-1", pushed.ComparisonCode)
		require.NoError(t, err)

		delivered, pending := 0, 0
		for _, ch := range results {
			res := receive(t, ch)
			if res.err == nil {
				delivered++
				assert.True(t, res.verified)
			} else if apperrors.GetCode(res.err) == apperrors.ErrCodeNoChallenge {
				pending++
			}
		}
		assert.Equal(t, 1, delivered)
		assert.Equal(t, waiters-1, pending)
	})
}

func TestChallengeService_Concurrency(t *testing.T) {
	ctx := context.Background()
	f := newChallengeFixture(5*time.Second, time.Hour)

	pushed, err := f.svc.Push(ctx, "pc-1")
	require.NoError(t, err)

	const verifiers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		resolved int
	)
	for i := 0; i < verifiers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Verify(ctx, "phone-1", pushed.ComparisonCode); err == nil {
				mu.Lock()
				resolved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, resolved, "exactly one verify may resolve a challenge")
}

func TestChallengeService_CodeCollision(t *testing.T) {
	ctx := context.Background()
	f := newChallengeFixture(time.Second, time.Second)
	f.devices.Pair("pc-2", "Home PC", "phone-2")

	draws := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	f.svc.newCode = func() (string, error) {
		code := draws[0]
		draws = draws[1:]
		return code, nil
	}

	first, err := f.svc.Push(ctx, "pc-1")
	require.NoError(t, err)
	second, err := f.svc.Push(ctx, "pc-2")
	require.NoError(t, err)

	assert.Equal(t, "AAAAAA", first.ComparisonCode)
	assert.Equal(t, "BBBBBB", second.ComparisonCode)
}

func TestChallengeService_PublishesToStreams(t *testing.T) {
	ctx := context.Background()
	f := newChallengeFixture(time.Second, time.Second)

	client := f.broker.Subscribe("phone-1")
	defer f.broker.Unsubscribe(client)

	pushed, err := f.svc.Push(ctx, "pc-1")
	require.NoError(t, err)

	select {
	case event := <-client.Events:
		assert.Equal(t, ChallengeEventType, event.Type)

		var data ChallengeEvent
		require.NoError(t, json.Unmarshal(event.Data, &data))
		assert.Equal(t, pushed.ComparisonCode, data.ComparisonCode)
		assert.Equal(t, pushed.ID, data.ChallengeID)
		assert.Equal(t, "Office PC", data.PCName)
	case <-time.After(time.Second):
		t.Fatal("no challenge event published")
	}
}

func TestScenario_EndToEnd(t *testing.T) {
	ctx := context.Background()
	tickets := repository.NewPairingTicketRepository()
	devices := repository.NewDeviceRepository()
	challenges := repository.NewChallengeRepository()
	pairing := NewPairingService(tickets, devices, nil)
	twofa := NewChallengeService(devices, challenges, nil, nil, 5*time.Second, time.Second)

	ticket, err := pairing.IssueCode(ctx, "pc-1", "Office PC")
	require.NoError(t, err)

	claim, err := pairing.Claim(ctx, "phone-1", ticket.Code)
	require.NoError(t, err)
	assert.Equal(t, "Office PC", claim.PCName)

	pushed, err := twofa.Push(ctx, "pc-1")
	require.NoError(t, err)

	result := make(chan awaitResult, 1)
	go func() {
		verified, err := twofa.Await(ctx, "pc-1", 0)
		result <- awaitResult{verified: verified, err: err}
	}()

	pulled, err := twofa.Pull(ctx, "phone-1")
	require.NoError(t, err)
	assert.Equal(t, pushed.ComparisonCode, pulled.ComparisonCode)

	resolved, err := twofa.Verify(ctx, "phone-1", pulled.ComparisonCode)
	require.NoError(t, err)
	assert.True(t, resolved.Verdict.Approved())

	res := receive(t, result)
	require.NoError(t, res.err)
	assert.True(t, res.verified)
}
