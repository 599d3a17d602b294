package verification_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"verifier/internal/audit"
	auditstore "verifier/internal/audit/store"
	"verifier/internal/rules"
	"verifier/internal/verification"
	"verifier/internal/verification/store"
	dErrors "verifier/pkg/domain-errors"
	"verifier/pkg/requestcontext"
	"verifier/pkg/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// outageStore fails every Append while down is set.
type outageStore struct {
	*auditstore.Memory
	down atomic.Bool
}

func (s *outageStore) Append(ctx context.Context, e audit.Entry) error {
	if s.down.Load() {
		return errors.New("database unavailable")
	}
	return s.Memory.Append(ctx, e)
}

var passing = []verification.Check{
	{Name: "bias", Outcome: verification.CheckPass, Automated: true},
	{Name: "fairness", Outcome: verification.CheckPass, Automated: true},
	{Name: "audit", Outcome: verification.CheckPass, Automated: true},
}

func at(minute int) context.Context {
	return requestcontext.WithTime(context.Background(), time.Date(2025, 6, 1, 10, minute, 0, 0, time.UTC))
}

func newService(opts ...verification.Option) (*verification.Service, *auditstore.Memory) {
	audits := auditstore.NewMemory()
	return verification.NewService(store.NewMemory(), audits, opts...), audits
}

func TestAlgorithmLifecycle(t *testing.T) {
	svc, _ := newService()

	testutil.Given(t, "a registered algorithm", func(t *testing.T) {
		reg, err := svc.Register(at(0), "ranker-v2", "matching")
		require.NoError(t, err)
		assert.Equal(t, verification.StatusPending, reg.Status)
		assert.Nil(t, reg.LastVerificationDate)

		testutil.When(t, "a run completes before it starts", func(t *testing.T) {
			_, err := svc.CompleteRun(at(1), "ranker-v2", passing)
			testutil.Then(t, "the transition is refused", func(t *testing.T) {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
			})
		})

		testutil.When(t, "a run starts and passes every check", func(t *testing.T) {
			_, err := svc.StartRun(at(2), "ranker-v2", "")
			require.NoError(t, err)
			done, err := svc.CompleteRun(at(3), "ranker-v2", passing)
			require.NoError(t, err)

			testutil.Then(t, "it is verified with a full history", func(t *testing.T) {
				assert.Equal(t, verification.StatusVerified, done.Status)
				require.NotNil(t, done.LastVerificationDate)
				assert.Equal(t, 3, done.LastVerificationDate.Minute())
				require.Len(t, done.History, 3)
				assert.Equal(t, []verification.Status{verification.StatusPending, verification.StatusInProgress, verification.StatusVerified},
					[]verification.Status{done.History[0].To, done.History[1].To, done.History[2].To})
				assert.Equal(t, verification.StatusInProgress, done.History[2].From)
				assert.Len(t, done.History[2].Checks, 3)
			})
		})
	})
}

func TestFailedVerificationNeedsANewRun(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Register(at(0), "scorer", "profile")
	require.NoError(t, err)
	_, err = svc.StartRun(at(1), "scorer", "")
	require.NoError(t, err)

	failed, err := svc.CompleteRun(at(2), "scorer", []verification.Check{
		{Name: "bias", Outcome: verification.CheckFail, Automated: true},
	})
	require.NoError(t, err)
	assert.Equal(t, verification.StatusFailedVerification, failed.Status)

	_, err = svc.CompleteRun(at(3), "scorer", passing)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation), "no jump to VERIFIED without a run")

	_, err = svc.StartRun(at(4), "scorer", "remediated")
	require.NoError(t, err)
	verified, err := svc.CompleteRun(at(5), "scorer", passing)
	require.NoError(t, err)
	assert.Equal(t, verification.StatusVerified, verified.Status)

	// Earlier history is untouched by later transitions.
	assert.Equal(t, verification.StatusFailedVerification, verified.History[2].To)
	assert.Len(t, verified.History, 5)
}

func TestServiceErrors(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Register(at(0), "", "matching")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = svc.Register(at(0), "a", "matching")
	require.NoError(t, err)
	_, err = svc.Register(at(0), "a", "matching")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = svc.Get(at(0), "missing")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = svc.StartRun(at(0), "missing", "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = svc.StartRun(at(1), "a", "")
	require.NoError(t, err)
	_, err = svc.CompleteRun(at(2), "a", []verification.Check{{Name: "bias", Outcome: "maybe"}})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestSummaries(t *testing.T) {
	tracker := audit.NewPendingTracker()
	svc, audits := newService(verification.WithPendingAudit(tracker))
	ctx := at(0)

	_, err := svc.ModeSummary(ctx, "matching")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	for _, id := range []string{"m1", "m2"} {
		_, err := svc.Register(ctx, id, "matching")
		require.NoError(t, err)
		_, err = svc.StartRun(ctx, id, "")
		require.NoError(t, err)
		_, err = svc.CompleteRun(ctx, id, passing)
		require.NoError(t, err)
	}
	_, err = svc.Register(ctx, "p1", "profile")
	require.NoError(t, err)

	matching, err := svc.ModeSummary(ctx, "matching")
	require.NoError(t, err)
	assert.Equal(t, verification.StatusVerified, matching.Status)
	assert.Equal(t, 2, matching.Algorithms)

	platform, err := svc.PlatformSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, verification.StatusPending, platform.Status)
	assert.Equal(t, 3, platform.Algorithms)
	require.Len(t, platform.Modes, 2)
	assert.Equal(t, "matching", platform.Modes[0].Mode)

	testutil.When(t, "an audit write for the mode is waiting for retry", func(t *testing.T) {
		flaky := &outageStore{Memory: audits}
		l, err := audit.New(context.Background(), flaky,
			audit.WithRetryInterval(10*time.Millisecond),
			audit.WithPendingTracker(tracker),
			audit.WithSubscriber(svc),
		)
		require.NoError(t, err)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, l.Close(closeCtx))
		}()

		flaky.down.Store(true)
		_, err = l.Append(ctx, audit.Entry{
			Domain:           "matching",
			AffectedObjectID: "obj",
			Result:           rules.ValidationResult{Status: rules.StatusPass, ViolatedRules: []string{}},
		})
		var wf *audit.AuditWriteFailure
		require.ErrorAs(t, err, &wf)

		held, err := svc.ModeSummary(ctx, "matching")
		require.NoError(t, err)
		testutil.Then(t, "the verified mode is held for review", func(t *testing.T) {
			assert.Equal(t, verification.StatusNeedsReview, held.Status)
			assert.Equal(t, 1, held.Audit.Pending)
		})

		flaky.down.Store(false)
		require.Eventually(t, func() bool { return l.PendingCount() == 0 }, 5*time.Second, 10*time.Millisecond)

		testutil.Then(t, "a drained retry restores the verified status", func(t *testing.T) {
			fresh, err := svc.ModeSummary(ctx, "matching")
			require.NoError(t, err)
			assert.Equal(t, verification.StatusVerified, fresh.Status)
			assert.Zero(t, fresh.Audit.Pending)
			assert.Equal(t, 1, fresh.Audit.Retried)

			platform, err := svc.PlatformSummary(ctx)
			require.NoError(t, err)
			assert.Zero(t, platform.Audit.Pending)
			assert.Equal(t, verification.StatusVerified, platform.Modes[0].Status)
		})
	})

	testutil.When(t, "an audit entry was retried and written", func(t *testing.T) {
		e := audit.Entry{
			LogID:            "01A",
			Domain:           "matching",
			AffectedObjectID: "obj-2",
			AuditPending:     true,
			Result:           rules.ValidationResult{Status: rules.StatusPass},
		}
		require.NoError(t, audits.Append(ctx, e))
		svc.EntryPersisted(ctx, e)
		fresh, err := svc.ModeSummary(ctx, "matching")
		require.NoError(t, err)

		testutil.Then(t, "it does not hold the mode for review", func(t *testing.T) {
			assert.Equal(t, verification.StatusVerified, fresh.Status)
			assert.Zero(t, fresh.Audit.Pending)
		})
	})

	testutil.When(t, "an algorithm changes status", func(t *testing.T) {
		_, err := svc.StartRun(ctx, "m1", "")
		require.NoError(t, err)
		fresh, err := svc.ModeSummary(ctx, "matching")
		require.NoError(t, err)
		testutil.Then(t, "summaries are recomputed", func(t *testing.T) {
			assert.Equal(t, verification.StatusInProgress, fresh.Status)
			assert.Equal(t, 1, fresh.ByStatus[verification.StatusInProgress])
		})
	})
}
