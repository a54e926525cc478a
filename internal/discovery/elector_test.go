package discovery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	capi "github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type getStep struct {
	pair  *capi.KVPair
	index uint64
}

// electorKV scripts the Acquire/Get sequence of one election scenario.
type electorKV struct {
	mu           sync.Mutex
	acquires     []bool
	acquireCalls int
	gets         []getStep
	getCalls     int
}

func (kv *electorKV) Acquire(p *capi.KVPair, _ *capi.WriteOptions) (bool, *capi.WriteMeta, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.acquireCalls >= len(kv.acquires) {
		return false, &capi.WriteMeta{}, nil
	}
	held := kv.acquires[kv.acquireCalls]
	kv.acquireCalls++
	return held, &capi.WriteMeta{}, nil
}

func (kv *electorKV) Get(_ string, q *capi.QueryOptions) (*capi.KVPair, *capi.QueryMeta, error) {
	kv.mu.Lock()
	if kv.getCalls < len(kv.gets) {
		step := kv.gets[kv.getCalls]
		kv.getCalls++
		kv.mu.Unlock()
		return step.pair, &capi.QueryMeta{LastIndex: step.index}, nil
	}
	kv.mu.Unlock()

	<-q.Context().Done()
	return nil, nil, q.Context().Err()
}

func (kv *electorKV) Put(*capi.KVPair, *capi.WriteOptions) (*capi.WriteMeta, error) {
	return &capi.WriteMeta{}, nil
}

func (kv *electorKV) Release(*capi.KVPair, *capi.WriteOptions) (bool, *capi.WriteMeta, error) {
	return true, &capi.WriteMeta{}, nil
}

type fakeSessionAPI struct {
	created   atomic.Int32
	destroyed atomic.Int32
	checks    []string
}

func (s *fakeSessionAPI) Create(se *capi.SessionEntry, _ *capi.WriteOptions) (string, *capi.WriteMeta, error) {
	n := s.created.Add(1)
	s.checks = se.Checks
	return fmt.Sprintf("sess-%d", n), &capi.WriteMeta{}, nil
}

func (s *fakeSessionAPI) Destroy(string, *capi.WriteOptions) (*capi.WriteMeta, error) {
	s.destroyed.Add(1)
	return &capi.WriteMeta{}, nil
}

func (s *fakeSessionAPI) RenewPeriodic(_ string, _ string, _ *capi.WriteOptions, doneCh <-chan struct{}) error {
	<-doneCh
	return nil
}

func runElection(t *testing.T, kv *electorKV, session *fakeSessionAPI) (elected, resigned int32) {
	t.Helper()

	e := newConsulElector(testConfig(), testLogger(), kv, session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var electedN, resignedN atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Start(ctx, "service/applicationd/leader", []string{CheckID},
			func(context.Context) { electedN.Add(1) },
			func() { resignedN.Add(1); cancel() },
		)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("election did not finish")
	}
	return electedN.Load(), resignedN.Load()
}

func TestElectorWinsThenLosesSession(t *testing.T) {
	kv := &electorKV{
		acquires: []bool{true},
		gets: []getStep{
			{pair: &capi.KVPair{Session: "sess-1"}, index: 2},
			{pair: &capi.KVPair{Session: "someone-else"}, index: 3},
		},
	}
	session := &fakeSessionAPI{}

	elected, resigned := runElection(t, kv, session)

	assert.EqualValues(t, 1, elected)
	assert.EqualValues(t, 1, resigned)
	assert.EqualValues(t, 1, session.created.Load())
	assert.EqualValues(t, 1, session.destroyed.Load())
}

func TestElectorWaitsForContendedLock(t *testing.T) {
	kv := &electorKV{
		acquires: []bool{false, true},
		gets: []getStep{
			// waitForChange: current holder, then the blocking wait.
			{pair: &capi.KVPair{Session: "someone-else"}, index: 1},
			{pair: nil, index: 2},
			// hold: ours, then released.
			{pair: &capi.KVPair{Session: "sess-1"}, index: 3},
			{pair: nil, index: 4},
		},
	}
	session := &fakeSessionAPI{}

	elected, resigned := runElection(t, kv, session)

	assert.EqualValues(t, 1, elected)
	assert.EqualValues(t, 1, resigned)
	assert.Equal(t, 2, kv.acquireCalls)
}

func TestElectorSessionCarriesHealthChecks(t *testing.T) {
	kv := &electorKV{
		acquires: []bool{true},
		gets:     []getStep{{pair: nil, index: 2}},
	}
	session := &fakeSessionAPI{}

	_, _ = runElection(t, kv, session)

	require.NotEmpty(t, session.checks)
	assert.Contains(t, session.checks, CheckID)
	assert.Contains(t, session.checks, "serfHealth")
}
