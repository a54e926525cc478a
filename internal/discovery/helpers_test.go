package discovery

import (
	"io"
	"log/slog"
	"sync"
	"time"

	capi "github.com/hashicorp/consul/api"

	"github.com/pc-m/asterisk-scale-poc/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Service: config.ServiceConfig{Host: "localhost", Port: 9500},
		Discovery: config.DiscoveryConfig{
			RetryInterval: time.Millisecond,
			CheckInterval: 5 * time.Second,
			WatchWait:     50 * time.Millisecond,
			LeadershipKey: "service/applicationd/leader",
			SessionTTL:    15 * time.Second,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAgent struct {
	mu           sync.Mutex
	serviceRegs  []*capi.AgentServiceRegistration
	checkRegs    []*capi.AgentCheckRegistration
	serviceFails int
	checkFails   int
}

func (a *fakeAgent) ServiceRegister(s *capi.AgentServiceRegistration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.serviceFails > 0 {
		a.serviceFails--
		return errFake
	}
	a.serviceRegs = append(a.serviceRegs, s)
	return nil
}

func (a *fakeAgent) CheckRegister(c *capi.AgentCheckRegistration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.checkFails > 0 {
		a.checkFails--
		return errFake
	}
	a.checkRegs = append(a.checkRegs, c)
	return nil
}

type fakeKV struct {
	mu      sync.Mutex
	puts    []*capi.KVPair
	putErr  error
	entries map[string][]byte
}

func (kv *fakeKV) Put(p *capi.KVPair, _ *capi.WriteOptions) (*capi.WriteMeta, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.putErr != nil {
		return nil, kv.putErr
	}
	kv.puts = append(kv.puts, p)
	if kv.entries == nil {
		kv.entries = make(map[string][]byte)
	}
	kv.entries[p.Key] = p.Value
	return &capi.WriteMeta{}, nil
}

func (kv *fakeKV) Get(key string, _ *capi.QueryOptions) (*capi.KVPair, *capi.QueryMeta, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	value, ok := kv.entries[key]
	if !ok {
		return nil, &capi.QueryMeta{}, nil
	}
	return &capi.KVPair{Key: key, Value: value}, &capi.QueryMeta{}, nil
}

func (kv *fakeKV) Acquire(*capi.KVPair, *capi.WriteOptions) (bool, *capi.WriteMeta, error) {
	return false, nil, nil
}

func (kv *fakeKV) Release(*capi.KVPair, *capi.WriteOptions) (bool, *capi.WriteMeta, error) {
	return false, nil, nil
}

// healthStep is one scripted answer of the health endpoint.
type healthStep struct {
	entries []*capi.ServiceEntry
	index   uint64
	err     error
}

// scriptedHealth serves its steps in order, then blocks like a long poll
// until the query context is cancelled.
type scriptedHealth struct {
	mu    sync.Mutex
	steps []healthStep
	calls int
}

func (h *scriptedHealth) Service(_, _ string, _ bool, q *capi.QueryOptions) ([]*capi.ServiceEntry, *capi.QueryMeta, error) {
	h.mu.Lock()
	if h.calls < len(h.steps) {
		step := h.steps[h.calls]
		h.calls++
		h.mu.Unlock()
		return step.entries, &capi.QueryMeta{LastIndex: step.index}, step.err
	}
	h.mu.Unlock()

	<-q.Context().Done()
	return nil, nil, q.Context().Err()
}

func asteriskEntry(eid, address string, port int, checkStatus string) *capi.ServiceEntry {
	return &capi.ServiceEntry{
		Service: &capi.AgentService{
			ID:      "asterisk-" + eid,
			Service: AsteriskServiceName,
			Address: address,
			Port:    port,
			Meta:    map[string]string{"eid": eid},
		},
		Checks: capi.HealthChecks{
			&capi.HealthCheck{CheckID: "service:asterisk-" + eid, Status: checkStatus},
		},
	}
}

type fakeError string

func (e fakeError) Error() string { return string(e) }

const errFake = fakeError("consul unavailable")
