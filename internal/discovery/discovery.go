// Package discovery registers the process in the consul catalog, elects the
// replica that owns cluster-wide watching duties and edge-detects Asterisk
// peer health transitions.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	capi "github.com/hashicorp/consul/api"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"

	"github.com/pc-m/asterisk-scale-poc/config"
	"github.com/pc-m/asterisk-scale-poc/internal/domain/model"
	"github.com/pc-m/asterisk-scale-poc/internal/retry"
)

const (
	// ServiceID is the catalog identity of this process.
	ServiceID = "applicationd"
	// CheckID identifies the HTTP health check tied to ServiceID. The same
	// check also backs the leader-election session.
	CheckID = "applicationd-status"

	// AsteriskServiceName is the catalog service the watch loop observes.
	AsteriskServiceName = "asterisk"

	applicationCacheSize = 256
)

// NodeFunc is invoked on a peer health transition. Callbacks run in
// registration order and each is awaited before the loop moves on.
type NodeFunc func(ctx context.Context, node model.AsteriskNode) error

type Discovery struct {
	cfg    *config.Config
	logger *slog.Logger

	agent  AgentAPI
	kv     KVAPI
	health HealthAPI

	retry      retry.Policy
	registered atomic.Bool

	apps    *lru.Cache[string, model.Application]
	breaker *gobreaker.CircuitBreaker

	onNodeOK []NodeFunc
	onNodeKO []NodeFunc
}

func New(cfg *config.Config, logger *slog.Logger, client *capi.Client) *Discovery {
	return newDiscovery(cfg, logger, client.Agent(), client.KV(), client.Health())
}

func newDiscovery(cfg *config.Config, logger *slog.Logger, agent AgentAPI, kv KVAPI, health HealthAPI) *Discovery {
	apps, _ := lru.New[string, model.Application](applicationCacheSize)

	return &Discovery{
		cfg:    cfg,
		logger: logger,
		agent:  agent,
		kv:     kv,
		health: health,
		retry:  retry.FixedDelay(cfg.Discovery.RetryInterval),
		apps:   apps,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "consul-kv",
		}),
	}
}

// Run registers the service and its HTTP health check, retrying indefinitely
// with a fixed delay until both succeed within the same attempt. Once
// registered it stays registered; call Reset before Run to force a new
// registration, e.g. after a detected catalog session loss.
func (d *Discovery) Run(ctx context.Context) error {
	d.logger.Info("discovery start")

	for !d.registered.Load() {
		if err := d.registerService(); err != nil {
			d.logger.Error("consul error", "error", err)
			if err := d.retry.Wait(ctx); err != nil {
				return nil
			}
			continue
		}

		d.registered.Store(true)
		d.logger.Info("service check registered in consul", "service", ServiceID)
	}

	return nil
}

// Reset makes the next Run re-issue the registration calls.
func (d *Discovery) Reset() {
	d.registered.Store(false)
}

// registerService is one all-or-nothing attempt: service and check must both
// register, otherwise the whole attempt is discarded and retried.
func (d *Discovery) registerService() error {
	reg := &capi.AgentServiceRegistration{
		ID:      ServiceID,
		Name:    ServiceID,
		Address: d.cfg.Service.Host,
		Port:    d.cfg.Service.Port,
	}
	if err := d.agent.ServiceRegister(reg); err != nil {
		return fmt.Errorf("register service %s: %w", ServiceID, err)
	}

	statusURL := fmt.Sprintf("http://%s:%d/status", d.cfg.Service.Host, d.cfg.Service.Port)
	check := &capi.AgentCheckRegistration{
		ID:        CheckID,
		Name:      ServiceID,
		ServiceID: ServiceID,
		AgentServiceCheck: capi.AgentServiceCheck{
			HTTP:     statusURL,
			Interval: d.cfg.Discovery.CheckInterval.String(),
		},
	}
	if err := d.agent.CheckRegister(check); err != nil {
		return fmt.Errorf("register check %s: %w", CheckID, err)
	}

	return nil
}

// RegisterApplication stores the application identity under
// applications/<uuid>. Already-registered names are served from the cache;
// the KV write goes through a breaker so callers are not held up while the
// catalog is down. The derived Application is returned even on failure.
func (d *Discovery) RegisterApplication(ctx context.Context, name string) (model.Application, error) {
	app := model.NewApplication(name)

	if _, ok := d.apps.Get(name); ok {
		return app, nil
	}

	d.logger.Info("registering application in consul", "application", name)

	_, err := d.breaker.Execute(func() (any, error) {
		pair := &capi.KVPair{
			Key:   fmt.Sprintf("applications/%s", app.UUID),
			Value: []byte(app.UUID),
		}
		_, err := d.kv.Put(pair, writeOptions(ctx))
		return nil, err
	})
	if err != nil {
		d.logger.Error("consul error", "application", name, "error", err)
		return app, err
	}

	d.apps.Add(name, app)
	return app, nil
}

// RetrieveMasterNodeContext returns the context of the peer owning the given
// application node's bridge, or nil when none is recorded.
func (d *Discovery) RetrieveMasterNodeContext(ctx context.Context, nodeUUID string) (*model.Context, error) {
	pair, _, err := d.kv.Get(fmt.Sprintf("bridges/%s/master", nodeUUID), queryOptions(ctx))
	if err != nil {
		d.logger.Debug("unable to retrieve master node", "node", nodeUUID, "error", err)
		return nil, err
	}
	if pair == nil {
		return nil, nil
	}

	callCtx := model.NewContext(string(pair.Value))
	return &callCtx, nil
}

// RegisterMasterNode records callCtx's peer as the bridge owner for the node.
func (d *Discovery) RegisterMasterNode(ctx context.Context, callCtx model.Context, nodeUUID string) error {
	d.logger.Info("adding master node in consul", "node", nodeUUID)

	pair := &capi.KVPair{
		Key:   fmt.Sprintf("bridges/%s/master", nodeUUID),
		Value: []byte(callCtx.AsteriskID),
	}
	if _, err := d.kv.Put(pair, writeOptions(ctx)); err != nil {
		d.logger.Error("consul error", "node", nodeUUID, "error", err)
		return err
	}
	return nil
}

// RetrieveAsteriskServices lists the currently catalogued Asterisk peers
// without blocking semantics. Incomplete records are skipped.
func (d *Discovery) RetrieveAsteriskServices(ctx context.Context) ([]model.AsteriskNode, error) {
	entries, _, err := d.health.Service(AsteriskServiceName, "", false, queryOptions(ctx))
	if err != nil {
		d.logger.Error("consul error", "error", err)
		return nil, err
	}
	return nodesFromEntries(entries, d.logger), nil
}

// OnNodeOK appends a callback fired when a peer transitions to OK.
func (d *Discovery) OnNodeOK(fn NodeFunc) {
	d.onNodeOK = append(d.onNodeOK, fn)
}

// OnNodeKO appends a callback fired when a peer transitions to KO.
func (d *Discovery) OnNodeKO(fn NodeFunc) {
	d.onNodeKO = append(d.onNodeKO, fn)
}

// nodesFromEntries builds fresh AsteriskNode values from catalog records.
// A peer is OK only when all of its health checks pass.
func nodesFromEntries(entries []*capi.ServiceEntry, logger *slog.Logger) []model.AsteriskNode {
	nodes := make([]model.AsteriskNode, 0, len(entries))

	for _, entry := range entries {
		if entry.Service == nil {
			continue
		}

		id := entry.Service.Meta["eid"]
		address := entry.Service.Address
		port := entry.Service.Port
		if id == "" || address == "" || port == 0 {
			logger.Error("asterisk service definition incomplete", "service_id", entry.Service.ID)
			continue
		}

		status := model.StatusKO
		if entry.Checks.AggregatedStatus() == capi.HealthPassing {
			status = model.StatusOK
		}

		nodes = append(nodes, model.AsteriskNode{
			ID:      id,
			Address: address,
			Port:    port,
			Status:  status,
		})
	}

	return nodes
}

func queryOptions(ctx context.Context) *capi.QueryOptions {
	return (&capi.QueryOptions{}).WithContext(ctx)
}

func writeOptions(ctx context.Context) *capi.WriteOptions {
	return (&capi.WriteOptions{}).WithContext(ctx)
}
