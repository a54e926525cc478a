package discovery

import (
	capi "github.com/hashicorp/consul/api"
)

// Narrow views of the consul client, satisfied by *capi.Agent, *capi.KV,
// *capi.Health and *capi.Session. The package only ever talks to these.

type AgentAPI interface {
	ServiceRegister(service *capi.AgentServiceRegistration) error
	CheckRegister(check *capi.AgentCheckRegistration) error
}

type KVAPI interface {
	Put(p *capi.KVPair, q *capi.WriteOptions) (*capi.WriteMeta, error)
	Get(key string, q *capi.QueryOptions) (*capi.KVPair, *capi.QueryMeta, error)
	Acquire(p *capi.KVPair, q *capi.WriteOptions) (bool, *capi.WriteMeta, error)
	Release(p *capi.KVPair, q *capi.WriteOptions) (bool, *capi.WriteMeta, error)
}

type HealthAPI interface {
	Service(service, tag string, passingOnly bool, q *capi.QueryOptions) ([]*capi.ServiceEntry, *capi.QueryMeta, error)
}

type SessionAPI interface {
	Create(se *capi.SessionEntry, q *capi.WriteOptions) (string, *capi.WriteMeta, error)
	Destroy(id string, q *capi.WriteOptions) (*capi.WriteMeta, error)
	RenewPeriodic(initialTTL string, id string, q *capi.WriteOptions, doneCh <-chan struct{}) error
}

var (
	_ AgentAPI   = (*capi.Agent)(nil)
	_ KVAPI      = (*capi.KV)(nil)
	_ HealthAPI  = (*capi.Health)(nil)
	_ SessionAPI = (*capi.Session)(nil)
)
