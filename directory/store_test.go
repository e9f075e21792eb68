package directory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

var errLeaseNotFound = errors.New("etcdserver: requested lease not found")

// memStore is an in-memory Store. Put attaches the most recently granted
// lease, which matches how Directory uses the API.
type memStore struct {
	mu           sync.Mutex
	nextLease    clientv3.LeaseID
	pendingLease clientv3.LeaseID
	leases       map[clientv3.LeaseID]bool
	keys         map[string]memValue
	keepalives   int
	failKeepOnce bool
	failGrant    bool
	failGet      error
	watchers     []chan clientv3.WatchResponse
}

type memValue struct {
	value string
	lease clientv3.LeaseID
}

func newMemStore() *memStore {
	return &memStore{
		leases: make(map[clientv3.LeaseID]bool),
		keys:   make(map[string]memValue),
	}
}

func (m *memStore) Grant(_ context.Context, _ int64) (*clientv3.LeaseGrantResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGrant {
		return nil, errors.New("etcdserver: too many requests")
	}
	m.nextLease++
	m.leases[m.nextLease] = true
	m.pendingLease = m.nextLease
	return &clientv3.LeaseGrantResponse{ID: m.nextLease}, nil
}

func (m *memStore) Revoke(_ context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	m.mu.Lock()
	if !m.leases[id] {
		m.mu.Unlock()
		return nil, errLeaseNotFound
	}
	delete(m.leases, id)
	for k, v := range m.keys {
		if v.lease == id {
			delete(m.keys, k)
		}
	}
	m.mu.Unlock()

	m.notify()
	return &clientv3.LeaseRevokeResponse{}, nil
}

func (m *memStore) KeepAliveOnce(_ context.Context, id clientv3.LeaseID) (*clientv3.LeaseKeepAliveResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failKeepOnce || !m.leases[id] {
		return nil, errLeaseNotFound
	}
	m.keepalives++
	return &clientv3.LeaseKeepAliveResponse{ID: id}, nil
}

func (m *memStore) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	m.mu.Lock()
	m.keys[key] = memValue{value: val, lease: m.pendingLease}
	m.pendingLease = 0
	m.mu.Unlock()

	m.notify()
	return &clientv3.PutResponse{}, nil
}

// putRaw stores a value without a lease, bypassing the directory.
func (m *memStore) putRaw(key, val string) {
	m.mu.Lock()
	m.keys[key] = memValue{value: val}
	m.mu.Unlock()
	m.notify()
}

// expire drops a lease as if its TTL ran out.
func (m *memStore) expire(id clientv3.LeaseID) {
	_, _ = m.Revoke(context.Background(), id)
}

// Get treats key as a prefix.
func (m *memStore) Get(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}

	var names []string
	for k := range m.keys {
		if strings.HasPrefix(k, key) {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	resp := &clientv3.GetResponse{}
	for _, k := range names {
		resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{Key: []byte(k), Value: []byte(m.keys[k].value)})
	}
	return resp, nil
}

func (m *memStore) Watch(_ context.Context, _ string, _ ...clientv3.OpOption) clientv3.WatchChan {
	ch := make(chan clientv3.WatchResponse, 16)
	m.mu.Lock()
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()
	return ch
}

func (m *memStore) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.watchers {
		select {
		case ch <- clientv3.WatchResponse{}:
		default:
		}
	}
}

func (m *memStore) watching() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

func (m *memStore) keepaliveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keepalives
}

func (m *memStore) leaseOf(key string) clientv3.LeaseID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key].lease
}

func (m *memStore) setFailKeepAlive(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failKeepOnce = fail
}

func (m *memStore) setFailGrant(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failGrant = fail
}
