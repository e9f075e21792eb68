package identity

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// fakeStore is an in-memory directory.Store. Put attaches the most recently
// granted lease.
type fakeStore struct {
	mu       sync.Mutex
	next     clientv3.LeaseID
	pending  clientv3.LeaseID
	leases   map[clientv3.LeaseID]bool
	keys     map[string]fakeValue
	watchers []chan clientv3.WatchResponse
}

type fakeValue struct {
	value string
	lease clientv3.LeaseID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		leases: make(map[clientv3.LeaseID]bool),
		keys:   make(map[string]fakeValue),
	}
}

func (f *fakeStore) Grant(context.Context, int64) (*clientv3.LeaseGrantResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.leases[f.next] = true
	f.pending = f.next
	return &clientv3.LeaseGrantResponse{ID: f.next}, nil
}

func (f *fakeStore) Revoke(_ context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	f.mu.Lock()
	if !f.leases[id] {
		f.mu.Unlock()
		return nil, errors.New("etcdserver: requested lease not found")
	}
	delete(f.leases, id)
	for k, v := range f.keys {
		if v.lease == id {
			delete(f.keys, k)
		}
	}
	f.mu.Unlock()
	f.notify()
	return &clientv3.LeaseRevokeResponse{}, nil
}

func (f *fakeStore) KeepAliveOnce(_ context.Context, id clientv3.LeaseID) (*clientv3.LeaseKeepAliveResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.leases[id] {
		return nil, errors.New("etcdserver: requested lease not found")
	}
	return &clientv3.LeaseKeepAliveResponse{ID: id}, nil
}

func (f *fakeStore) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	f.mu.Lock()
	f.keys[key] = fakeValue{value: val, lease: f.pending}
	f.pending = 0
	f.mu.Unlock()
	f.notify()
	return &clientv3.PutResponse{}, nil
}

func (f *fakeStore) Get(_ context.Context, prefix string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []string
	for k := range f.keys {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, k)
		}
	}
	sort.Strings(matched)

	resp := &clientv3.GetResponse{}
	for _, k := range matched {
		resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{Key: []byte(k), Value: []byte(f.keys[k].value)})
	}
	return resp, nil
}

func (f *fakeStore) Watch(context.Context, string, ...clientv3.OpOption) clientv3.WatchChan {
	ch := make(chan clientv3.WatchResponse, 16)
	f.mu.Lock()
	f.watchers = append(f.watchers, ch)
	f.mu.Unlock()
	return ch
}

func (f *fakeStore) notify() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.watchers {
		select {
		case ch <- clientv3.WatchResponse{}:
		default:
		}
	}
}

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.keys[key]
	return ok
}
