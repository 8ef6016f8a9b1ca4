package fakes

import (
	"context"
	"sync"

	"github.com/forattini-dev/vaulter-sub005/pkg/store"
)

// FlakyStore wraps a real store and injects failures per key and operation.
// The zero failure maps pass everything through unchanged.
type FlakyStore struct {
	Inner store.Store

	mu         sync.Mutex
	setErrs    map[string]error
	deleteErrs map[string]error
	listErr    error
	SetCalls   []string
	DelCalls   []string
}

// NewFlakyStore wraps inner with no failures configured.
func NewFlakyStore(inner store.Store) *FlakyStore {
	return &FlakyStore{
		Inner:      inner,
		setErrs:    make(map[string]error),
		deleteErrs: make(map[string]error),
	}
}

// FailSet makes Set fail for one key.
func (f *FlakyStore) FailSet(key string, err error) *FlakyStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setErrs[key] = err
	return f
}

// FailDelete makes Delete fail for one key.
func (f *FlakyStore) FailDelete(key string, err error) *FlakyStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteErrs[key] = err
	return f
}

// FailList makes every List call fail.
func (f *FlakyStore) FailList(err error) *FlakyStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
	return f
}

func (f *FlakyStore) Name() string { return f.Inner.Name() }

func (f *FlakyStore) List(ctx context.Context, q store.Query) ([]store.Variable, error) {
	f.mu.Lock()
	err := f.listErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Inner.List(ctx, q)
}

func (f *FlakyStore) Get(ctx context.Context, key string, q store.Query) (store.Variable, error) {
	return f.Inner.Get(ctx, key, q)
}

func (f *FlakyStore) Set(ctx context.Context, in store.Input) error {
	f.mu.Lock()
	f.SetCalls = append(f.SetCalls, in.Key)
	err := f.setErrs[in.Key]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Inner.Set(ctx, in)
}

func (f *FlakyStore) Delete(ctx context.Context, key string, q store.Query) (bool, error) {
	f.mu.Lock()
	f.DelCalls = append(f.DelCalls, key)
	err := f.deleteErrs[key]
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.Inner.Delete(ctx, key, q)
}

func (f *FlakyStore) Export(ctx context.Context, q store.Query, opts store.ExportOptions) (map[string]string, error) {
	return f.Inner.Export(ctx, q, opts)
}

func (f *FlakyStore) Validate(ctx context.Context) error {
	return f.Inner.Validate(ctx)
}
