package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/vaulter-sub005/internal/remote"
	"github.com/forattini-dev/vaulter-sub005/pkg/store"
)

type restVar struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Scope     string `json:"scope"`
	Sensitive bool   `json:"sensitive,omitempty"`
}

// fakeBackend is a minimal in-memory vaulter REST backend.
type fakeBackend struct {
	mu    sync.Mutex
	vars  map[string]restVar // keyed by scope + "/" + key
	token string
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/v1/projects/shop/environments/dev/variables", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()

		wantScope := r.URL.Query().Get("scope")
		var list []restVar
		for _, v := range b.vars {
			if wantScope == "" || v.Scope == wantScope {
				list = append(list, v)
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"variables": list})
	})

	mux.HandleFunc("/v1/projects/shop/environments/dev/variables/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		key := r.URL.Path[len("/v1/projects/shop/environments/dev/variables/"):]
		sc := r.URL.Query().Get("scope")
		b.mu.Lock()
		defer b.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			v, ok := b.vars[sc+"/"+key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(v)
		case http.MethodPut:
			var v restVar
			if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			b.vars[v.Scope+"/"+v.Key] = v
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			if _, ok := b.vars[sc+"/"+key]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(b.vars, sc+"/"+key)
			w.WriteHeader(http.StatusNoContent)
		}
	})

	return mux
}

func (b *fakeBackend) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+b.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func newRESTFixture(t *testing.T) (*remote.RESTStore, *fakeBackend) {
	t.Helper()

	backend := &fakeBackend{vars: make(map[string]restVar), token: "test-token"}
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	st, err := remote.NewRESTStore("central", map[string]interface{}{
		"base_url": server.URL,
	}, remote.WithTokenSource(remote.StaticToken("test-token")))
	require.NoError(t, err)
	return st, backend
}

func TestRESTStoreRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := remote.NewRESTStore("central", map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestRESTStoreSetGetRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, _ := newRESTFixture(t)
	api := mustService(t, "api")

	require.NoError(t, st.Set(ctx, store.Input{
		Key: "DB_PASSWORD", Value: "hunter2", Project: "shop", Environment: "dev",
		Scope: api, Sensitive: true,
	}))

	got, err := st.Get(ctx, "DB_PASSWORD", store.Query{Project: "shop", Environment: "dev", Scope: &api})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got.Value)
	assert.True(t, got.Sensitive)
	assert.Equal(t, api, got.Scope)
}

func TestRESTStoreGetMissingVariable(t *testing.T) {
	t.Parallel()

	st, _ := newRESTFixture(t)
	_, err := st.Get(context.Background(), "MISSING", store.Query{Project: "shop", Environment: "dev"})
	var notFound store.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "MISSING", notFound.Key)
}

func TestRESTStoreListFiltersByScope(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, backend := newRESTFixture(t)
	api := mustService(t, "api")

	backend.vars["shared/LOG_LEVEL"] = restVar{Key: "LOG_LEVEL", Value: "info", Scope: "shared"}
	backend.vars["service:api/PORT"] = restVar{Key: "PORT", Value: "8080", Scope: "service:api"}

	all, err := st.List(ctx, store.Query{Project: "shop", Environment: "dev"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := st.List(ctx, store.Query{Project: "shop", Environment: "dev", Scope: &api})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "PORT", scoped[0].Key)
	assert.Equal(t, api, scoped[0].Scope)
}

func TestRESTStoreDeleteReportsExistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, backend := newRESTFixture(t)
	backend.vars["shared/OLD"] = restVar{Key: "OLD", Value: "x", Scope: "shared"}

	existed, err := st.Delete(ctx, "OLD", store.Query{Project: "shop", Environment: "dev"})
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = st.Delete(ctx, "OLD", store.Query{Project: "shop", Environment: "dev"})
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestRESTStoreExportIncludesShared(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, backend := newRESTFixture(t)
	api := mustService(t, "api")

	backend.vars["shared/LOG_LEVEL"] = restVar{Key: "LOG_LEVEL", Value: "info", Scope: "shared"}
	backend.vars["service:api/LOG_LEVEL"] = restVar{Key: "LOG_LEVEL", Value: "debug", Scope: "service:api"}
	backend.vars["service:api/PORT"] = restVar{Key: "PORT", Value: "8080", Scope: "service:api"}

	merged, err := st.Export(ctx, store.Query{Project: "shop", Environment: "dev", Scope: &api}, store.ExportOptions{IncludeShared: true})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"LOG_LEVEL": "debug", "PORT": "8080"}, merged)
}

func TestRESTStoreRejectedToken(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{vars: make(map[string]restVar), token: "right-token"}
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	st, err := remote.NewRESTStore("central", map[string]interface{}{
		"base_url": server.URL,
	}, remote.WithTokenSource(remote.StaticToken("wrong-token")))
	require.NoError(t, err)

	_, listErr := st.List(context.Background(), store.Query{Project: "shop", Environment: "dev"})
	var unavailable store.UnavailableError
	require.ErrorAs(t, listErr, &unavailable)

	var restErr *remote.RESTError
	require.ErrorAs(t, listErr, &restErr)
	assert.Equal(t, http.StatusUnauthorized, restErr.StatusCode)
}

func TestRESTStoreValidate(t *testing.T) {
	t.Parallel()

	st, _ := newRESTFixture(t)
	assert.NoError(t, st.Validate(context.Background()))

	dead := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(dead.Close)
	broken, err := remote.NewRESTStore("central", map[string]interface{}{
		"base_url": dead.URL,
	}, remote.WithTokenSource(remote.StaticToken("t")))
	require.NoError(t, err)
	assert.Error(t, broken.Validate(context.Background()))
}

func TestStaticTokenRequiresValue(t *testing.T) {
	t.Parallel()

	_, err := remote.StaticToken("").Token()
	assert.Error(t, err)

	token, err := remote.StaticToken("abc").Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}
