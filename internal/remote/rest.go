package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/zalando/go-keyring"

	vaultererrors "github.com/forattini-dev/vaulter-sub005/internal/errors"
	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
	"github.com/forattini-dev/vaulter-sub005/pkg/store"
)

const (
	defaultRESTTimeout = 30 * time.Second
	keyringService     = "vaulter"
)

// RESTError represents an error response from a vaulter REST backend.
type RESTError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RESTError) Error() string {
	return fmt.Sprintf("rest %s failed with status %d: %s", e.Op, e.StatusCode, e.Message)
}

// TokenSource yields the bearer token for REST requests.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource holding a fixed token.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", errors.New("no token configured")
	}
	return string(t), nil
}

// KeyringTokenSource reads the token from the OS keychain (Secret Service on
// Linux, Keychain on macOS) and caches it in memory for the process lifetime.
type KeyringTokenSource struct {
	Service string
	Account string

	mu     sync.Mutex
	cached string
}

// Token returns the cached token, falling back to the keychain.
func (t *KeyringTokenSource) Token() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cached != "" {
		return t.cached, nil
	}

	token, err := keyring.Get(t.Service, t.Account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", vaultererrors.UserError{
				Message:    fmt.Sprintf("No API token stored for account '%s'", t.Account),
				Suggestion: "Store one with: vaulter auth login, or set the token in the store config",
				Err:        err,
			}
		}
		return "", fmt.Errorf("failed to read token from keychain: %w", err)
	}

	t.cached = token
	return token, nil
}

// StoreToken saves the token to the OS keychain.
func (t *KeyringTokenSource) StoreToken(token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := keyring.Set(t.Service, t.Account, token); err != nil {
		return fmt.Errorf("failed to store token in keychain: %w", err)
	}
	t.cached = token
	return nil
}

// RESTStore talks to a vaulter-compatible HTTP backend. Variables live under
// /v1/projects/{project}/environments/{environment}/variables with the scope
// passed as a query parameter.
type RESTStore struct {
	name       string
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// restVariable is the wire form of one variable.
type restVariable struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Scope     string    `json:"scope"`
	Sensitive bool      `json:"sensitive,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// RESTStoreOption is a functional option for configuring REST stores.
type RESTStoreOption func(*RESTStore)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) RESTStoreOption {
	return func(s *RESTStore) {
		s.httpClient = client
	}
}

// WithTokenSource sets a custom token source.
func WithTokenSource(tokens TokenSource) RESTStoreOption {
	return func(s *RESTStore) {
		s.tokens = tokens
	}
}

// NewRESTStore creates a store backed by a vaulter REST backend.
func NewRESTStore(name string, configMap map[string]interface{}, opts ...RESTStoreOption) (*RESTStore, error) {
	baseURL, _ := configMap["base_url"].(string)
	if baseURL == "" {
		return nil, vaultererrors.ConfigError{
			Field:   "stores." + name + ".base_url",
			Message: "base_url is required for rest stores",
		}
	}

	timeout := defaultRESTTimeout
	if t, ok := configMap["timeout"].(string); ok && t != "" {
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return nil, vaultererrors.ConfigError{
				Field:   "stores." + name + ".timeout",
				Message: fmt.Sprintf("invalid duration %q", t),
			}
		}
		timeout = parsed
	}

	transport := &http.Transport{TLSClientConfig: &tls.Config{}}
	if insecure, ok := configMap["insecure_skip_verify"].(bool); ok && insecure {
		transport.TLSClientConfig.InsecureSkipVerify = true
	}

	s := &RESTStore{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.tokens == nil {
		s.tokens = tokenSourceFromConfig(configMap)
	}

	return s, nil
}

// NewRESTStoreFactory creates the rest store type.
func NewRESTStoreFactory(name string, config map[string]interface{}) (store.Store, error) {
	return NewRESTStore(name, config)
}

// tokenSourceFromConfig picks the token source in precedence order: inline
// token, environment variable, then the OS keychain.
func tokenSourceFromConfig(configMap map[string]interface{}) TokenSource {
	if token, ok := configMap["token"].(string); ok && token != "" {
		return StaticToken(token)
	}
	if envVar, ok := configMap["token_env"].(string); ok && envVar != "" {
		if token := os.Getenv(envVar); token != "" {
			return StaticToken(token)
		}
	}

	account := "default"
	if a, ok := configMap["keyring_account"].(string); ok && a != "" {
		account = a
	}
	return &KeyringTokenSource{Service: keyringService, Account: account}
}

// Name returns the store identifier.
func (s *RESTStore) Name() string { return s.name }

func (s *RESTStore) variablesURL(project, environment string) string {
	return fmt.Sprintf("%s/v1/projects/%s/environments/%s/variables",
		s.baseURL, url.PathEscape(project), url.PathEscape(environment))
}

// doJSON performs one request and decodes the response into out when it is
// non-nil. A nil response pointer discards the body.
func (s *RESTStore) do(ctx context.Context, op, method, rawURL string, body interface{}, out interface{}) (int, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := s.tokens.Token()
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, store.UnavailableError{Store: s.name, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, store.UnavailableError{
			Store: s.name,
			Op:    op,
			Err:   &RESTError{Op: op, StatusCode: resp.StatusCode, Message: string(bodyBytes)},
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (s *RESTStore) toVariable(rv restVariable, project, environment string) (store.Variable, error) {
	sc, err := scope.Parse(rv.Scope)
	if err != nil {
		return store.Variable{}, fmt.Errorf("backend returned invalid scope %q: %w", rv.Scope, err)
	}
	return store.Variable{
		Key:         rv.Key,
		Value:       rv.Value,
		Project:     project,
		Environment: environment,
		Scope:       sc,
		Sensitive:   rv.Sensitive,
		UpdatedAt:   rv.UpdatedAt,
	}, nil
}

// List returns the variables of the project+environment, optionally narrowed
// to one scope.
func (s *RESTStore) List(ctx context.Context, q store.Query) ([]store.Variable, error) {
	rawURL := s.variablesURL(q.Project, q.Environment)
	if q.Scope != nil {
		rawURL += "?scope=" + url.QueryEscape(q.Scope.String())
	}

	var listResp struct {
		Variables []restVariable `json:"variables"`
	}
	status, err := s.do(ctx, "list", http.MethodGet, rawURL, nil, &listResp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}

	result := make([]store.Variable, 0, len(listResp.Variables))
	for _, rv := range listResp.Variables {
		v, err := s.toVariable(rv, q.Project, q.Environment)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

// Get returns one variable or a store.NotFoundError.
func (s *RESTStore) Get(ctx context.Context, key string, q store.Query) (store.Variable, error) {
	sc := scope.Shared
	if q.Scope != nil {
		sc = *q.Scope
	}
	rawURL := s.variablesURL(q.Project, q.Environment) + "/" + url.PathEscape(key) +
		"?scope=" + url.QueryEscape(sc.String())

	var rv restVariable
	status, err := s.do(ctx, "get", http.MethodGet, rawURL, nil, &rv)
	if err != nil {
		return store.Variable{}, err
	}
	if status == http.StatusNotFound {
		return store.Variable{}, store.NotFoundError{Store: s.name, Key: key}
	}
	return s.toVariable(rv, q.Project, q.Environment)
}

// Set writes one variable.
func (s *RESTStore) Set(ctx context.Context, in store.Input) error {
	rawURL := s.variablesURL(in.Project, in.Environment) + "/" + url.PathEscape(in.Key)
	body := restVariable{
		Key:       in.Key,
		Value:     in.Value,
		Scope:     in.Scope.String(),
		Sensitive: in.Sensitive,
	}
	status, err := s.do(ctx, "set", http.MethodPut, rawURL, body, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return store.UnavailableError{
			Store: s.name,
			Op:    "set",
			Err:   &RESTError{Op: "set", StatusCode: status, Message: "project or environment not found"},
		}
	}
	return nil
}

// Delete removes one variable, reporting whether it existed.
func (s *RESTStore) Delete(ctx context.Context, key string, q store.Query) (bool, error) {
	sc := scope.Shared
	if q.Scope != nil {
		sc = *q.Scope
	}
	rawURL := s.variablesURL(q.Project, q.Environment) + "/" + url.PathEscape(key) +
		"?scope=" + url.QueryEscape(sc.String())

	status, err := s.do(ctx, "delete", http.MethodDelete, rawURL, nil, nil)
	if err != nil {
		return false, err
	}
	return status != http.StatusNotFound, nil
}

// Export materializes the effective key→value map for the query's scope.
func (s *RESTStore) Export(ctx context.Context, q store.Query, opts store.ExportOptions) (map[string]string, error) {
	sc := scope.Shared
	if q.Scope != nil {
		sc = *q.Scope
	}

	own, err := s.exportScope(ctx, q.Project, q.Environment, sc)
	if err != nil {
		return nil, err
	}
	if sc.IsService() && opts.IncludeShared {
		shared, err := s.exportScope(ctx, q.Project, q.Environment, scope.Shared)
		if err != nil {
			return nil, err
		}
		return scope.MergeForService(shared, own, true), nil
	}
	return own, nil
}

func (s *RESTStore) exportScope(ctx context.Context, project, environment string, sc scope.Scope) (map[string]string, error) {
	vars, err := s.List(ctx, store.Query{Project: project, Environment: environment, Scope: &sc})
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, len(vars))
	for _, v := range vars {
		result[v.Key] = v.Value
	}
	return result, nil
}

// Validate checks connectivity and authentication against the backend.
func (s *RESTStore) Validate(ctx context.Context) error {
	status, err := s.do(ctx, "validate", http.MethodGet, s.baseURL+"/v1/health", nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return store.UnavailableError{
			Store: s.name,
			Op:    "validate",
			Err:   &RESTError{Op: "validate", StatusCode: status, Message: "health endpoint not found"},
		}
	}
	return nil
}
