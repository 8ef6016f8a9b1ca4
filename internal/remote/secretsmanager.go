package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/forattini-dev/vaulter-sub005/internal/logging"
	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
	"github.com/forattini-dev/vaulter-sub005/pkg/store"
)

// SecretsManagerClientAPI defines the AWS Secrets Manager operations used by
// the store. This allows for mocking in tests.
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	UpdateSecret(ctx context.Context, params *secretsmanager.UpdateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
}

// secretEntry is one variable inside a scope document.
type secretEntry struct {
	Value     string `json:"value"`
	Sensitive bool   `json:"sensitive,omitempty"`
}

// scopeDocument is the JSON body of one Secrets Manager secret. A single
// secret holds every variable of one project+environment+scope, keyed by
// variable name.
type scopeDocument map[string]secretEntry

// SecretsManagerStore keeps one secret per project+environment+scope, named
// <project>/<environment>/shared or <project>/<environment>/services/<name>.
type SecretsManagerStore struct {
	name   string
	client SecretsManagerClientAPI
	logger *logging.Logger
	region string
}

// SecretsManagerStoreOption is a functional option for configuring the store.
type SecretsManagerStoreOption func(*SecretsManagerStore)

// WithSecretsManagerClient sets a custom Secrets Manager client (for testing).
func WithSecretsManagerClient(client SecretsManagerClientAPI) SecretsManagerStoreOption {
	return func(s *SecretsManagerStore) {
		s.client = client
	}
}

// NewSecretsManagerStore creates an AWS Secrets Manager backed store.
func NewSecretsManagerStore(name string, configMap map[string]interface{}, opts ...SecretsManagerStoreOption) (*SecretsManagerStore, error) {
	region := "us-east-1"
	if r, ok := configMap["region"].(string); ok && r != "" {
		region = r
	}
	var profile string
	if p, ok := configMap["profile"].(string); ok {
		profile = p
	}

	s := &SecretsManagerStore{
		name:   name,
		logger: logging.New(false, false),
		region: region,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		configOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
		if profile != "" {
			configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(profile))
		}
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(), configOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		s.client = secretsmanager.NewFromConfig(cfg)
	}

	return s, nil
}

// NewSecretsManagerStoreFactory creates the aws.secretsmanager store type.
func NewSecretsManagerStoreFactory(name string, config map[string]interface{}) (store.Store, error) {
	return NewSecretsManagerStore(name, config)
}

// Name returns the store identifier.
func (s *SecretsManagerStore) Name() string { return s.name }

func (s *SecretsManagerStore) secretName(project, environment string, sc scope.Scope) string {
	return project + "/" + environment + "/" + scopePath(sc)
}

// parseSecretName inverts secretName, returning the scope of the document.
func (s *SecretsManagerStore) parseSecretName(project, environment, name string) (scope.Scope, bool) {
	rel, ok := strings.CutPrefix(name, project+"/"+environment+"/")
	if !ok {
		return scope.Scope{}, false
	}
	if rel == scope.SharedName {
		return scope.Shared, true
	}
	if svc, ok := strings.CutPrefix(rel, "services/"); ok && !strings.Contains(svc, "/") {
		sc, err := scope.ForService(svc)
		if err != nil {
			return scope.Scope{}, false
		}
		return sc, true
	}
	return scope.Scope{}, false
}

// loadDocument fetches and decodes one scope document. A missing secret is an
// empty document, not an error.
func (s *SecretsManagerStore) loadDocument(ctx context.Context, name string) (scopeDocument, time.Time, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		if isSecretNotFound(err) {
			return scopeDocument{}, time.Time{}, nil
		}
		return nil, time.Time{}, store.UnavailableError{Store: s.name, Op: "get", Err: err}
	}
	if out.SecretString == nil {
		return scopeDocument{}, time.Time{}, nil
	}

	doc := scopeDocument{}
	if err := json.Unmarshal([]byte(*out.SecretString), &doc); err != nil {
		return nil, time.Time{}, fmt.Errorf("secret %s holds malformed JSON: %w", name, err)
	}

	var updated time.Time
	if out.CreatedDate != nil {
		updated = *out.CreatedDate
	}
	return doc, updated, nil
}

// saveDocument writes one scope document back, creating the secret on first
// use.
func (s *SecretsManagerStore) saveDocument(ctx context.Context, name string, doc scopeDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode secret document: %w", err)
	}
	secretString := string(body)

	_, err = s.client.UpdateSecret(ctx, &secretsmanager.UpdateSecretInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(secretString),
	})
	if err == nil {
		return nil
	}
	if !isSecretNotFound(err) {
		return store.UnavailableError{Store: s.name, Op: "set", Err: err}
	}

	_, err = s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(secretString),
	})
	if err != nil {
		return store.UnavailableError{Store: s.name, Op: "set", Err: err}
	}
	s.logger.Debug("Created secret document %s", name)
	return nil
}

// listScopes returns every scope that has a document for the given
// project+environment, discovered via name-filtered ListSecrets.
func (s *SecretsManagerStore) listScopes(ctx context.Context, project, environment string) ([]scope.Scope, error) {
	prefix := project + "/" + environment + "/"

	var scopes []scope.Scope
	var nextToken *string
	for {
		out, err := s.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{
			Filters: []smtypes.Filter{{
				Key:    smtypes.FilterNameStringTypeName,
				Values: []string{prefix},
			}},
			NextToken: nextToken,
		})
		if err != nil {
			return nil, store.UnavailableError{Store: s.name, Op: "list", Err: err}
		}
		for _, secret := range out.SecretList {
			if secret.Name == nil {
				continue
			}
			if sc, ok := s.parseSecretName(project, environment, *secret.Name); ok {
				scopes = append(scopes, sc)
			}
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return scopes, nil
}

// List returns the variables of one scope, or of every scope under the
// project+environment when the query leaves the scope unset.
func (s *SecretsManagerStore) List(ctx context.Context, q store.Query) ([]store.Variable, error) {
	scopes := []scope.Scope{}
	if q.Scope != nil {
		scopes = append(scopes, *q.Scope)
	} else {
		found, err := s.listScopes(ctx, q.Project, q.Environment)
		if err != nil {
			return nil, err
		}
		scopes = found
	}

	var result []store.Variable
	for _, sc := range scopes {
		doc, updated, err := s.loadDocument(ctx, s.secretName(q.Project, q.Environment, sc))
		if err != nil {
			return nil, err
		}
		for key, entry := range doc {
			result = append(result, store.Variable{
				Key:         key,
				Value:       entry.Value,
				Project:     q.Project,
				Environment: q.Environment,
				Scope:       sc,
				Sensitive:   entry.Sensitive,
				UpdatedAt:   updated,
			})
		}
	}
	return result, nil
}

// Get returns one variable or a store.NotFoundError.
func (s *SecretsManagerStore) Get(ctx context.Context, key string, q store.Query) (store.Variable, error) {
	sc := scope.Shared
	if q.Scope != nil {
		sc = *q.Scope
	}

	doc, updated, err := s.loadDocument(ctx, s.secretName(q.Project, q.Environment, sc))
	if err != nil {
		return store.Variable{}, err
	}
	entry, ok := doc[key]
	if !ok {
		return store.Variable{}, store.NotFoundError{Store: s.name, Key: key}
	}

	return store.Variable{
		Key:         key,
		Value:       entry.Value,
		Project:     q.Project,
		Environment: q.Environment,
		Scope:       sc,
		Sensitive:   entry.Sensitive,
		UpdatedAt:   updated,
	}, nil
}

// Set writes one variable into its scope document.
func (s *SecretsManagerStore) Set(ctx context.Context, in store.Input) error {
	name := s.secretName(in.Project, in.Environment, in.Scope)
	doc, _, err := s.loadDocument(ctx, name)
	if err != nil {
		return err
	}
	doc[in.Key] = secretEntry{Value: in.Value, Sensitive: in.Sensitive}
	if err := s.saveDocument(ctx, name, doc); err != nil {
		return err
	}
	s.logger.Debug("Wrote %s into %s", logging.Secret(in.Key), name)
	return nil
}

// Delete removes one variable from its scope document, reporting whether it
// existed.
func (s *SecretsManagerStore) Delete(ctx context.Context, key string, q store.Query) (bool, error) {
	sc := scope.Shared
	if q.Scope != nil {
		sc = *q.Scope
	}

	name := s.secretName(q.Project, q.Environment, sc)
	doc, _, err := s.loadDocument(ctx, name)
	if err != nil {
		return false, err
	}
	if _, ok := doc[key]; !ok {
		return false, nil
	}
	delete(doc, key)
	if err := s.saveDocument(ctx, name, doc); err != nil {
		return false, err
	}
	return true, nil
}

// Export materializes the effective key→value map for the query's scope.
func (s *SecretsManagerStore) Export(ctx context.Context, q store.Query, opts store.ExportOptions) (map[string]string, error) {
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

func (s *SecretsManagerStore) exportScope(ctx context.Context, project, environment string, sc scope.Scope) (map[string]string, error) {
	doc, _, err := s.loadDocument(ctx, s.secretName(project, environment, sc))
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, len(doc))
	for key, entry := range doc {
		result[key] = entry.Value
	}
	return result, nil
}

// Validate checks that AWS credentials are configured and accessible.
func (s *SecretsManagerStore) Validate(ctx context.Context) error {
	_, err := s.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return store.UnavailableError{Store: s.name, Op: "validate", Err: err}
	}
	return nil
}

func isSecretNotFound(err error) bool {
	var notFound *smtypes.ResourceNotFoundException
	return errors.As(err, &notFound)
}
