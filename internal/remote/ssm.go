package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/forattini-dev/vaulter-sub005/internal/logging"
	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
	"github.com/forattini-dev/vaulter-sub005/pkg/store"
)

// SSMClientAPI defines the AWS SSM Parameter Store operations used by the
// store. This allows for mocking in tests.
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
}

// SSMStore keeps variables as SSM parameters under
// /<prefix><project>/<environment>/shared/<key> and
// /<prefix><project>/<environment>/services/<name>/<key>. Sensitive values
// are stored as SecureString.
type SSMStore struct {
	name   string
	client SSMClientAPI
	logger *logging.Logger
	config SSMConfig
}

// SSMConfig holds AWS SSM-specific configuration.
type SSMConfig struct {
	Region     string
	Profile    string
	KMSKeyID   string
	PathPrefix string
}

// SSMStoreOption is a functional option for configuring SSM stores.
type SSMStoreOption func(*SSMStore)

// WithSSMClient sets a custom SSM client (for testing).
func WithSSMClient(client SSMClientAPI) SSMStoreOption {
	return func(s *SSMStore) {
		s.client = client
	}
}

// NewSSMStore creates an SSM Parameter Store backed store.
func NewSSMStore(name string, configMap map[string]interface{}, opts ...SSMStoreOption) (*SSMStore, error) {
	config := SSMConfig{}
	if region, ok := configMap["region"].(string); ok {
		config.Region = region
	}
	if profile, ok := configMap["profile"].(string); ok {
		config.Profile = profile
	}
	if kms, ok := configMap["kms_key_id"].(string); ok {
		config.KMSKeyID = kms
	}
	if prefix, ok := configMap["path_prefix"].(string); ok {
		config.PathPrefix = prefix
	}

	s := &SSMStore{
		name:   name,
		logger: logging.New(false, false),
		config: config,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		client, err := createSSMClient(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSM client: %w", err)
		}
		s.client = client
	}

	return s, nil
}

// NewSSMStoreFactory creates the aws.ssm store type.
func NewSSMStoreFactory(name string, config map[string]interface{}) (store.Store, error) {
	return NewSSMStore(name, config)
}

func createSSMClient(config SSMConfig) (*ssm.Client, error) {
	ctx := context.Background()

	var configOpts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(config.Region))
	}
	if config.Profile != "" {
		configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(config.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return ssm.NewFromConfig(cfg), nil
}

// Name returns the store identifier.
func (s *SSMStore) Name() string { return s.name }

// envPath is the parameter path prefix for one project+environment.
func (s *SSMStore) envPath(project, environment string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(s.config.PathPrefix, "/"), project, environment)
}

// scopePath maps a scope to its path segment under the environment path.
func scopePath(sc scope.Scope) string {
	if sc.IsShared() {
		return scope.SharedName
	}
	return "services/" + sc.ServiceName()
}

// parameterName builds the full parameter name for one variable.
func (s *SSMStore) parameterName(project, environment string, sc scope.Scope, key string) string {
	return s.envPath(project, environment) + "/" + scopePath(sc) + "/" + key
}

// parseParameterName inverts parameterName, returning the scope and key.
func (s *SSMStore) parseParameterName(project, environment, name string) (scope.Scope, string, bool) {
	prefix := s.envPath(project, environment) + "/"
	rel, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return scope.Scope{}, "", false
	}

	parts := strings.Split(rel, "/")
	switch {
	case len(parts) == 2 && parts[0] == scope.SharedName:
		return scope.Shared, parts[1], true
	case len(parts) == 3 && parts[0] == "services":
		sc, err := scope.ForService(parts[1])
		if err != nil {
			return scope.Scope{}, "", false
		}
		return sc, parts[2], true
	}
	return scope.Scope{}, "", false
}

// List returns every variable under the project+environment path, optionally
// narrowed to one scope. Pagination is followed to exhaustion.
func (s *SSMStore) List(ctx context.Context, q store.Query) ([]store.Variable, error) {
	path := s.envPath(q.Project, q.Environment)
	if q.Scope != nil {
		path += "/" + scopePath(*q.Scope)
	}

	var result []store.Variable
	var nextToken *string
	for {
		out, err := s.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:           aws.String(path),
			Recursive:      aws.Bool(true),
			WithDecryption: aws.Bool(true),
			NextToken:      nextToken,
		})
		if err != nil {
			return nil, store.UnavailableError{Store: s.name, Op: "list", Err: err}
		}

		for _, param := range out.Parameters {
			if param.Name == nil || param.Value == nil {
				continue
			}
			sc, key, ok := s.parseParameterName(q.Project, q.Environment, *param.Name)
			if !ok {
				s.logger.Debug("Skipping parameter outside the vaulter layout: %s", *param.Name)
				continue
			}

			v := store.Variable{
				Key:         key,
				Value:       *param.Value,
				Project:     q.Project,
				Environment: q.Environment,
				Scope:       sc,
				Sensitive:   param.Type == types.ParameterTypeSecureString,
			}
			if param.LastModifiedDate != nil {
				v.UpdatedAt = *param.LastModifiedDate
			}
			result = append(result, v)
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	return result, nil
}

// Get returns one variable or a store.NotFoundError.
func (s *SSMStore) Get(ctx context.Context, key string, q store.Query) (store.Variable, error) {
	sc := scope.Shared
	if q.Scope != nil {
		sc = *q.Scope
	}
	name := s.parameterName(q.Project, q.Environment, sc, key)

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		if isParameterNotFound(err) {
			return store.Variable{}, store.NotFoundError{Store: s.name, Key: key}
		}
		return store.Variable{}, store.UnavailableError{Store: s.name, Op: "get", Err: err}
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return store.Variable{}, fmt.Errorf("parameter %s has no value", name)
	}

	v := store.Variable{
		Key:         key,
		Value:       *out.Parameter.Value,
		Project:     q.Project,
		Environment: q.Environment,
		Scope:       sc,
		Sensitive:   out.Parameter.Type == types.ParameterTypeSecureString,
	}
	if out.Parameter.LastModifiedDate != nil {
		v.UpdatedAt = *out.Parameter.LastModifiedDate
	}
	return v, nil
}

// Set writes one parameter, SecureString for sensitive values.
func (s *SSMStore) Set(ctx context.Context, in store.Input) error {
	input := &ssm.PutParameterInput{
		Name:      aws.String(s.parameterName(in.Project, in.Environment, in.Scope, in.Key)),
		Value:     aws.String(in.Value),
		Overwrite: aws.Bool(true),
		Type:      types.ParameterTypeString,
	}
	if in.Sensitive {
		input.Type = types.ParameterTypeSecureString
		if s.config.KMSKeyID != "" {
			input.KeyId = aws.String(s.config.KMSKeyID)
		}
	}

	if _, err := s.client.PutParameter(ctx, input); err != nil {
		return store.UnavailableError{Store: s.name, Op: "set", Err: err}
	}

	s.logger.Debug("Wrote parameter %s", logging.Secret(in.Key))
	return nil
}

// Delete removes one parameter, reporting whether it existed.
func (s *SSMStore) Delete(ctx context.Context, key string, q store.Query) (bool, error) {
	sc := scope.Shared
	if q.Scope != nil {
		sc = *q.Scope
	}

	_, err := s.client.DeleteParameter(ctx, &ssm.DeleteParameterInput{
		Name: aws.String(s.parameterName(q.Project, q.Environment, sc, key)),
	})
	if err != nil {
		if isParameterNotFound(err) {
			return false, nil
		}
		return false, store.UnavailableError{Store: s.name, Op: "delete", Err: err}
	}
	return true, nil
}

// Export materializes the effective key→value map for the query's scope.
func (s *SSMStore) Export(ctx context.Context, q store.Query, opts store.ExportOptions) (map[string]string, error) {
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

func (s *SSMStore) exportScope(ctx context.Context, project, environment string, sc scope.Scope) (map[string]string, error) {
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

// Validate checks connectivity by listing the path prefix root.
func (s *SSMStore) Validate(ctx context.Context) error {
	_, err := s.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
		Path:       aws.String(s.envPath("vaulter", "validate")),
		Recursive:  aws.Bool(false),
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return store.UnavailableError{Store: s.name, Op: "validate", Err: err}
	}
	return nil
}

func isParameterNotFound(err error) bool {
	var notFound *types.ParameterNotFound
	return errors.As(err, &notFound)
}
