package resolve

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/gateway"
	"github.com/deploylog/deploylog/internal/gateway/deployfile"
	"github.com/deploylog/deploylog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	repo  = changelog.RepositoryID{Project: "PROJ", Name: "checkout"}
	other = changelog.RepositoryID{Project: "PROJ", Name: "legacy"}
)

// deploymentOnly hides PendingRevision from the fake.
type deploymentOnly struct {
	gateway.Deployment
}

func deployments() *testutil.FakeDeployment {
	return &testutil.FakeDeployment{
		Current: map[string]gateway.DeployedRevision{
			"checkout/prod":   {Repository: repo, Revision: "cur", Version: "1.2"},
			"checkout/canary": {Repository: repo, Revision: "cur"},
			"moved/prod":      {Repository: repo, Revision: "cur"},
			"split/prod":      {Repository: repo, Revision: "cur", Candidates: []changelog.RepositoryID{repo, other}},
		},
		Previous: map[string]gateway.DeployedRevision{
			"checkout/prod": {Repository: repo, Revision: "prev", Version: "1.1"},
			"moved/prod":    {Repository: other, Revision: "prev"},
			"split/prod":    {Repository: repo, Revision: "prev"},
		},
		Pending: map[string]gateway.DeployedRevision{
			"checkout/prod": {Repository: repo, Revision: "next"},
		},
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		spec       changelog.CommitSpecifier
		deployment gateway.Deployment
		missing    map[string]bool
		want       changelog.ResolvedRange
		wantErr    error
	}{
		"explicit range": {
			spec: changelog.NewExplicitRange(repo, "v1", "v2"),
			want: changelog.ResolvedRange{Repository: repo, StartRevision: "v1", EndRevision: "v2"},
		},
		"explicit missing end": {
			spec:    changelog.NewExplicitRange(repo, "v1", "v9"),
			missing: map[string]bool{"v9": true},
			wantErr: changelog.ErrNotFound,
		},
		"environment": {
			spec:       changelog.NewEnvironmentReference("checkout", "prod"),
			deployment: deployments(),
			want:       changelog.ResolvedRange{Repository: repo, StartRevision: "prev", EndRevision: "cur"},
		},
		"pending": {
			spec:       changelog.NewPendingEnvironmentReference("checkout", "prod"),
			deployment: deployments(),
			want:       changelog.ResolvedRange{Repository: repo, StartRevision: "cur", EndRevision: "next"},
		},
		"pending unsupported": {
			spec:       changelog.NewPendingEnvironmentReference("checkout", "prod"),
			deployment: deploymentOnly{deployments()},
			wantErr:    changelog.ErrEnvironmentUnresolvable,
		},
		"no previous deployment": {
			spec:       changelog.NewEnvironmentReference("checkout", "canary"),
			deployment: deployments(),
			wantErr:    changelog.ErrEnvironmentUnresolvable,
		},
		"no deployment gateway": {
			spec:    changelog.NewEnvironmentReference("checkout", "prod"),
			wantErr: changelog.ErrEnvironmentUnresolvable,
		},
		"repository changed between deployments": {
			spec:       changelog.NewEnvironmentReference("moved", "prod"),
			deployment: deployments(),
			wantErr:    changelog.ErrAmbiguousRepository,
		},
		"several candidate repositories": {
			spec:       changelog.NewEnvironmentReference("split", "prod"),
			deployment: deployments(),
			wantErr:    changelog.ErrAmbiguousRepository,
		},
		"deployed revision missing from repository": {
			spec:       changelog.NewEnvironmentReference("checkout", "prod"),
			deployment: deployments(),
			missing:    map[string]bool{"prev": true},
			wantErr:    changelog.ErrNotFound,
		},
		"invalid specifier": {
			spec:    changelog.CommitSpecifier{},
			wantErr: changelog.ErrInvalidSpecifier,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			source := &testutil.FakeSourceControl{Missing: tt.missing}
			var opts []Option
			if tt.deployment != nil {
				opts = append(opts, WithDeployment(tt.deployment))
			}
			got, err := New(source, opts...).Resolve(context.Background(), tt.spec)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, changelog.ResolvedRange{}, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 2, source.Count("Exists"))
		})
	}
}

func TestResolve_AmbiguousSentinelFromGateway(t *testing.T) {
	t.Parallel()

	d := deployments()
	d.Err = map[string]error{"checkout/prod": gateway.ErrAmbiguous}

	_, err := New(&testutil.FakeSourceControl{}, WithDeployment(d)).
		Resolve(context.Background(), changelog.NewEnvironmentReference("checkout", "prod"))
	assert.ErrorIs(t, err, changelog.ErrAmbiguousRepository)
}

func TestResolve_GatewayFailurePassesThrough(t *testing.T) {
	t.Parallel()

	boom := &changelog.GatewayError{Gateway: "spinnaker", Op: "query", Err: errors.New("503")}
	d := deployments()
	d.Err = map[string]error{"checkout/prod": boom}

	_, err := New(&testutil.FakeSourceControl{}, WithDeployment(d)).
		Resolve(context.Background(), changelog.NewEnvironmentReference("checkout", "prod"))
	assert.ErrorIs(t, err, boom)
	assert.False(t, changelog.IsDomainError(err))
}

func TestResolve_AppendedHistoryFile(t *testing.T) {
	t.Parallel()

	file, err := deployfile.Decode(strings.NewReader(`
deployments:
  - {application: app, environment: prod, repository: PROJ/app, revision: rev1}
  - {application: app, environment: prod, repository: PROJ/app, revision: rev2}
  - {application: app, environment: prod, repository: PROJ/app, revision: rev3}
`))
	require.NoError(t, err)

	got, err := New(&testutil.FakeSourceControl{}, WithDeployment(deployfile.New(file))).
		Resolve(context.Background(), changelog.NewEnvironmentReference("app", "prod"))
	require.NoError(t, err)
	assert.Equal(t, "rev2", got.StartRevision)
	assert.Equal(t, "rev3", got.EndRevision)
	assert.Equal(t, "PROJ/app", got.Repository.String())
}
