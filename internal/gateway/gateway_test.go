package gateway

import (
	"context"
	"testing"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyOnlyTracker(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cr   changelog.ChangeRequest
		want []string
	}{
		"title and description": {
			cr:   changelog.ChangeRequest{Title: "PROJ-2 login", Description: "Also fixes OPS-9 and PROJ-2"},
			want: []string{"OPS-9", "PROJ-2"},
		},
		"linked keys merged": {
			cr:   changelog.ChangeRequest{Title: "no keys here", LinkedIssueKeys: []string{"ABC-1"}},
			want: []string{"ABC-1"},
		},
		"nothing": {
			cr:   changelog.ChangeRequest{Title: "chore"},
			want: []string{},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			issues, err := KeyOnlyTracker{}.ListIssuesForChangeRequest(context.Background(), changelog.RepositoryID{}, tt.cr)
			require.NoError(t, err)

			keys := make([]string, 0, len(issues))
			for _, issue := range issues {
				assert.Equal(t, UnknownStatus, issue.Status)
				keys = append(keys, issue.Key)
			}
			assert.Equal(t, tt.want, keys)
			assert.Equal(t, tt.want, IssueKeysFor(tt.cr))
		})
	}
}

func TestDeployedRevision_Ambiguous(t *testing.T) {
	t.Parallel()

	repo := changelog.RepositoryID{Project: "PROJ", Name: "app"}
	other := changelog.RepositoryID{Project: "PROJ", Name: "other"}

	tests := map[string]struct {
		rev  DeployedRevision
		want bool
	}{
		"single repository":  {rev: DeployedRevision{Repository: repo, Candidates: []changelog.RepositoryID{repo}}, want: false},
		"no candidates":      {rev: DeployedRevision{Repository: repo}, want: false},
		"two candidates":     {rev: DeployedRevision{Repository: repo, Candidates: []changelog.RepositoryID{repo, other}}, want: true},
		"missing repository": {rev: DeployedRevision{Revision: "abc"}, want: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.rev.Ambiguous())
		})
	}
}

func TestNoTracker(t *testing.T) {
	t.Parallel()

	issues, err := NoTracker{}.ListIssuesForChangeRequest(context.Background(), changelog.RepositoryID{},
		changelog.ChangeRequest{ID: 1, Title: "PROJ-1 fix"})
	require.NoError(t, err)
	assert.Empty(t, issues)
}
