package changelog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderedChangeRequests(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		changelog *Changelog
		want      []ChangeRequestID
	}{
		"ordered by first commit not by id": {
			changelog: sampleChangelog(),
			want:      []ChangeRequestID{42, 7},
		},
		"ties broken by id": {
			changelog: &Changelog{
				Commits: []Commit{{RevisionID: "x"}},
				ChangeRequests: map[ChangeRequestID]ChangeRequest{
					9: {ID: 9, SourceRevisionIDs: []string{"missing"}},
					3: {ID: 3, SourceRevisionIDs: []string{"gone"}},
					5: {ID: 5, SourceRevisionIDs: []string{"x"}},
				},
			},
			want: []ChangeRequestID{5, 3, 9},
		},
		"no change requests": {
			changelog: emptyChangelog(),
			want:      []ChangeRequestID{},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := make([]ChangeRequestID, 0)
			for _, cr := range tt.changelog.OrderedChangeRequests() {
				got = append(got, cr.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommitsFor(t *testing.T) {
	t.Parallel()

	c := sampleChangelog()

	tests := map[string]struct {
		id   ChangeRequestID
		want []string
	}{
		"keeps changelog order": {id: 42, want: []string{revC, revB}},
		"single commit":         {id: 7, want: []string{revA}},
		"unknown id":            {id: 99, want: nil},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var got []string
			for _, commit := range c.CommitsFor(tt.id) {
				got = append(got, commit.RevisionID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUngroupedCommits(t *testing.T) {
	t.Parallel()

	got := sampleChangelog().UngroupedCommits()
	if assert.Len(t, got, 1) {
		assert.Equal(t, revD, got[0].RevisionID)
	}
	assert.Empty(t, emptyChangelog().UngroupedCommits())
}

func TestIssuesFor(t *testing.T) {
	t.Parallel()

	c := sampleChangelog()
	issues := c.IssuesFor(42)
	if assert.Len(t, issues, 2) {
		assert.Equal(t, "PROJ-1", issues[0].Key)
		assert.Equal(t, "PROJ-2", issues[1].Key)
	}
	assert.Empty(t, c.IssuesFor(7))
	assert.Nil(t, c.IssuesFor(1000))
}

func TestChangeRequestFor(t *testing.T) {
	t.Parallel()

	c := sampleChangelog()

	cr, ok := c.ChangeRequestFor(revB)
	assert.True(t, ok)
	assert.Equal(t, ChangeRequestID(42), cr.ID)

	_, ok = c.ChangeRequestFor(revD)
	assert.False(t, ok)

	assert.Equal(t, map[string]ChangeRequestID{revC: 42, revB: 42, revA: 7}, c.Associations())
}

func TestChangelogHelpers(t *testing.T) {
	t.Parallel()

	c := sampleChangelog()
	assert.False(t, c.IsEmpty())
	assert.True(t, emptyChangelog().IsEmpty())
	assert.True(t, (*Changelog)(nil).IsEmpty())
	assert.Equal(t, []string{"PROJ-1", "PROJ-2"}, c.SortedIssueKeys())
	assert.Equal(t, []string{"Jane Doe", "John Roe"}, c.Authors())
}
