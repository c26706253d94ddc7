package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var (
	revStart = strings.Repeat("0", 40)
	revA     = strings.Repeat("a", 40)
	revB     = strings.Repeat("b", 40)
)

func sample() *changelog.Changelog {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &changelog.Changelog{
		Range: changelog.ResolvedRange{
			Repository:    changelog.RepositoryID{Project: "PAY", Name: "api"},
			StartRevision: revStart,
			EndRevision:   revB,
		},
		Commits: []changelog.Commit{
			{RevisionID: revB, Author: "Jane Doe", Message: "Add refunds", Timestamp: ts.Add(time.Hour)},
			{RevisionID: revA, Author: "John Roe", Message: "Fix rounding", Timestamp: ts},
		},
		ChangeRequests: map[changelog.ChangeRequestID]changelog.ChangeRequest{
			12: {ID: 12, Title: "Refunds", State: "MERGED", SourceRevisionIDs: []string{revB}, IssueKeys: []string{"PAY-7"}},
		},
		Issues: map[string]changelog.Issue{
			"PAY-7": {Key: "PAY-7", Summary: "Support refunds", Status: "Done", ChangeRequestIDs: []changelog.ChangeRequestID{12}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		in      string
		want    Format
		wantErr bool
	}{
		"empty":      {in: "", want: FormatText},
		"text":       {in: "TEXT", want: FormatText},
		"json":       {in: "json", want: FormatJSON},
		"yml alias":  {in: "yml", want: FormatYAML},
		"md alias":   {in: "md", want: FormatMarkdown},
		"markdown":   {in: " markdown ", want: FormatMarkdown},
		"unknown":    {in: "html", wantErr: true},
		"not a list": {in: "json,yaml", wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWrite(t *testing.T) {
	t.Parallel()

	t.Run("plain text matches Render", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, sample(), Options{Format: FormatText}))
		assert.Equal(t, changelog.RenderString(sample()), buf.String())
	})

	t.Run("json round trips", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, sample(), Options{Format: FormatJSON}))

		var got changelog.Changelog
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, *sample(), got)
	})

	t.Run("yaml round trips", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, sample(), Options{Format: FormatYAML}))

		var got changelog.Changelog
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, sample().ChangeRequests, got.ChangeRequests)
		assert.Equal(t, sample().Issues, got.Issues)
	})

	t.Run("markdown", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, sample(), Options{Format: FormatMarkdown}))
		assert.True(t, strings.HasPrefix(buf.String(), "# Changelog for PAY/api\n"))
		assert.Contains(t, buf.String(), "## #12 Refunds (MERGED)")
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, Write(&bytes.Buffer{}, sample(), Options{Format: "html"}))
	})
}

func TestWritePartialSummary(t *testing.T) {
	t.Parallel()

	failures := []changelog.BatchFailure{
		{
			Stage: changelog.StageChangeRequests,
			Index: 1,
			Keys:  []string{revA, revB, revStart, "deadbee"},
			Err:   errors.New("bitbucket list pull requests: 503"),
		},
		{Stage: changelog.StageIssues, Index: 0, Keys: []string{"#12"}, Err: errors.New("jira get issue: timeout")},
	}

	var buf bytes.Buffer
	WritePartialSummary(&buf, failures, true)

	assert.Equal(t, `Warning: changelog is incomplete: 2 failed lookups
  ✗ change-requests batch 1 [aaaaaaa, bbbbbbb, 0000000, +1 more]: bitbucket list pull requests: 503
  ✗ issues batch 0 [#12]: jira get issue: timeout
`, buf.String())
}
