package changelog

import (
	"strings"
	"time"
)

var (
	revStart = strings.Repeat("0", 40)
	revA     = strings.Repeat("a", 40)
	revB     = strings.Repeat("b", 40)
	revC     = strings.Repeat("c", 40)
	revD     = strings.Repeat("d", 40)
)

// sampleChangelog has two change-requests whose ID order differs from their
// commit order, two issues and one ungrouped commit.
func sampleChangelog() *Changelog {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Changelog{
		Range: ResolvedRange{
			Repository:    RepositoryID{Project: "PROJ", Name: "app"},
			StartRevision: revStart,
			EndRevision:   revD,
		},
		Commits: []Commit{
			{RevisionID: revD, Message: "Bump version", Timestamp: ts.Add(3 * time.Hour), ParentRevisionIDs: []string{revC}},
			{RevisionID: revC, Author: "Jane Doe", Message: "Merge login\n\nPROJ-1", Timestamp: ts.Add(2 * time.Hour), ParentRevisionIDs: []string{revA, revB}},
			{RevisionID: revB, Author: "Jane Doe", Message: "Add login form", Timestamp: ts.Add(time.Hour), ParentRevisionIDs: []string{revA}},
			{RevisionID: revA, Author: "John Roe", Message: "Fix typo in README", Timestamp: ts, ParentRevisionIDs: []string{revStart}},
		},
		ChangeRequests: map[ChangeRequestID]ChangeRequest{
			42: {
				ID:                42,
				Title:             "Add login",
				State:             "MERGED",
				SourceRevisionIDs: []string{revC, revB},
				IssueKeys:         []string{"PROJ-2", "PROJ-1"},
			},
			7: {
				ID:                7,
				Title:             "Fix typo",
				State:             "MERGED",
				SourceRevisionIDs: []string{revA},
			},
		},
		Issues: map[string]Issue{
			"PROJ-1": {Key: "PROJ-1", Summary: "Login page", Status: "Done", ChangeRequestIDs: []ChangeRequestID{42}},
			"PROJ-2": {Key: "PROJ-2", Summary: "Session cookie", Status: "In Progress", ChangeRequestIDs: []ChangeRequestID{42}},
		},
	}
}

func emptyChangelog() *Changelog {
	return &Changelog{
		Range: ResolvedRange{
			Repository:    RepositoryID{Project: "PROJ", Name: "app"},
			StartRevision: revC,
			EndRevision:   revC,
		},
		ChangeRequests: map[ChangeRequestID]ChangeRequest{},
		Issues:         map[string]Issue{},
	}
}
