package domain

import (
	"testing"
	"time"
)

func TestToResultCountsOnlyAppliedFixes(t *testing.T) {
	session := &HealSession{
		RepoOwner: "acme",
		RepoName:  "widgets",
		AIBranch:  "ACME_JESSIE_AI_Fix",
		Issues:    []Issue{{File: "a.js"}, {File: "b.js"}},
		Fixes: []Fix{
			{File: "a.js", Status: FixApplied},
			{File: "b.js", Status: FixUnfixable},
		},
		CIStatusValue: CIPassed,
		RetryCount:    2,
	}

	result := session.ToResult(5 * time.Second)

	if result.Repo != "acme/widgets" {
		t.Errorf("Repo = %q", result.Repo)
	}
	if result.TotalFailuresDetected != 2 {
		t.Errorf("TotalFailuresDetected = %d, want 2", result.TotalFailuresDetected)
	}
	if result.TotalFixesApplied != 1 {
		t.Errorf("TotalFixesApplied = %d, want 1", result.TotalFixesApplied)
	}
	if result.FinalCIStatus != CIPassed {
		t.Errorf("FinalCIStatus = %s, want PASSED", result.FinalCIStatus)
	}
	if result.ExecutionTimeMs != 5000 {
		t.Errorf("ExecutionTimeMs = %d, want 5000", result.ExecutionTimeMs)
	}
}

func TestToResultDefaultsUnsetStatusToPending(t *testing.T) {
	session := &HealSession{RepoOwner: "acme", RepoName: "widgets"}
	result := session.ToResult(time.Second)
	if result.FinalCIStatus != CIPending {
		t.Errorf("FinalCIStatus = %s, want PENDING", result.FinalCIStatus)
	}
}

func TestAppendLogAccumulates(t *testing.T) {
	session := &HealSession{}
	session.AppendLog("first")
	session.AppendLog("second")
	if len(session.Logs) != 2 || session.Logs[0] != "first" || session.Logs[1] != "second" {
		t.Fatalf("got %+v", session.Logs)
	}
}
