package pathsafe

import "testing"

func TestToPOSIXStripsDriveLetterAndBackslashes(t *testing.T) {
	got := ToPOSIX(`C:\repo\src\main.go`)
	want := "repo/src/main.go"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestToPOSIXLeavesPOSIXPathsAlone(t *testing.T) {
	got := ToPOSIX("repo/src/main.go")
	if got != "repo/src/main.go" {
		t.Fatalf("got %q", got)
	}
}

func TestJoinContainerPath(t *testing.T) {
	got := JoinContainerPath("/workspace/", `src\app.js`)
	want := "/workspace/src/app.js"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestJoinContainerPathEmptyRel(t *testing.T) {
	if got := JoinContainerPath("/workspace", ""); got != "/workspace" {
		t.Fatalf("got %q", got)
	}
}
