// Package pathsafe translates Windows-style paths into the POSIX form the
// Sandbox container and tar stream expect, per spec.md §9's design note:
// "Windows-style paths must be translated when feeding a POSIX container;
// keep this as a dedicated utility."
package pathsafe

import "strings"

// ToPOSIX rewrites backslashes to forward slashes and strips a leading
// drive letter (e.g. "C:\\"), leaving a path safe to join under a
// container mount point.
func ToPOSIX(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if len(p) >= 2 && p[1] == ':' {
		p = p[2:]
	}
	return strings.TrimPrefix(p, "/")
}

// JoinContainerPath joins mountPoint with a (possibly Windows-style)
// relative path, always producing a forward-slash POSIX path.
func JoinContainerPath(mountPoint, rel string) string {
	rel = ToPOSIX(rel)
	mountPoint = strings.TrimRight(mountPoint, "/")
	if rel == "" {
		return mountPoint
	}
	return mountPoint + "/" + rel
}
