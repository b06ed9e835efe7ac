// Package version reports the server build identity for startup logging and
// the health endpoint.
package version

import "runtime/debug"

const appName = "callcopilot"

// commitOverride may be injected with -ldflags for container builds where
// VCS metadata is unavailable.
var commitOverride string

// Full returns "callcopilot/<short-commit>", falling back to
// "callcopilot/dev" when no commit is known (go test, non-git builds).
func Full() string {
	return appName + "/" + shortCommit()
}

func shortCommit() string {
	commit := commitOverride
	if commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
					break
				}
			}
		}
	}
	if commit == "" {
		return "dev"
	}
	if len(commit) > 8 {
		commit = commit[:8]
	}
	return commit
}
