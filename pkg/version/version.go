// Package version derives the binary version from build metadata: an
// -ldflags override wins, then the VCS revision from debug.BuildInfo, then
// the "dev" fallback used under `go test` and non-git builds.
package version

import "runtime/debug"

// AppName prefixes version strings and user agents.
const AppName = "docket"

// gitCommitOverride is injected via -ldflags for container builds where
// .git is not available.
var gitCommitOverride string

// GitCommit is the short (8 char) commit hash, or "dev".
var GitCommit = initGitCommit()

func initGitCommit() string {
	if gitCommitOverride != "" {
		return short(gitCommitOverride)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return short(s.Value)
			}
		}
	}
	return "dev"
}

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "docket/<commit>" for logging and user-agent strings.
func Full() string {
	return AppName + "/" + GitCommit
}
