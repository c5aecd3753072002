package version

import (
	"runtime/debug"
)

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

// Set with -ldflags "-X github.com/saphetor/vc-file-upload/version.GitTag=..."
var (
	GitTag  string
	GitHash string
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Version returns the best available version string. It prefers the git tag
// set via -ldflags, then the hash, then the short VCS revision from the
// embedded build info, and finally falls back to "dev".
func Version() string {
	if GitTag != "" {
		return GitTag
	}
	if GitHash != "" {
		return short(GitHash)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return short(s.Value)
			}
		}
	}
	return "dev"
}

// UserAgent returns the User-Agent sent with every API request.
func UserAgent() string {
	return "vc-file-upload-client/" + Version()
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
