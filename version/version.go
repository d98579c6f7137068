// Package version holds build metadata injected at link time via
// -ldflags "-X github.com/ARobicsek/bible-figurative-language-sub002/version.GitRelease=...".
package version

import (
	"fmt"
	"runtime"
)

var (
	// GitRelease is the release tag or branch of this build.
	GitRelease = "dev"

	// GitCommit is the commit hash of this build.
	GitCommit = "unknown"

	// GitCommitDate is the commit date of this build.
	GitCommitDate = "unknown"

	// GoInfo describes the Go toolchain and platform.
	GoInfo = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
)
