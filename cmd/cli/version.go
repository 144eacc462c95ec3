package cli

import (
	"context"
	"runtime/debug"
	"strings"
)

const (
	developmentVersionConstant = "(devel)"
)

// Version is stamped at build time with -ldflags "-X github.com/temirov/geodetect/cmd/cli.Version=<tag>".
var Version = ""

// resolveVersion prefers the stamped version, then the module version recorded in the build info.
func resolveVersion(context.Context) string {
	if trimmedVersion := strings.TrimSpace(Version); len(trimmedVersion) > 0 {
		return trimmedVersion
	}

	buildInfo, buildInfoAvailable := debug.ReadBuildInfo()
	if !buildInfoAvailable || len(buildInfo.Main.Version) == 0 {
		return developmentVersionConstant
	}
	return buildInfo.Main.Version
}
