package context

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// VersionInfo is the build information of the running binary.
type VersionInfo struct {
	Semantic  string
	Commit    string
	Dirty     bool
	GoVersion string
}

// GetVersion reads the version information embedded in the binary.
func GetVersion() (*VersionInfo, error) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, errors.New("failed reading build information")
	}

	vi := &VersionInfo{
		Semantic:  strings.TrimPrefix(bi.Main.Version, "v"),
		GoVersion: bi.GoVersion,
	}
	if vi.Semantic == "" || vi.Semantic == "(devel)" {
		vi.Semantic = "dev"
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			vi.Commit = s.Value
			if len(vi.Commit) > 12 {
				vi.Commit = vi.Commit[:12]
			}
		case "vcs.modified":
			vi.Dirty = s.Value == "true"
		}
	}

	return vi, nil
}

func (vi *VersionInfo) String() string {
	var sb strings.Builder
	sb.WriteString(vi.Semantic)
	if vi.Commit != "" {
		fmt.Fprintf(&sb, " (%s", vi.Commit)
		if vi.Dirty {
			sb.WriteString("-dirty")
		}
		sb.WriteString(")")
	}
	if vi.GoVersion != "" {
		fmt.Fprintf(&sb, " %s", vi.GoVersion)
	}

	return sb.String()
}
