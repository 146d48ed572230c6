// Package vars holds build-time variables populated via the linker (ldflags).
package vars

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// License of the project
const License = "MIT"

var (
	// Name of the project
	Name = "neonetrek-site"

	// Version of application (git tag) semver/tag, e.g. v1.2.3
	Version = "dev"

	// Commit is the current git commit, full or short git SHA
	Commit = "unknown"

	// Revision build, count of commits
	Revision = 0

	// BuildTime is the time of start build app, RFC3339 UTC
	BuildTime = time.Unix(0, 0)

	// URL to repository (https)
	URL = "https://github.com/neonetrek/neonetrek-site"

	_revision  string
	_buildTime string
)

// BuildInfo is the build metadata exposed by the /health endpoint.
type BuildInfo struct {
	// betteralign:ignore

	Name        string    `json:"name" example:"neonetrek-site"`
	Version     string    `json:"version" example:"v1.2.3"`
	Commit      string    `json:"commit_short,omitempty" example:"da15c17"`
	Revision    int       `json:"revision,omitempty" example:"1337"`
	BuildTime   time.Time `json:"build_time,omitempty" example:"1970-01-01T00:00:00Z"`
	License     string    `json:"license,omitempty" example:"MIT"`
	RepoAddress string    `json:"url,omitempty" example:"https://github.com/neonetrek/neonetrek-site"`
}

func init() {
	if n, err := strconv.Atoi(_revision); err == nil {
		Revision = n
	}

	if _buildTime != "" {
		if t, err := time.Parse(time.RFC3339, _buildTime); err == nil {
			BuildTime = t.UTC()
		}
	}
}

// Print writes the build information to the standard output.
func Print() {
	Fprint(os.Stdout)
}

// Fprint writes the build information to w.
func Fprint(w io.Writer) {
	_, _ = fmt.Fprintf(w, `name:     %s
url:      %s
version:  %s
commit:   %s
revision: %d
built:    %s
license:  %s
`, Name, URL, Version, Commit, Revision, BuildTime, License)
}

// Info returns the build metadata.
func Info() BuildInfo {
	return BuildInfo{
		Name:        Name,
		Version:     Version,
		Commit:      CommitShort(),
		Revision:    Revision,
		BuildTime:   BuildTime,
		License:     License,
		RepoAddress: URL,
	}
}

// UserAgent is sent with every outgoing probe and registry request.
func UserAgent() string {
	return Name + "/" + Version + " (+" + URL + ")"
}

// CommitShort returns the first 7 characters of the git commit hash.
func CommitShort() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}

	return Commit
}
