// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package version provides information about graphconn version and build configuration.
//
// # Go build tags
//
// The following Go build tags (also known as build constraints) affect builds of graphconn:
//
//	graphconn_debug - enables debug build (see below; implied by builds with race detector)
//
// # Debug builds
//
// Debug builds of graphconn behave differently in a few aspects:
//   - some internal errors cause crashes instead of being handled more gracefully;
//   - leaked driver clients cause crashes;
//   - metrics are written to stderr on exit;
//   - the default logging level is set to debug.
package version

import (
	"runtime"
	runtimedebug "runtime/debug"
	"strconv"

	"github.com/FerretDB/graphconn/internal/util/debugbuild"
	"github.com/FerretDB/graphconn/internal/util/must"
)

// Info provides details about the current build.
//
//nolint:vet // for readability
type Info struct {
	Version          string
	Commit           string
	Dirty            bool
	DebugBuild       bool
	BuildEnvironment map[string]string
}

// info singleton instance set by init().
var info *Info

// unknown is a placeholder for unknown version and commit values.
const unknown = "unknown"

// module path from go.mod.
const module = "github.com/FerretDB/graphconn"

// Get returns current build's info.
//
// It returns a shared instance without any synchronization.
// If caller needs to modify the instance, it should make sure there is no concurrent accesses.
func Get() *Info {
	return info
}

// readBuildInfo fills info from the build info.
func readBuildInfo() {
	buildInfo, ok := runtimedebug.ReadBuildInfo()
	if !ok {
		return
	}

	info.BuildEnvironment["go.version"] = buildInfo.GoVersion

	if buildInfo.Main.Path != module {
		for _, dep := range buildInfo.Deps {
			if dep.Path == module && dep.Version != "(devel)" {
				info.Version = dep.Version
			}
		}

		return
	}

	if v := buildInfo.Main.Version; v != "" && v != "(devel)" {
		info.Version = v
	}

	for _, s := range buildInfo.Settings {
		if v := s.Value; v != "" {
			info.BuildEnvironment[s.Key] = v
		}

		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
		case "vcs.modified":
			info.Dirty = must.NotFail(strconv.ParseBool(s.Value))
		}
	}
}

func init() {
	info = &Info{
		Version:    unknown,
		Commit:     unknown,
		DebugBuild: debugbuild.Enabled,
		BuildEnvironment: map[string]string{
			"go.runtime": runtime.Version(),
		},
	}

	readBuildInfo()
}
