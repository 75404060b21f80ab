// Package version exposes the build-time module/dependency metadata
// embedded by the Go toolchain, surfaced over GET /version.
package version

import (
	"runtime/debug"
	"sort"
)

// DependencyInfo is one entry of erpcache's resolved dependency graph.
type DependencyInfo struct {
	Path    string `json:"path"`
	Version string `json:"version"`
	Replace string `json:"replace,omitempty"`
}

// BuildInfo is the full GET /version response body.
type BuildInfo struct {
	GoVersion    string           `json:"goVersion"`
	MainModule   string           `json:"mainModule"`
	MainVersion  string           `json:"mainVersion"`
	Dependencies []DependencyInfo `json:"dependencies"`
}

// GetBuildInfo reads the binary's embedded module info via
// runtime/debug.ReadBuildInfo, returning a placeholder "unknown" BuildInfo
// if the binary wasn't built with module info (e.g. `go run`).
func GetBuildInfo() *BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return &BuildInfo{
			GoVersion:    "unknown",
			MainModule:   "unknown",
			MainVersion:  "unknown",
			Dependencies: []DependencyInfo{},
		}
	}

	build := &BuildInfo{
		GoVersion:    info.GoVersion,
		MainModule:   info.Path,
		MainVersion:  info.Main.Version,
		Dependencies: make([]DependencyInfo, 0, len(info.Deps)),
	}

	for _, dep := range info.Deps {
		build.Dependencies = append(build.Dependencies, toDependencyInfo(dep))
	}

	sort.Slice(build.Dependencies, func(i, j int) bool {
		return build.Dependencies[i].Path < build.Dependencies[j].Path
	})

	return build
}

// GetModuleVersion returns erpcache's own version: the main module's
// version when running as the main binary, its resolved version when
// imported as a dependency, or "dev" for an un-tagged local build.
func GetModuleVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	const modulePath = "erpcache.eve.dev"

	if info.Path == modulePath {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
		return "dev"
	}

	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			if dep.Replace != nil {
				return dep.Replace.Version + " (replaced)"
			}
			return dep.Version
		}
	}

	return "unknown"
}

// GetDependency looks up a single entry of the resolved dependency graph by
// module path, e.g. for GET /version?dependency=github.com/redis/go-redis/v9.
// Returns nil if erpcache wasn't built against that module.
func GetDependency(modulePath string) *DependencyInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}

	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			depInfo := toDependencyInfo(dep)
			return &depInfo
		}
	}

	return nil
}

func toDependencyInfo(dep *debug.Module) DependencyInfo {
	info := DependencyInfo{Path: dep.Path, Version: dep.Version}
	if dep.Replace != nil {
		info.Replace = dep.Replace.Path + "@" + dep.Replace.Version
	}
	return info
}
