package buildmanager

import (
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/buildforge/manager/pkg/model"
	"github.com/buildforge/manager/pkg/utils"
)

// FromEnvironment builds a Parameters value from DefaultParameters,
// overridden by the MSBuild-compatible environment variables spec.md §6
// enumerates. BeginBuild does not call it (a nil params there means plain
// DefaultParameters); callers pass its result in explicitly. It uses the teacher's
// pkg/utils.GetEnvWithDefault accessor style (env-var name, lazy default)
// rather than hand-rolled os.Getenv checks scattered through the session
// constructor.
func FromEnvironment() *model.Parameters {
	p := model.DefaultParameters()

	p.DisableInProcNode = boolEnv("MSBUILDNOINPROCNODE", false)
	p.MaxNodeCount = intEnv("MSBUILDMAXNODECOUNT", runtime.NumCPU())
	p.ForceAllTasksOutOfProc = boolEnv("MSBUILDFORCEALLTASKSOUTOFPROC", false)
	p.NodeReuse = boolEnv("MSBUILDNODEREUSE", false)
	p.EnableDiskCache = boolEnv("MSBUILDCACHE", false)
	p.ForceDiskCaching = boolEnv("MSBUILDDEBUGFORCECACHING", false)
	p.LogPropertiesAndItemsAfterEvaluation = boolEnv("MSBUILDLOGPROPERTIESANDITEMSAFTEREVALUATION", true)

	if raw := utils.GetEnvWithDefault("MSBuildForwardPropertiesFromChild", func() string { return "" }); raw != "" {
		p.ForwardPropertiesFromChild = splitNonEmpty(raw, ';')
	}
	if raw := utils.GetEnvWithDefault("MsBuildForwardAllPropertiesFromChild", func() string { return "" }); raw != "" {
		p.ForwardAllPropertiesFromChild = true
	}

	if raw := utils.GetEnvWithDefault("MSBUILDNODECONNECTIONTIMEOUT", func() string { return "" }); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil {
			p.NodeConnectionTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	return p
}

func boolEnv(key string, def bool) bool {
	raw := utils.GetEnvWithDefault(key, func() string { return "" })
	if raw == "" {
		return def
	}
	return raw != "0" && !strings.EqualFold(raw, "false")
}

func intEnv(key string, def int) int {
	raw := utils.GetEnvWithDefault(key, func() string { return "" })
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func splitNonEmpty(s string, sep rune) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == sep }) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
