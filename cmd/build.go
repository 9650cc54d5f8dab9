package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buildforge/manager/pkg/buildmanager"
	"github.com/buildforge/manager/pkg/model"
)

type buildCmdArgs struct {
	ToolsVersion string
	Targets      string
	ResetCaches  bool
}

var buildArgs = &buildCmdArgs{}

var buildCmd = &cobra.Command{
	Use:   "build <project>",
	Short: "Build a single project through a fresh BuildManager session",
	Long: `build spins up a BuildManager session, submits one project for the
given targets, waits for the result, and prints its overall outcome. It
exists as a minimal driver of the session/scheduler pipeline; embedders
wanting multi-project graphs should use buildmanager.Manager.BuildGraph
directly instead of shelling out to this command.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildArgs.ToolsVersion, "tools-version", "Current", "ToolsVersion to build the project with")
	buildCmd.Flags().StringVar(&buildArgs.Targets, "targets", "Build", "comma-separated list of targets to run")
	buildCmd.Flags().BoolVar(&buildArgs.ResetCaches, "reset-caches", false, "discard cached configurations and results before building")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	projectPath := args[0]
	targets := splitTrimmed(buildArgs.Targets)

	params := buildmanager.FromEnvironment()
	params.ResetCaches = buildArgs.ResetCaches

	mgr := buildmanager.New(nil, nil)
	if err := mgr.BeginBuild(params, nil); err != nil {
		return fmt.Errorf("starting build session: %w", err)
	}
	defer func() {
		if err := mgr.EndBuild(); err != nil {
			slog.Warn("ending build session", "error", err)
		}
	}()

	result, err := mgr.BuildRequest(cmd.Context(), &model.RequestData{
		ProjectFullPath: projectPath,
		ToolsVersion:    buildArgs.ToolsVersion,
		Targets:         targets,
	})
	if err != nil {
		return fmt.Errorf("building %q: %w", projectPath, err)
	}

	slog.Info("build finished", "project", projectPath, "targets", targets, "result", result.OverallResult)
	if result.OverallResult != model.ResultSuccess {
		return fmt.Errorf("build of %q did not succeed: %s", projectPath, result.OverallResult)
	}
	return nil
}

func splitTrimmed(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
