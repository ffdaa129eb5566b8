package commands

import (
	"fmt"
	"runtime"

	"github.com/marmos91/hsync/internal/cli/output"
	"github.com/marmos91/hsync/pkg/transport"
	"github.com/spf13/cobra"
)

// BuildInfo identifies the binary; main fills it from linker flags.
type BuildInfo struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
}

// SetBuild records the build identity reported by "version" and the server.
func SetBuild(b BuildInfo) { build = b }

type versionInfo struct {
	BuildInfo `yaml:",inline"`
	Protocol  string `json:"protocol" yaml:"protocol"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

func (v versionInfo) pairs() [][2]string {
	return [][2]string{
		{"Version", v.Version},
		{"Commit", v.Commit},
		{"Built", v.Date},
		{"Protocol", v.Protocol},
		{"Go", v.GoVersion},
		{"Platform", v.Platform},
	}
}

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionShort {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), build.Version)
			return err
		}

		info := versionInfo{
			BuildInfo: build,
			Protocol:  transport.ALPN,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		}
		format, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		if format == output.FormatTable {
			return output.SimpleTable(cmd.OutOrStdout(), info.pairs())
		}
		return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(info)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version number")
}
