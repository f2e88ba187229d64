package cmd

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Build information, set with -ldflags "-X .../cmd.Version=...". Commit and
// BuildDate fall back to the VCS stamp go build embeds.
var (
	Version   = "0.1.0"
	Commit    = "none"
	BuildDate = "unknown"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the daemon version, the commit it was built from, and the Go
runtime. With --short only the version is printed.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		writeVersion(cmd.OutOrStdout(), versionShort, buildStamp())
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version")
	rootCmd.AddCommand(versionCmd)
}

// stamp is the build provenance printed by version.
type stamp struct {
	commit   string
	date     string
	modified bool
}

// buildStamp prefers the ldflags values and fills the gaps from the
// embedded build settings.
func buildStamp() stamp {
	s := stamp{commit: Commit, date: BuildDate}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return s
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if s.commit == "none" {
				s.commit = setting.Value
			}
		case "vcs.time":
			if s.date == "unknown" {
				s.date = setting.Value
			}
		case "vcs.modified":
			s.modified = setting.Value == "true"
		}
	}
	return s
}

func writeVersion(w io.Writer, short bool, s stamp) {
	if short {
		fmt.Fprintln(w, Version)
		return
	}
	commit := s.commit
	if s.modified {
		commit += " (modified)"
	}
	fmt.Fprintf(w, "commandability %s\n", Version)
	fmt.Fprintf(w, "  Commit:     %s\n", commit)
	fmt.Fprintf(w, "  Built:      %s\n", s.date)
	fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
	fmt.Fprintf(w, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
