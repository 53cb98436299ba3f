package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	sessionsDir string
	sessionsAll bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	Long: `List sessions stored for the working directory, newest first.

Use --all to include sessions from other directories.`,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsDir, "directory", "", "Working directory")
	sessionsCmd.Flags().BoolVarP(&sessionsAll, "all", "a", false, "Include sessions from all directories")
}

func runSessions(cmd *cobra.Command, args []string) error {
	workDir, err := workingDir(sessionsDir)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx, workDir)
	if err != nil {
		return err
	}
	defer a.close()

	sessions, err := a.store.ListSessions(ctx)
	if err != nil {
		return err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Time.Updated > sessions[j].Time.Updated
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED\tDIRECTORY\t")
	for _, s := range sessions {
		if !sessionsAll && s.Directory != workDir {
			continue
		}
		updated := time.UnixMilli(s.Time.Updated).Format("2006-01-02 15:04")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", s.ID, s.Title, updated, s.Directory)
	}
	return w.Flush()
}
