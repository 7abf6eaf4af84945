package cli

import (
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/agentline/internal/orchestrator"
	"github.com/lucasnoah/agentline/internal/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show phase, progress and per-stage status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := printStatus(cmd, orch); err != nil {
			return err
		}
		watch, _ := cmd.Flags().GetBool("watch")
		if !watch {
			return nil
		}
		return watchStatus(cmd, orch)
	},
}

func printStatus(cmd *cobra.Command, orch *orchestrator.Orchestrator) error {
	info, err := orch.Status(cmd.Context())
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return writeJSON(cmd, info)
	}
	renderStatus(cmd.OutOrStdout(), info)
	return nil
}

func renderStatus(out io.Writer, info *orchestrator.StatusInfo) {
	sess := info.Session
	fmt.Fprintf(out, "Project type: %s\n", sess.ProjectType)
	fmt.Fprintf(out, "Phase:        %s\n", sess.Phase)
	fmt.Fprintf(out, "Progress:     %d%%\n", info.Progress.Percent)
	switch {
	case info.Progress.Complete:
		fmt.Fprintln(out, "Next:         (pipeline complete)")
	case info.Progress.NextAgent != "":
		fmt.Fprintf(out, "Next:         %s\n", info.Progress.NextAgent)
	}
	if !info.Progress.Complete {
		fmt.Fprintf(out, "Transition:   %s\n", info.Transition.Reason)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tPHASE\tSTATUS\tSCORE")
	for _, s := range pipeline.StagesFor(sess.ProjectType) {
		st := sess.Agent(s.Name)
		score := "-"
		if st.Score != nil {
			score = fmt.Sprintf("%.0f", *st.Score)
		}
		name := s.Name
		if name == sess.CurrentAgent {
			name += " *"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, s.Phase, st.Status, score)
	}
	w.Flush()

	if len(sess.Backlog) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Backlog:")
		for _, b := range sess.Backlog {
			fmt.Fprintf(out, "  [%s p%d] %s\n", b.Kind, b.Priority, b.Title)
		}
	}
}

// watchStatus re-renders whenever session.json is rewritten, until interrupted.
func watchStatus(cmd *cobra.Command, orch *orchestrator.Orchestrator) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// session.json is replaced by rename, so watch the directory.
	if err := watcher.Add(store.StateDir()); err != nil {
		return fmt.Errorf("watch %s: %w", store.StateDir(), err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	target := filepath.Base(store.SessionPath())
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Repeat("-", 40))
			if err := printStatus(cmd, orch); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "status: %v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
		}
	}
}

func init() {
	statusCmd.Flags().String("format", "text", "Output format: text or json")
	statusCmd.Flags().Bool("watch", false, "Keep running and reprint when the session changes")
}
