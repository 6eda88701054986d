package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom/internal/history"
	"github.com/KaramelBytes/vizloom/internal/utils"
)

var (
	histLimit int
	histJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past model calls and code runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openHistoryStrict()
		if err != nil {
			return err
		}
		defer st.Close()
		runs, err := st.List(cmd.Context(), histLimit)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if histJSON {
			b, err := utils.PrettyJSON(runs)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(b))
			return nil
		}
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs recorded yet.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tWHEN\tKIND\tSTATUS\tDATASET\tMODEL")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(r.ID), r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Kind, r.Status, dash(r.Dataset), dash(r.Model))
		}
		return tw.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run; a unique id prefix is enough",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openHistoryStrict()
		if err != nil {
			return err
		}
		defer st.Close()
		r, err := st.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if histJSON {
			b, err := utils.PrettyJSON(r)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(b))
			return nil
		}
		fmt.Fprintf(w, "id:       %s\n", r.ID)
		fmt.Fprintf(w, "when:     %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "kind:     %s\n", r.Kind)
		fmt.Fprintf(w, "status:   %s\n", r.Status)
		fmt.Fprintf(w, "dataset:  %s\n", dash(r.Dataset))
		fmt.Fprintf(w, "provider: %s\n", dash(r.Provider))
		fmt.Fprintf(w, "model:    %s\n", dash(r.Model))
		if r.Error != "" {
			fmt.Fprintf(w, "error:    %s\n", r.Error)
		}
		fmt.Fprintf(w, "\n--- prompt ---\n%s\n", strings.TrimRight(r.Prompt, "\n"))
		if r.Response != "" {
			fmt.Fprintf(w, "\n--- response ---\n%s\n", strings.TrimRight(r.Response, "\n"))
		}
		return nil
	},
}

func openHistoryStrict() (*history.Store, error) {
	c, err := requireConfig()
	if err != nil {
		return nil, err
	}
	if c.HistoryDB == "" {
		return nil, fmt.Errorf("history_db is not set")
	}
	return history.Open(c.HistoryDB, logger)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyListCmd.Flags().IntVarP(&histLimit, "limit", "n", 20, "number of runs to list")
	historyCmd.PersistentFlags().BoolVar(&histJSON, "json", false, "print JSON")
}
