package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom/internal/assistant"
	"github.com/KaramelBytes/vizloom/internal/surface"
)

var (
	vizData      datasetFlags
	vizModel     modelFlags
	vizRequest   string
	vizNoExec    bool
	vizShowCode  bool
	vizOutputDir string
	vizSaveCode  string
)

var vizCmd = &cobra.Command{
	Use:   "viz <file>",
	Short: "Ask the model for chart code and run it against the dataset",
	Long: `viz asks the model for Go code answering --prompt, then runs that code with
the dataset bound to df. Figures are written as HTML files under --output-dir.`,
	Args: cobra.ExactArgs(1),
	Example: `  vizloom viz sales.csv --prompt "units per region as a bar chart"
  vizloom viz sales.csv --prompt "correlations" --show-code --output-dir ./charts
  vizloom viz sales.csv --prompt "distribution of price" --no-exec --save-code price.go`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if vizRequest == "" {
			return fmt.Errorf("--prompt is required")
		}
		c, err := requireConfig()
		if err != nil {
			return err
		}
		df, err := vizData.load(args[0])
		if err != nil {
			return err
		}
		store, closeHistory := openHistory(c)
		defer closeHistory()

		w := cmd.OutOrStdout()
		term := newTerminal(cmd, c, vizOutputDir)
		a, err := newAssistant(c, term, store)
		if err != nil {
			return err
		}
		if err := withModel(cmd, a, c, vizModel, ""); err != nil {
			return err
		}
		text, err := a.Prompts.Visualization(df, vizRequest)
		if err != nil {
			return err
		}
		if err := preflight(w, a, vizModel, text, a.VizMaxTokens); err != nil {
			if errors.Is(err, errDryRun) {
				return nil
			}
			return err
		}
		if streamTo(w, a, vizModel) {
			defer fmt.Fprintln(w)
		}

		if vizNoExec {
			raw := a.VisualizationCode(cmd.Context(), df, vizRequest)
			if raw == "" {
				return assistant.ErrNoResponse
			}
			code := assistant.ExtractCode(raw)
			term.Code("go", code)
			return saveCode(term, code)
		}

		a.ShowCode = vizShowCode
		code, err := a.Visualize(cmd.Context(), df, vizRequest)
		if serr := saveCode(term, code); serr != nil {
			return serr
		}
		if err != nil {
			return fmt.Errorf("visualization failed: %w", err)
		}
		if len(term.Paths()) == 0 {
			term.Note("The code ran but drew no figure.")
		}
		return nil
	},
}

func saveCode(term *surface.Terminal, code string) error {
	if vizSaveCode == "" || code == "" {
		return nil
	}
	if err := os.WriteFile(vizSaveCode, []byte(code+"\n"), 0o644); err != nil {
		return fmt.Errorf("write code: %w", err)
	}
	term.Note("Saved code to %s", vizSaveCode)
	return nil
}

func init() {
	rootCmd.AddCommand(vizCmd)
	addDatasetFlags(vizCmd, &vizData)
	addModelFlags(vizCmd, &vizModel)
	addCallFlags(vizCmd, &vizModel)
	vizCmd.Flags().StringVarP(&vizRequest, "prompt", "p", "", "what to chart, in plain words")
	vizCmd.Flags().BoolVar(&vizNoExec, "no-exec", false, "print the generated code without running it")
	vizCmd.Flags().BoolVar(&vizShowCode, "show-code", false, "print the generated code before running it")
	vizCmd.Flags().StringVar(&vizOutputDir, "output-dir", "", "directory for figure HTML files (default from config)")
	vizCmd.Flags().StringVar(&vizSaveCode, "save-code", "", "also save the generated code to this path")
}
