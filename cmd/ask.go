package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom/internal/assistant"
	"github.com/KaramelBytes/vizloom/internal/history"
)

type askOptions struct {
	data   datasetFlags
	model  modelFlags
	output string
	json   bool
}

var (
	recommendOpts askOptions
	anomaliesOpts askOptions
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <file>",
	Short: "Ask the model for trends, suggested actions and unexpected relationships",
	Args:  cobra.ExactArgs(1),
	Example: `  vizloom recommend sales.csv
  vizloom recommend sales.xlsx --sheet-name Q3 --provider openrouter --tier cheap
  vizloom recommend sales.csv --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd, args[0], &recommendOpts, history.KindRecommendations)
	},
}

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies <file>",
	Short: "Ask the model to find, explain and suggest handling for anomalies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd, args[0], &anomaliesOpts, history.KindAnomalies)
	},
}

// runAsk is the shared body of the text-answer commands.
func runAsk(cmd *cobra.Command, path string, o *askOptions, kind string) error {
	c, err := requireConfig()
	if err != nil {
		return err
	}
	df, err := o.data.load(path)
	if err != nil {
		return err
	}
	store, closeHistory := openHistory(c)
	defer closeHistory()

	w := cmd.OutOrStdout()
	term := newTerminal(cmd, c, "")
	a, err := newAssistant(c, term, store)
	if err != nil {
		return err
	}
	if err := withModel(cmd, a, c, o.model, ""); err != nil {
		return err
	}

	render := a.Prompts.Recommendations
	if kind == history.KindAnomalies {
		render = a.Prompts.Anomalies
	}
	text, err := render(df)
	if err != nil {
		return err
	}
	if err := preflight(w, a, o.model, text, a.MaxTokens); err != nil {
		if errors.Is(err, errDryRun) {
			return nil
		}
		return err
	}

	streamed := !o.json && streamTo(w, a, o.model)
	var answer string
	if kind == history.KindAnomalies {
		answer = a.DetectAnomalies(cmd.Context(), df)
	} else {
		answer = a.GenerateRecommendations(cmd.Context(), df)
	}
	if answer == "" {
		return assistant.ErrNoResponse
	}
	return writeResult(w, term, answer, outputOptions{
		JSON:         o.json,
		Kind:         kind,
		Dataset:      df.Name,
		Provider:     a.Provider,
		Model:        a.Model,
		OutputPath:   o.output,
		AlreadyShown: streamed,
	})
}

func addAskFlags(c *cobra.Command, o *askOptions) {
	addDatasetFlags(c, &o.data)
	addModelFlags(c, &o.model)
	addCallFlags(c, &o.model)
	c.Flags().StringVarP(&o.output, "output", "o", "", "also save the answer to this path (.json saves a JSON record)")
	c.Flags().BoolVar(&o.json, "json", false, "print a JSON record instead of rendered markdown")
}

func init() {
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(anomaliesCmd)
	addAskFlags(recommendCmd, &recommendOpts)
	addAskFlags(anomaliesCmd, &anomaliesOpts)
}
