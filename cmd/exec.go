package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	execData      datasetFlags
	execCodePath  string
	execOutputDir string
)

var execCmd = &cobra.Command{
	Use:   "exec <file>",
	Short: "Run Go chart code against a dataset without calling a model",
	Long: `exec runs code the way viz runs model output: bare statements, a func
Run(df *frame.Frame) or a whole main package, with the frame, viz and st
packages available and df bound to the dataset.`,
	Args: cobra.ExactArgs(1),
	Example: `  vizloom exec sales.csv --code chart.go
  echo 'st.Plot(viz.MustHeatmap(df))' | vizloom exec sales.csv --code -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if execCodePath == "" {
			return fmt.Errorf("--code is required (use - for stdin)")
		}
		code, err := readCode(cmd, execCodePath)
		if err != nil {
			return err
		}
		c, err := requireConfig()
		if err != nil {
			return err
		}
		df, err := execData.load(args[0])
		if err != nil {
			return err
		}
		store, closeHistory := openHistory(c)
		defer closeHistory()

		term := newTerminal(cmd, c, execOutputDir)
		a, err := newAssistant(c, term, store)
		if err != nil {
			return err
		}
		if err := a.ExecGeneratedCode(cmd.Context(), code, df); err != nil {
			return fmt.Errorf("execution failed: %w", err)
		}
		return nil
	},
}

func readCode(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read code: %w", err)
	}
	return string(b), nil
}

func init() {
	rootCmd.AddCommand(execCmd)
	addDatasetFlags(execCmd, &execData)
	execCmd.Flags().StringVar(&execCodePath, "code", "", "path to the Go code to run, or - for stdin")
	execCmd.Flags().StringVar(&execOutputDir, "output-dir", "", "directory for figure HTML files (default from config)")
}
