package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/prompt"
)

var (
	descData       datasetFlags
	descExtended   bool
	descShowPrompt string
	descRequest    string
)

var describeCmd = &cobra.Command{
	Use:   "describe <files...>",
	Short: "Print the column types and descriptive statistics sent to the model",
	Args:  cobra.MinimumNArgs(1),
	Example: `  vizloom describe sales.csv
  vizloom describe 'exports/*.csv' --extended
  vizloom describe sales.xlsx --sheet-index 2
  vizloom describe sales.csv --show-prompt viz --request "price by region"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for i, path := range files {
			if len(files) > 1 {
				if i > 0 {
					fmt.Fprintln(w)
				}
				fmt.Fprintf(w, "[%d/%d] %s\n", i+1, len(files), path)
			}
			df, err := descData.load(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := describeOne(w, df); err != nil {
				return err
			}
		}
		return nil
	},
}

func describeOne(w io.Writer, df *dataset.Frame) error {
	if descShowPrompt != "" {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		text, err := renderPrompt(c.Language, c.SummaryDetail, descShowPrompt, df, descRequest)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, text)
		return nil
	}
	fmt.Fprintf(w, "Dataset: %s (%d rows × %d columns)\n", df.Name, df.Len(), df.NumCols())
	for _, n := range df.Notes {
		fmt.Fprintf(w, "Note: %s\n", n)
	}
	fmt.Fprintln(w, "\nColumns and types:")
	fmt.Fprintln(w, df.DTypesString())
	fmt.Fprintln(w, "\nDescriptive statistics:")
	fmt.Fprintln(w, df.Describe().String())
	if descExtended {
		fmt.Fprintln(w)
		fmt.Fprint(w, df.Profile(dataset.ProfileOptions{}).String())
	}
	return nil
}

// expandInputs expands globs, keeps literal paths that exist, and drops
// duplicates. The result is sorted.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

// renderPrompt renders one of the prompt kinds without calling a model.
func renderPrompt(language, detail, kind string, df *dataset.Frame, request string) (string, error) {
	b, err := prompt.New(language, detail)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(kind) {
	case "overview":
		return b.Overview(df)
	case "recommendations", "recommend":
		return b.Recommendations(df)
	case "anomalies":
		return b.Anomalies(df)
	case "viz", "visualization":
		if request == "" {
			return "", fmt.Errorf("--request is required with --show-prompt viz")
		}
		return b.Visualization(df, request)
	default:
		return "", fmt.Errorf("unknown prompt kind %q (use overview|recommendations|anomalies|viz)", kind)
	}
}

func init() {
	rootCmd.AddCommand(describeCmd)
	addDatasetFlags(describeCmd, &descData)
	describeCmd.Flags().BoolVar(&descExtended, "extended", false, "append robust outlier counts and top correlations")
	describeCmd.Flags().StringVar(&descShowPrompt, "show-prompt", "", "print a rendered prompt instead: overview|recommendations|anomalies|viz")
	describeCmd.Flags().StringVar(&descRequest, "request", "", "chart request used with --show-prompt viz")
}
