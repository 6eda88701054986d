package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom/internal/ai"
	"github.com/KaramelBytes/vizloom/internal/utils"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage or inspect model catalog and pricing",
	Example: `  vizloom models show
  vizloom models sync --file ./models.json
  vizloom models sync --file ./models.json --merge
  vizloom models fetch --url https://example.com/models.json
  vizloom models fetch --provider anthropic --merge --output models.json`,
}

var showJSON bool

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if showJSON {
			// encoding/json sorts map keys
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(ai.Catalog())
		}
		cat := ai.Catalog()
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tPROVIDER\tCONTEXT\tIN $/1K\tOUT $/1K")
		for _, name := range ai.CatalogNames() {
			mi := cat[name]
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.4f\t%.4f\n", name, mi.Provider, mi.ContextTokens, mi.InputPerK, mi.OutputPerK)
		}
		return tw.Flush()
	},
}

var (
	syncPath  string
	syncMerge bool
)

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load model catalog/pricing from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(syncPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		ai.ApplyCatalog(m, syncMerge)
		if syncMerge {
			fmt.Fprintln(cmd.OutOrStdout(), "Merged model catalog from file")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Replaced model catalog from file")
		}
		return nil
	},
}

// providerURL returns a catalog URL for a known provider, from
// VIZLOOM_<PROVIDER>_CATALOG_URL or the maintained default. Empty if unknown.
func providerURL(name string) string {
	switch name {
	case ai.ProviderOpenRouter:
		if v := os.Getenv("VIZLOOM_OPENROUTER_CATALOG_URL"); v != "" {
			return v
		}
		return "https://raw.githubusercontent.com/KaramelBytes/vizloom/main/docs/openrouter-models.json"
	case ai.ProviderAnthropic:
		return os.Getenv("VIZLOOM_ANTHROPIC_CATALOG_URL")
	case ai.ProviderGemini, ai.ProviderGoogle:
		return os.Getenv("VIZLOOM_GEMINI_CATALOG_URL")
	default:
		return ""
	}
}

var (
	fetchURL      string
	fetchOutput   string
	fetchMerge    bool
	fetchProvider string
)

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch model catalog/pricing JSON from a URL and apply it",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		url := fetchURL
		if url == "" && fetchProvider != "" {
			url = providerURL(fetchProvider)
		}
		var m map[string]ai.ModelInfo
		switch {
		case url != "":
			fetched, err := ai.FetchCatalog(cmd.Context(), url)
			if err != nil {
				return err
			}
			m = fetched
		case fetchProvider != "":
			// no URL: fall back to the built-in preset without network
			preset, ok := ai.PresetCatalog(fetchProvider)
			if !ok {
				return fmt.Errorf("unknown provider %q and no --url given", fetchProvider)
			}
			m = preset
			fmt.Fprintf(w, "Using built-in '%s' preset\n", fetchProvider)
		default:
			return fmt.Errorf("--url is required (or specify --provider with a known preset)")
		}

		if fetchOutput != "" {
			data, err := utils.PrettyJSON(m)
			if err != nil {
				return err
			}
			if err := utils.SafeWriteFile(fetchOutput, data, 0o644); err != nil {
				return fmt.Errorf("write file: %w", err)
			}
			fmt.Fprintf(w, "Saved catalog to %s\n", fetchOutput)
		}
		ai.ApplyCatalog(m, fetchMerge)
		if fetchMerge {
			fmt.Fprintf(w, "Merged %d models into in-memory catalog\n", len(m))
		} else {
			fmt.Fprintf(w, "Replaced in-memory catalog with %d models\n", len(m))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsSyncCmd)
	modelsCmd.AddCommand(modelsFetchCmd)

	modelsShowCmd.Flags().BoolVar(&showJSON, "json", false, "print the catalog as JSON")

	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
	modelsSyncCmd.Flags().BoolVar(&syncMerge, "merge", false, "merge into existing catalog instead of replacing")

	modelsFetchCmd.Flags().StringVar(&fetchURL, "url", "", "URL to JSON catalog file")
	modelsFetchCmd.Flags().StringVar(&fetchOutput, "output", "", "optional path to save the fetched JSON")
	modelsFetchCmd.Flags().BoolVar(&fetchMerge, "merge", false, "merge into existing catalog instead of replacing")
	modelsFetchCmd.Flags().StringVar(&fetchProvider, "provider", "", "provider preset (e.g. 'openrouter') to resolve the catalog URL if --url is not set")
}
