package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SAMithila/doc-intelligence/internal/domain"
	"github.com/SAMithila/doc-intelligence/internal/usecase"
)

var (
	evalFile  string
	evalModes string
	evalK     int
	evalJSON  bool
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Measure retrieval quality on a labelled dataset",
	Long: `Replay a labelled query set under each expansion mode and report
Recall@K, Precision@K, MRR, NDCG@K, expansion rate and mean latency.

The dataset is YAML:

  cases:
    - query: Q3 revenue
      relevant: [reports/q3.md]

Examples:
  docint eval -f eval.yaml
  docint eval -f eval.yaml --modes auto,off -k 10`,
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().StringVarP(&evalFile, "file", "f", "", "dataset file (required)")
	evalCmd.Flags().StringVar(&evalModes, "modes", "auto,on,off", "comma-separated expansion modes to compare")
	evalCmd.Flags().IntVarP(&evalK, "top-k", "k", 5, "cutoff for the @K metrics")
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "output as JSON")
	_ = evalCmd.MarkFlagRequired("file")
}

func runEval(cmd *cobra.Command, args []string) error {
	rootDir := GetRootDir()
	if !indexExists(rootDir) {
		return fmt.Errorf("%w: no index found, run 'docint index' first", domain.ErrIndexUnbuilt)
	}

	var modes []domain.ExpansionMode
	for _, m := range strings.Split(evalModes, ",") {
		mode, err := domain.ParseExpansionMode(m)
		if err != nil {
			return err
		}
		modes = append(modes, mode)
	}

	ds, err := usecase.LoadDataset(evalFile)
	if err != nil {
		return err
	}

	eng, err := openEngine(rootDir, GetConfig(), false)
	if err != nil {
		return err
	}
	defer eng.Close()

	retrieveUC, err := eng.retrieveUseCase()
	if err != nil {
		return err
	}

	report, err := usecase.NewEvaluateUseCase(retrieveUC).Evaluate(cmd.Context(), ds, modes, evalK)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if evalJSON {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("%d queries, K=%d\n\n", len(ds.Cases), report.K)
	fmt.Printf("%-6s %9s %9s %7s %7s %9s %12s %8s\n",
		"mode", "recall", "precision", "mrr", "ndcg", "expanded", "latency", "failed")
	fmt.Println(strings.Repeat("-", 74))
	for _, m := range report.Modes {
		fmt.Printf("%-6s %9.3f %9.3f %7.3f %7.3f %8.0f%% %12s %8d\n",
			m.Mode, m.Recall, m.Precision, m.MRR, m.NDCG, m.ExpansionRate*100, m.MeanLatency, m.Failures)
	}
	return nil
}
