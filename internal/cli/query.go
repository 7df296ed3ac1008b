package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SAMithila/doc-intelligence/internal/domain"
)

var (
	queryText       string
	queryTopK       int
	queryExpansion  string
	queryPriorScore float64
	queryJSON       bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search indexed documents",
	Long: `Search for relevant passages by fusing BM25 and embedding rankings.
Short queries (or ones whose prior best score was low) are expanded with a
hypothetical answer before the semantic lookup.

Examples:
  docint query -q "Q3 revenue"
  docint query -q "storage pricing" --expansion off --top-k 10 --json
  docint query -q "what drove growth last quarter" --prior-score 0.2`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().StringVar(&queryExpansion, "expansion", "", "expansion mode: auto, on, off (default from config)")
	queryCmd.Flags().Float64Var(&queryPriorScore, "prior-score", 0, "best score a previous attempt at this query reached")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	_ = queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	rootDir := GetRootDir()

	if !indexExists(rootDir) {
		return fmt.Errorf("%w: no index found, run 'docint index' first", domain.ErrIndexUnbuilt)
	}

	modeFlag := queryExpansion
	if modeFlag == "" {
		modeFlag = cfg.Expansion.Mode
	}
	mode, err := domain.ParseExpansionMode(modeFlag)
	if err != nil {
		return err
	}

	eng, err := openEngine(rootDir, cfg, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	retrieveUC, err := eng.retrieveUseCase()
	if err != nil {
		return err
	}

	req := domain.Request{Query: queryText, TopK: queryTopK, Expansion: mode}
	if cmd.Flags().Changed("prior-score") {
		prior := queryPriorScore
		req.PriorMaxScore = &prior
	}

	resp, err := retrieveUC.Retrieve(cmd.Context(), req)
	if resp == nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		output, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(output))
	} else {
		printResponse(resp)
	}

	switch {
	case errors.Is(err, domain.ErrIndexUnbuilt):
		return fmt.Errorf("no results: %w", err)
	case err != nil:
		return fmt.Errorf("search failed: %w", err)
	}
	return nil
}

func printResponse(resp *domain.Response) {
	rep := resp.Report
	fmt.Fprintf(os.Stderr, "status=%s generation=%d expansion=%s/%s lexical=%s semantic=%s rerank=%s total=%s\n",
		rep.Status, rep.IndexGeneration,
		rep.Expansion.Decision.Reason, expansionState(rep.Expansion),
		signalState(rep.Lexical), signalState(rep.Semantic), signalState(rep.Rerank), rep.Total)

	if len(resp.Results) == 0 {
		fmt.Println("No results found.")
		return
	}

	fmt.Printf("Found %d results for: %s\n\n", len(resp.Results), rep.Query)
	for i, r := range resp.Results {
		fmt.Printf("--- [%d] %s [%d:%d] (score: %.4f, %s) ---\n",
			i+1, displayPath(r), r.Start, r.End, r.Score, provenance(r))
		text := r.Text
		if runes := []rune(text); len(runes) > 500 {
			text = string(runes[:500]) + "..."
		}
		fmt.Println(text)
		fmt.Println()
	}
}

func displayPath(r domain.Result) string {
	if r.Title != "" && r.Path != "" {
		return fmt.Sprintf("%s (%s)", r.Path, r.Title)
	}
	if r.Path != "" {
		return r.Path
	}
	return r.ChunkID
}

func provenance(r domain.Result) string {
	var parts []string
	if r.Sources.Lexical {
		parts = append(parts, fmt.Sprintf("lexical #%d", r.LexicalRank))
	}
	if r.Sources.Semantic {
		parts = append(parts, fmt.Sprintf("semantic #%d", r.SemanticRank))
	}
	if r.RerankScore > 0 {
		parts = append(parts, fmt.Sprintf("rerank %.2f", r.RerankScore))
	}
	return strings.Join(parts, ", ")
}

func signalState(s domain.SignalReport) string {
	switch {
	case s.OK:
		return fmt.Sprintf("ok(%d in %s, best %.3f)", s.Candidates, s.Latency, s.TopScore)
	case s.Attempted:
		return "failed"
	default:
		return "skipped"
	}
}

func expansionState(e domain.ExpansionReport) string {
	switch {
	case e.FellBack:
		return "fell back"
	case e.Fired:
		return fmt.Sprintf("%s in %s", e.Strategy, e.Latency)
	default:
		return "not fired"
	}
}
