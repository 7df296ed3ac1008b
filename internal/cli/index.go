package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/SAMithila/doc-intelligence/config"
	"github.com/SAMithila/doc-intelligence/internal/adapter/chunker"
	"github.com/SAMithila/doc-intelligence/internal/adapter/fs"
	"github.com/SAMithila/doc-intelligence/internal/usecase"
)

var indexForce bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index documents for retrieval",
	Long: `Chunk, store and embed the documents under a directory.
The index lives in .docint/index.db inside that directory. Unchanged files
are skipped and removed files are dropped, so re-running is cheap.

Examples:
  docint index .                 # Index current directory
  docint index --force ./reports # Throw the old index away first`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "clear the existing index before indexing")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	root := GetRootDir()
	if len(args) > 0 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		root = abs
	}
	if info, err := os.Stat(root); err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", root)
	}

	cfg := GetConfig()
	eng, err := openEngine(root, cfg, true)
	if err != nil {
		return err
	}
	defer eng.Close()

	if indexForce {
		if err := eng.reset(); err != nil {
			return err
		}
	}

	uc, err := eng.indexUseCase()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning %s...\n", root)

	progress := newIndexProgress(cmd.ErrOrStderr())
	result, err := uc.Index(cmd.Context(), root, progress.update)
	progress.finish()
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	// Stamp the schema only after a successful run, so an interrupted
	// rebuild is detected again next time.
	if err := eng.store.Migrate(cfg); err != nil {
		return fmt.Errorf("failed to update schema info: %w", err)
	}

	printIndexResult(out, result, eng)
	fmt.Fprintf(out, "\nIndex stored at: %s\n", config.IndexDBPath(root))
	return nil
}

// indexUseCase wires the ingestion pipeline against the opened store.
func (e *engine) indexUseCase() (*usecase.IndexUseCase, error) {
	chk, err := chunker.NewWindowChunker(e.cfg.Index.ChunkSize, e.cfg.Index.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	var opts []usecase.IndexOption
	if e.embedder != nil {
		opts = append(opts,
			usecase.WithEmbeddings(e.embedder, e.vectors),
			usecase.WithEmbedBatchSize(e.cfg.Embedding.BatchSize),
			usecase.WithEmbedWorkers(e.cfg.Embedding.Workers),
		)
	}
	return usecase.NewIndexUseCase(
		e.store,
		fs.NewWalker(e.cfg.Index.Includes, e.cfg.Index.Excludes),
		fs.Reader{},
		chk,
		e.lexical,
		opts...,
	), nil
}

// indexProgress draws a bar on w once the total is known. The callback may
// arrive from several goroutines.
type indexProgress struct {
	w   io.Writer
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newIndexProgress(w io.Writer) *indexProgress {
	return &indexProgress{w: w}
}

func (p *indexProgress) update(processed, total int, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		if total == 0 {
			return
		}
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	if path != "" {
		p.bar.Describe(fmt.Sprintf("[cyan]Indexing[reset] %s", filepath.Base(path)))
	}
	_ = p.bar.Set(processed)
}

func (p *indexProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		fmt.Fprintln(p.w)
	}
}

func printIndexResult(w io.Writer, r *usecase.IndexResult, eng *engine) {
	fmt.Fprintf(w, "\nIndexing complete in %s:\n", formatDuration(r.Duration))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  Files indexed:\t%d\n", r.FilesIndexed)
	fmt.Fprintf(tw, "  Files skipped:\t%d (unchanged)\n", r.FilesSkipped)
	fmt.Fprintf(tw, "  Files deleted:\t%d (removed)\n", r.FilesDeleted)
	fmt.Fprintf(tw, "  Chunks created:\t%d\n", r.ChunksCreated)
	if eng.embedder != nil {
		fmt.Fprintf(tw, "  Embeddings:\t%d (%s)\n", r.ChunksEmbedded, eng.embedder.ModelName())
		if r.ChunksBackfilled > 0 {
			fmt.Fprintf(tw, "  Backfilled:\t%d (missing from an earlier run)\n", r.ChunksBackfilled)
		}
	}
	fmt.Fprintf(tw, "  Generation:\t%d\n", r.Generation)
	fmt.Fprintf(tw, "  Index totals:\t%d docs, %d chunks, %.0f chars/chunk avg\n",
		r.Stats.TotalDocs, r.Stats.TotalChunks, r.Stats.AvgChunkLen)
	tw.Flush()

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "<1s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
