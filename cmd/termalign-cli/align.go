package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"yashubustudio/termalign/alignment"
	"yashubustudio/termalign/embedding"
	"yashubustudio/termalign/internal/logger"
	"yashubustudio/termalign/internal/metrics"
	"yashubustudio/termalign/vectorindex"
)

// newEmbedder is swapped in tests.
var newEmbedder = embedding.New

type alignOptions struct {
	termsPath       string
	templatePath    string
	outputPath      string
	outputDir       string
	metricsPath     string
	stdout          bool
	storeEmbeddings bool
}

func newAlignCommand(root *rootOptions) *cobra.Command {
	opts := &alignOptions{}
	cmd := &cobra.Command{
		Use:   "align",
		Short: "Match extracted terms to template clauses and write the alignment result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.termsPath = strings.TrimSpace(opts.termsPath)
			opts.templatePath = strings.TrimSpace(opts.templatePath)
			if opts.termsPath == "" {
				return errors.New("missing required --terms file")
			}
			if opts.templatePath == "" {
				return errors.New("missing required --template file")
			}
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			log := root.newLogger(cfg.Log)
			ctx := logger.ContextWithLogger(cmd.Context(), log)
			return runAlign(ctx, cfg, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.termsPath, "terms", "", "Term extraction JSON file")
	cmd.Flags().StringVar(&opts.templatePath, "template", "", "Template analysis JSON file")
	cmd.Flags().StringVar(&opts.outputPath, "output", "", "JSON file to write the result (default uses --output-dir/result_*.json)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "results", "Directory where results are written when --output is omitted")
	cmd.Flags().StringVar(&opts.metricsPath, "metrics-file", "", "Write Prometheus metrics for the run to this file")
	cmd.Flags().BoolVar(&opts.stdout, "stdout", false, "Print the result JSON to STDOUT instead of writing a file")
	cmd.Flags().BoolVar(&opts.storeEmbeddings, "store-embeddings", false, "Index template clause embeddings before aligning")
	return cmd
}

func runAlign(ctx context.Context, cfg alignment.Config, opts *alignOptions, out io.Writer) error {
	log := logger.FromContext(ctx)
	ts, err := alignment.ReadTermExtractionFile(opts.termsPath)
	if err != nil {
		return err
	}
	tmpl, err := alignment.ReadTemplateAnalysisFile(opts.templatePath)
	if err != nil {
		return err
	}

	var (
		registry *prometheus.Registry
		reg      prometheus.Registerer
	)
	if opts.metricsPath != "" {
		registry = prometheus.NewRegistry()
		reg = registry
	}
	p, err := newPipeline(ctx, cfg, tmpl.DocumentID, log, reg)
	if err != nil {
		return err
	}
	defer p.Close()

	// the memory index starts empty in every process
	if opts.storeEmbeddings || cfg.VectorIndex.Provider == "memory" {
		n, err := p.semantic.StoreClauseEmbeddings(ctx, tmpl.DocumentID, tmpl.Clauses)
		if err != nil {
			return err
		}
		log.Info("clause embeddings stored", "template_document_id", tmpl.DocumentID, "count", n)
	}

	runCfg := cfg.Alignment
	res, err := p.engine.Align(ctx, ts, tmpl, &runCfg)
	if err != nil {
		return fmt.Errorf("align: %w", err)
	}

	if registry != nil {
		if err := prometheus.WriteToTextfile(opts.metricsPath, registry); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	if opts.stdout {
		return alignment.EncodeResult(out, res)
	}
	outputPath, err := resolveOutputPath(opts.outputPath, opts.outputDir)
	if err != nil {
		return err
	}
	if err := alignment.WriteResultFile(outputPath, res); err != nil {
		return err
	}
	printSummary(out, res)
	fmt.Fprintf(out, "alignment result saved to %s\n", outputPath)
	return nil
}

// pipeline owns the backends behind one engine.
type pipeline struct {
	engine   *alignment.Engine
	semantic *alignment.SemanticMatcher
	embedder embedding.Embedder
	store    vectorindex.Store
}

func newPipeline(ctx context.Context, cfg alignment.Config, templateID string, log logger.Logger, reg prometheus.Registerer) (*pipeline, error) {
	rules, err := alignment.LoadMatchRules(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	var observer alignment.Observer
	if reg != nil {
		rec, err := metrics.NewRecorder(reg)
		if err != nil {
			return nil, err
		}
		observer = rec
	}

	p := &pipeline{}
	p.embedder, err = newEmbedder(ctx, cfg.Embedder, log)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	p.store, err = vectorindex.New(ctx, cfg.VectorIndex)
	if err != nil {
		// semantic matching falls back to local ranking
		log.Warn("vector index unavailable", "provider", cfg.VectorIndex.Provider, "error", err)
		if observer != nil {
			observer.BackendDegraded("vector_index")
		}
		p.store = nil
	}

	semOpts := []alignment.SemanticMatcherOption{
		alignment.WithSimilarityThreshold(cfg.Semantic.SimilarityThreshold),
		alignment.WithMaxResults(cfg.Semantic.MaxResults),
		alignment.WithSemanticLogger(log),
	}
	engineOpts := []alignment.EngineOption{
		alignment.WithRuleMatcher(alignment.NewRuleMatcher(rules)),
		alignment.WithLogger(log),
	}
	if observer != nil {
		semOpts = append(semOpts, alignment.WithSemanticObserver(observer))
		engineOpts = append(engineOpts, alignment.WithObserver(observer))
	}
	if p.store != nil {
		semOpts = append(semOpts,
			alignment.WithVectorSearcher(vectorindex.Scope(p.store, templateID)),
			alignment.WithClauseIndexer(p.store),
		)
	}
	var embedder alignment.Embedder
	if p.embedder != nil {
		embedder = p.embedder
	}
	p.semantic, err = alignment.NewSemanticMatcher(embedder, semOpts...)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("init semantic matcher: %w", err)
	}
	engineOpts = append(engineOpts, alignment.WithSemanticMatcher(p.semantic))
	p.engine, err = alignment.NewEngine(engineOpts...)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}
	log.Debug("pipeline ready",
		"embedder", cfg.Embedder.Provider,
		"vector_index", cfg.VectorIndex.Provider,
		"rules", len(rules),
	)
	return p, nil
}

func (p *pipeline) Close() {
	if p.embedder != nil {
		_ = p.embedder.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

func resolveOutputPath(path, dir string) (string, error) {
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve output path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return absPath, nil
	}
	if dir == "" {
		dir = "results"
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	filename := fmt.Sprintf("result_%s.json", time.Now().Format("20060102150405"))
	return filepath.Join(absDir, filename), nil
}
