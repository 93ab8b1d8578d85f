package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/agri-esg/internal/ingest"
	"github.com/sells-group/agri-esg/internal/model"
	"github.com/sells-group/agri-esg/internal/narrative"
	"github.com/sells-group/agri-esg/internal/pipeline"
	"github.com/sells-group/agri-esg/internal/store"
)

var (
	scoreInputs      []string
	scorePolicy      string
	scoreGroupBy     []string
	scoreOptional    string
	scoreFormat      string
	scoreOutputPath  string
	scoreSave        bool
	scoreNarrative   bool
	scoreConcurrency int
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one or more farm activity files",
	Long:  "Reads CSV or XLSX activity data, computes KPIs, aggregates per analysis unit and scores each unit against the rest of its file.",
	Example: `  agri-esg score --input farms.csv
  agri-esg score --input fields.xlsx --policy sfi --group-by farm_id,year --optional soil.csv
  agri-esg score --input a.csv --input b.csv --format xlsx --output esg.xlsx --save`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("score"); err != nil {
			return err
		}
		if !validFormat(scoreFormat) {
			return eris.Errorf("score: unknown format %q (table, csv, json, xlsx)", scoreFormat)
		}
		if scoreFormat == formatXLSX && scoreOutputPath == "" {
			return eris.New("score: --output is required for xlsx")
		}

		batches, err := readBatches(ctx)
		if err != nil {
			return err
		}

		eng, err := initEngine(cfg)
		if err != nil {
			return err
		}

		var st store.Store
		if scoreSave {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		scorer := initScorer(cfg, eng, st)
		if st != nil {
			scorer = &recorder{store: st, next: scorer}
		}

		var adv *narrative.Advisor
		if scoreNarrative {
			adv = initAdvisor(cfg)
		}

		outcomes := pipeline.RunMany(ctx, scorer, batches, scoreConcurrency)

		var failed int
		for i, o := range outcomes {
			if o.Err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "%s: %v\n", o.Source, o.Err)
				continue
			}
			out := buildOutput(ctx, o.Result, batches[i], adv)
			if err := emit(out, len(outcomes) > 1); err != nil {
				return err
			}
		}

		if failed > 0 {
			return eris.Errorf("score: %d of %d inputs failed", failed, len(outcomes))
		}
		return nil
	},
}

func init() {
	scoreCmd.Flags().StringSliceVarP(&scoreInputs, "input", "i", nil, "activity file (.csv or .xlsx); repeatable")
	scoreCmd.Flags().StringVar(&scorePolicy, "policy", "", "scoring policy slug (default from config)")
	scoreCmd.Flags().StringSliceVar(&scoreGroupBy, "group-by", nil, "analysis unit columns (default from policy)")
	scoreCmd.Flags().StringVar(&scoreOptional, "optional", "", "supplementary soil/biodiversity/workforce file merged per unit")
	scoreCmd.Flags().StringVarP(&scoreFormat, "format", "f", formatTable, "output format: table, csv, json, xlsx")
	scoreCmd.Flags().StringVarP(&scoreOutputPath, "output", "o", "", "output file (default stdout)")
	scoreCmd.Flags().BoolVar(&scoreSave, "save", false, "record the run and its scores in the store")
	scoreCmd.Flags().BoolVar(&scoreNarrative, "narrative", false, "add AI-generated advice per unit")
	scoreCmd.Flags().IntVar(&scoreConcurrency, "concurrency", 4, "files scored in parallel")
	rootCmd.AddCommand(scoreCmd)
}

// readBatches reads every input file and the optional file into batches.
func readBatches(ctx context.Context) ([]pipeline.Batch, error) {
	inputs := cleanList(scoreInputs)
	if len(inputs) == 0 {
		return nil, eris.New("score: at least one --input file is required")
	}

	var optional []model.ActivityRecord
	if scoreOptional != "" {
		t, err := ingest.ReadFile(ctx, scoreOptional)
		if err != nil {
			return nil, eris.Wrap(err, "score: read optional data")
		}
		optional = t.Records
	}

	policy := scorePolicy
	if policy == "" {
		policy = cfg.Scoring.Policy
	}
	groupBy := cleanList(scoreGroupBy)

	batches := make([]pipeline.Batch, 0, len(inputs))
	for _, path := range inputs {
		t, err := ingest.ReadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		batches = append(batches, pipeline.Batch{
			Source:   t.Source,
			Header:   t.Header,
			Records:  t.Records,
			Optional: optional,
			Policy:   policy,
			GroupBy:  groupBy,
		})
	}
	return batches, nil
}

// buildOutput adds insights, emissions reports and, with an advisor, advice
// to a result.
func buildOutput(ctx context.Context, res *pipeline.Result, b pipeline.Batch, adv *narrative.Advisor) scoreOutput {
	out := newScoreOutput(res)
	out.Emissions = emissionsByFarm(cfg, b.Records)
	if adv != nil {
		out.Advice = adv.AdviseAll(ctx, res.Scored)
	}
	return out
}

// emit writes one output to the --output file or stdout. With several inputs
// each output file gets the input's name as a suffix.
func emit(out scoreOutput, many bool) error {
	if scoreOutputPath == "" {
		if many && scoreFormat == formatTable {
			fmt.Fprintf(os.Stdout, "\n== %s ==\n", out.Source)
		}
		return writeOutput(os.Stdout, out, scoreFormat)
	}

	path := scoreOutputPath
	if many {
		path = suffixedPath(scoreOutputPath, out.Source)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "score: create output file")
	}
	defer f.Close() //nolint:errcheck

	if err := writeOutput(f, out, scoreFormat); err != nil {
		return err
	}
	zap.L().Info("score: wrote output", zap.String("path", path), zap.String("source", out.Source))
	return nil
}

// suffixedPath returns out with the base name of source inserted before the
// extension: esg.csv + farms/north.xlsx -> esg-north.csv.
func suffixedPath(out, source string) string {
	ext := filepath.Ext(out)
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return strings.TrimSuffix(out, ext) + "-" + stem + ext
}

// recorder keeps every run it scores in a store.
type recorder struct {
	store store.Store
	next  pipeline.Scorer
}

func (r *recorder) Run(ctx context.Context, b pipeline.Batch) (*pipeline.Result, error) {
	run, res, err := pipeline.Record(ctx, r.store, r.next, b)
	if run != nil {
		zap.L().Info("score: run saved", zap.String("run_id", run.ID), zap.String("source", b.Source))
	}
	return res, err
}
