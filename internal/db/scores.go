package db

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UnitScore is one analysis unit's row in unit_scores together with its
// per-metric component scores.
type UnitScore struct {
	UnitKey    string
	EScore     float64
	SScore     float64
	GScore     float64
	ESGScore   float64
	Tier       string
	Record     []byte // JSON-encoded scored record
	Components map[string]float64
}

// UnitScoreColumns is the unit_scores column order used for COPY.
var UnitScoreColumns = []string{"run_id", "unit_key", "e_score", "s_score", "g_score", "esg_score", "tier", "record"}

// ComponentColumns is the score_components column order used for COPY.
var ComponentColumns = []string{"run_id", "unit_key", "component", "score"}

const stageTable = "_stage_unit_scores"

const createStageSQL = `CREATE TEMP TABLE _stage_unit_scores (LIKE unit_scores INCLUDING DEFAULTS) ON COMMIT DROP`

const mergeUnitScoresSQL = `INSERT INTO unit_scores (run_id, unit_key, e_score, s_score, g_score, esg_score, tier, record)
SELECT run_id, unit_key, e_score, s_score, g_score, esg_score, tier, record FROM _stage_unit_scores
ON CONFLICT (run_id, unit_key) DO UPDATE SET
	e_score = EXCLUDED.e_score,
	s_score = EXCLUDED.s_score,
	g_score = EXCLUDED.g_score,
	esg_score = EXCLUDED.esg_score,
	tier = EXCLUDED.tier,
	record = EXCLUDED.record`

// SaveRunScores writes a run's unit scores and components in one transaction.
// Units are staged with COPY and merged into unit_scores on (run_id,
// unit_key); the run's previous components are replaced. It returns the
// number of unit rows written.
func SaveRunScores(ctx context.Context, pool Pool, runID string, units []UnitScore) (int64, error) {
	if len(units) == 0 {
		return 0, nil
	}
	if runID == "" {
		return 0, eris.New("db: save scores: empty run id")
	}
	rows, components := scoreRows(runID, units)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: save scores: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, createStageSQL); err != nil {
		return 0, eris.Wrap(err, "db: save scores: create stage table")
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stageTable}, UnitScoreColumns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: save scores: COPY %d units", len(rows))
	}
	tag, err := tx.Exec(ctx, mergeUnitScoresSQL)
	if err != nil {
		return 0, eris.Wrap(err, "db: save scores: merge unit_scores")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM score_components WHERE run_id = $1`, runID); err != nil {
		return 0, eris.Wrap(err, "db: save scores: clear components")
	}
	if _, err := CopyFrom(ctx, tx, "score_components", ComponentColumns, components); err != nil {
		return 0, eris.Wrap(err, "db: save scores")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: save scores: commit tx")
	}
	return tag.RowsAffected(), nil
}

// scoreRows flattens units into unit_scores rows and score_components rows.
// Components are emitted in name order.
func scoreRows(runID string, units []UnitScore) (rows, components [][]any) {
	rows = make([][]any, 0, len(units))
	for _, u := range units {
		rows = append(rows, []any{runID, u.UnitKey, u.EScore, u.SScore, u.GScore, u.ESGScore, u.Tier, u.Record})

		names := make([]string, 0, len(u.Components))
		for name := range u.Components {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			components = append(components, []any{runID, u.UnitKey, name, u.Components[name]})
		}
	}
	return rows, components
}
