package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/procflow/pkg/decouple"
	"github.com/logflow/procflow/pkg/graph"
)

// StarSchemaExporter writes traversals as a star schema of Parquet files for
// BI tools: Fact_Traversals, Dim_Transitions, Dim_Activities, Dim_Resources
// and Dim_Cases.
type StarSchemaExporter struct {
	db          *sql.DB
	outputDir   string
	compression string
}

// NewStarSchemaExporter creates a new star schema exporter.
func NewStarSchemaExporter(outputDir, compression string) (*StarSchemaExporter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if compression == "" {
		compression = "snappy"
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	return &StarSchemaExporter{
		db:          db,
		outputDir:   outputDir,
		compression: compression,
	}, nil
}

// Export writes every traversal of g. When view is set, its group edges
// replace the base edges they supersede and carry their group key.
func (e *StarSchemaExporter) Export(ctx context.Context, g *graph.Graph, view *decouple.View) (*StarSchemaResult, error) {
	if err := e.loadTraversals(ctx, g, view); err != nil {
		return nil, err
	}

	result := &StarSchemaResult{OutputDir: e.outputDir}
	steps := []struct {
		file  string
		query string
		dst   *string
	}{
		{"Dim_Activities.parquet", dimActivities, &result.DimActivities},
		{"Dim_Resources.parquet", dimResources, &result.DimResources},
		{"Dim_Cases.parquet", dimCases, &result.DimCases},
		{"Dim_Transitions.parquet", dimTransitions, &result.DimTransitions},
		{"Fact_Traversals.parquet", factTraversals, &result.FactTraversals},
	}
	for _, s := range steps {
		path := filepath.Join(e.outputDir, s.file)
		copyStmt := fmt.Sprintf("COPY (%s) TO '%s' (FORMAT PARQUET, COMPRESSION '%s')", s.query, escapePath(path), e.compression)
		if _, err := e.db.ExecContext(ctx, copyStmt); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", s.file, err)
		}
		*s.dst = path
	}
	return result, nil
}

func (e *StarSchemaExporter) loadTraversals(ctx context.Context, g *graph.Graph, view *decouple.View) error {
	_, err := e.db.ExecContext(ctx, `
		CREATE OR REPLACE TABLE traversals (
			group_key   VARCHAR,
			source      VARCHAR,
			target      VARCHAR,
			case_id     VARCHAR,
			start_ts    TIMESTAMP,
			end_ts      TIMESTAMP,
			duration_ms BIGINT,
			resource    VARCHAR,
			department  VARCHAR
		)`)
	if err != nil {
		return fmt.Errorf("failed to create traversals table: %w", err)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO traversals VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	insert := func(groupKey string, edge graph.Edge) error {
		for _, t := range edge.Traversals {
			if _, err := stmt.ExecContext(ctx, groupKey, edge.Source, edge.Target, t.CaseID,
				t.StartTS, t.EndTS, t.DurationMs, nullable(t.Resource), nullable(t.Department)); err != nil {
				return fmt.Errorf("failed to insert traversal: %w", err)
			}
		}
		return nil
	}

	replaced := graph.NewIDSet()
	if view != nil {
		replaced = view.ReplacedEdgeIDs
		for _, ge := range view.GroupEdges {
			if err := insert(ge.GroupKey, ge.Edge); err != nil {
				return err
			}
		}
	}
	for _, edge := range g.Edges {
		if replaced.Has(edge.ID) {
			continue
		}
		if err := insert("", edge); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func escapePath(p string) string {
	return strings.ReplaceAll(p, "'", "''")
}

const (
	dimActivities = `
		SELECT ROW_NUMBER() OVER (ORDER BY activity) AS activity_key, activity AS activity_name, COUNT(*) AS arrivals
		FROM (SELECT target AS activity FROM traversals)
		GROUP BY activity
		ORDER BY activity`

	dimResources = `
		SELECT ROW_NUMBER() OVER (ORDER BY resource_name) AS resource_key, resource_name, COUNT(*) AS traversals
		FROM (SELECT COALESCE(resource, 'Unknown') AS resource_name FROM traversals)
		GROUP BY resource_name
		ORDER BY resource_name`

	dimCases = `
		SELECT ROW_NUMBER() OVER (ORDER BY case_id) AS case_key, case_id,
			MIN(start_ts) AS case_start_time, MAX(end_ts) AS case_end_time, COUNT(*) AS traversals
		FROM traversals
		GROUP BY case_id
		ORDER BY case_id`

	dimTransitions = `
		SELECT ROW_NUMBER() OVER (ORDER BY group_key, source, target) AS transition_key,
			group_key, source, target, COUNT(*) AS cases,
			AVG(duration_ms) AS mean_ms, MIN(duration_ms) AS min_ms, MAX(duration_ms) AS max_ms
		FROM traversals
		GROUP BY group_key, source, target
		ORDER BY group_key, source, target`

	factTraversals = `
		WITH t AS (` + dimTransitions + `),
		c AS (` + dimCases + `),
		r AS (` + dimResources + `)
		SELECT ROW_NUMBER() OVER (ORDER BY s.case_id, s.start_ts) AS traversal_key,
			t.transition_key, c.case_key, r.resource_key,
			s.start_ts, s.end_ts, s.duration_ms
		FROM traversals s
		LEFT JOIN t ON s.group_key = t.group_key AND s.source = t.source AND s.target = t.target
		LEFT JOIN c ON s.case_id = c.case_id
		LEFT JOIN r ON COALESCE(s.resource, 'Unknown') = r.resource_name
		ORDER BY s.case_id, s.start_ts`
)

// Close releases resources.
func (e *StarSchemaExporter) Close() error {
	return e.db.Close()
}

// StarSchemaResult contains the paths to generated files.
type StarSchemaResult struct {
	OutputDir      string `json:"output_dir"`
	FactTraversals string `json:"fact_traversals"`
	DimTransitions string `json:"dim_transitions"`
	DimActivities  string `json:"dim_activities"`
	DimResources   string `json:"dim_resources"`
	DimCases       string `json:"dim_cases"`
}

// Files returns all generated file paths.
func (r *StarSchemaResult) Files() []string {
	return []string{
		r.FactTraversals,
		r.DimTransitions,
		r.DimActivities,
		r.DimResources,
		r.DimCases,
	}
}
