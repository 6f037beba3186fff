package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"yashubustudio/termalign/alignment"
)

const defaultTable = "clause_embeddings"

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Close()
}

// PGVector keeps clause embeddings in a Postgres table with the vector
// extension.
type PGVector struct {
	pool       pgxPool
	tableIdent string
	dimension  int
}

// NewPGVector connects to cfg.DSN and creates the table when missing.
func NewPGVector(ctx context.Context, cfg alignment.VectorIndexConfig) (*PGVector, error) {
	if cfg.Dimension <= 0 {
		return nil, errors.New("pgvector: dimension must be greater than zero")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: failed to connect to postgres: %w", err)
	}
	store := newPGVector(pool, cfg.Table, cfg.Dimension)
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func newPGVector(pool pgxPool, table string, dimension int) *PGVector {
	if table == "" {
		table = defaultTable
	}
	return &PGVector{
		pool:       pool,
		tableIdent: pgx.Identifier{table}.Sanitize(),
		dimension:  dimension,
	}
}

func (p *PGVector) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("pgvector: enable extension: %w", err)
	}
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		template_id TEXT NOT NULL,
		clause_id TEXT NOT NULL,
		section_id TEXT,
		title TEXT,
		category TEXT,
		document TEXT,
		embedding vector(%d),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (template_id, clause_id)
	)`, p.tableIdent, p.dimension)
	if _, err := p.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("pgvector: create table: %w", err)
	}
	return nil
}

// UpsertClauses writes all vectors of a template in one transaction.
func (p *PGVector) UpsertClauses(ctx context.Context, templateID string, vectors []alignment.ClauseVector) (err error) {
	if len(vectors) == 0 {
		return nil
	}
	for _, v := range vectors {
		if len(v.Vector) != p.dimension {
			return fmt.Errorf("pgvector: clause %q: %w (got %d want %d)", v.ClauseID, ErrDimensionMismatch, len(v.Vector), p.dimension)
		}
	}
	tx, txErr := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if txErr != nil {
		return fmt.Errorf("pgvector: begin tx: %w", txErr)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("pgvector: rollback failed: %w; original error: %v", rbErr, err)
			}
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				err = fmt.Errorf("pgvector: commit: %w", commitErr)
			}
		}
	}()
	stmt := fmt.Sprintf(`INSERT INTO %s (template_id, clause_id, section_id, title, category, document, embedding, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (template_id, clause_id) DO UPDATE SET
    section_id = excluded.section_id,
    title = excluded.title,
    category = excluded.category,
    document = excluded.document,
    embedding = excluded.embedding,
    updated_at = excluded.updated_at`, p.tableIdent)
	now := time.Now().UTC()
	for _, v := range vectors {
		if _, execErr := tx.Exec(ctx, stmt,
			templateID, v.ClauseID, v.SectionID, v.Title, string(v.Category), v.Text,
			pgvector.NewVector(v.Vector), now,
		); execErr != nil {
			return fmt.Errorf("pgvector: upsert %q: %w", v.ClauseID, execErr)
		}
	}
	return nil
}

// Search returns the closest clauses of a template by cosine distance.
func (p *PGVector) Search(ctx context.Context, templateID string, query []float32, minScore float64, limit int) ([]alignment.ScoredClause, error) {
	if len(query) != p.dimension {
		return nil, fmt.Errorf("pgvector: query: %w", ErrDimensionMismatch)
	}
	if limit <= 0 {
		return nil, nil
	}
	sql := fmt.Sprintf(`SELECT clause_id, 1 - (embedding <=> $1) AS score FROM %s
WHERE template_id = $2 AND 1 - (embedding <=> $1) >= $3
ORDER BY embedding <=> $1 ASC LIMIT $4`, p.tableIdent)
	rows, err := p.pool.Query(ctx, sql, pgvector.NewVector(query), templateID, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()
	results := make([]alignment.ScoredClause, 0, limit)
	for rows.Next() {
		var (
			id    string
			score float64
		)
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		if score < minScore {
			continue
		}
		results = append(results, alignment.ScoredClause{ClauseID: id, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search rows: %w", err)
	}
	return results, nil
}

// DeleteTemplate removes every stored clause of a template.
func (p *PGVector) DeleteTemplate(ctx context.Context, templateID string) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE template_id = $1", p.tableIdent)
	if _, err := p.pool.Exec(ctx, sql, templateID); err != nil {
		return fmt.Errorf("pgvector: delete: %w", err)
	}
	return nil
}

func (p *PGVector) Close() error {
	p.pool.Close()
	return nil
}
