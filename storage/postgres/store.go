package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/storage"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// Supported database/sql drivers.
const (
	DriverPG = "pgdriver"
	DriverPQ = "postgres"
)

const embeddingIndex = "chunks_embedding_hnsw_idx"

type chunkRow struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`

	ID             int64           `bun:"id,pk,autoincrement"`
	Content        string          `bun:"content,notnull"`
	SourceFile     string          `bun:"source_file,notnull"`
	PageNumber     int             `bun:"page_number,notnull"`
	EmbeddingModel string          `bun:"embedding_model,notnull"`
	ContentHash    int64           `bun:"content_hash,notnull"`
	Embedding      pgvector.Vector `bun:"embedding,type:vector,notnull"`
	CreatedAt      time.Time       `bun:"created_at,notnull"`

	Score float64 `bun:"score,scanonly"`
}

type spaceRow struct {
	bun.BaseModel `bun:"table:embedding_space,alias:s"`

	ID         int    `bun:"id,pk"`
	Model      string `bun:"model,notnull"`
	Dimensions int    `bun:"dimensions,notnull"`
}

// Option configures a Store.
type Option func(*Store) error

// WithDriver selects the database/sql driver: DriverPG (default) or DriverPQ.
func WithDriver(name string) Option {
	return func(s *Store) error {
		switch name {
		case "", DriverPG:
			s.driver = DriverPG
		case DriverPQ:
			s.driver = DriverPQ
		default:
			return fmt.Errorf("unsupported postgres driver %q", name)
		}
		return nil
	}
}

// WithDebug logs every query through bundebug.
func WithDebug(verbose bool) Option {
	return func(s *Store) error {
		s.debug = true
		s.verbose = verbose
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// Store implements storage.ChunkRepository on Postgres with pgvector.
// Vectors are compared by cosine distance through an HNSW index created
// once the embedding space is known.
type Store struct {
	db      *bun.DB
	driver  string
	debug   bool
	verbose bool
	logger  *slog.Logger
}

var _ storage.ChunkRepository = (*Store)(nil)

// Open connects to dsn and creates the schema if needed.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, ErrDSNRequired
	}
	s := &Store{driver: DriverPG, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "postgres-store")

	var (
		sqldb *sql.DB
		err   error
	)
	if s.driver == DriverPQ {
		sqldb, err = sql.Open(DriverPQ, dsn)
		if err != nil {
			return nil, err
		}
	} else {
		sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	}

	s.db = bun.NewDB(sqldb, pgdialect.New())
	if s.debug {
		s.db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(s.verbose)))
	}

	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*chunkRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	if _, err := s.db.NewCreateTable().Model((*spaceRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := s.db.NewCreateIndex().
		Model((*chunkRow)(nil)).
		Index("chunks_source_file_idx").
		Column("source_file").
		IfNotExists().
		Exec(ctx)
	return err
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertMany writes all chunks in one multi-row INSERT.
func (s *Store) InsertMany(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}
	space := core.EmbeddingSpace{Model: chunks[0].EmbeddingModel, Dimensions: len(chunks[0].Vector)}
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, err
		}
		got := core.EmbeddingSpace{Model: chunk.EmbeddingModel, Dimensions: len(chunk.Vector)}
		if !got.Matches(space) {
			return nil, fmt.Errorf("%w: batch mixes %s/%d and %s/%d", storage.ErrEmbeddingSpaceMismatch,
				space.Model, space.Dimensions, got.Model, got.Dimensions)
		}
	}

	now := time.Now().UTC()
	rows := make([]chunkRow, len(chunks))
	for i, chunk := range chunks {
		chunk.CreatedAt = now
		chunk.Vector = core.NormalizeVector(chunk.Vector)
		if chunk.ContentHash == 0 {
			chunk.ContentHash = core.IDFromContent(chunk.Content)
		}
		rows[i] = toRow(chunk)
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := claimSpace(ctx, tx, space); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&rows).Returning("id").Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	for i := range rows {
		chunks[i].Id = core.ID(rows[i].ID)
	}
	return chunks, nil
}

// claimSpace records space and builds the vector index on first insert,
// or verifies that space matches what is recorded.
func claimSpace(ctx context.Context, tx bun.Tx, space core.EmbeddingSpace) error {
	current, err := readSpace(ctx, tx, true)
	if err != nil {
		return err
	}
	if current != nil {
		if !current.Matches(space) {
			return fmt.Errorf("%w: store holds %s/%d, got %s/%d", storage.ErrEmbeddingSpaceMismatch,
				current.Model, current.Dimensions, space.Model, space.Dimensions)
		}
		return nil
	}

	row := &spaceRow{ID: 1, Model: space.Model, Dimensions: space.Dimensions}
	if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE chunks ALTER COLUMN embedding TYPE vector(%d)", space.Dimensions)); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS "+embeddingIndex+" ON chunks USING hnsw (embedding vector_cosine_ops)")
	return err
}

func readSpace(ctx context.Context, db bun.IDB, forUpdate bool) (*core.EmbeddingSpace, error) {
	row := new(spaceRow)
	q := db.NewSelect().Model(row).Where("s.id = 1")
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &core.EmbeddingSpace{Model: row.Model, Dimensions: row.Dimensions}, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*chunkRow)(nil)).Count(ctx)
}

// DeleteMany removes chunks for one source file, or truncates the table and
// drops the vector index when filter is empty.
func (s *Store) DeleteMany(ctx context.Context, filter core.ChunkFilter) (int, error) {
	if !filter.IsEmpty() {
		res, err := s.db.NewDelete().
			Model((*chunkRow)(nil)).
			Where("source_file = ?", filter.SourceFile).
			Exec(ctx)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		return int(n), err
	}

	var removed int
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		removed, err = tx.NewSelect().Model((*chunkRow)(nil)).Count(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.NewTruncateTable().Model((*chunkRow)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*spaceRow)(nil)).Where("1 = 1").Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DROP INDEX IF EXISTS "+embeddingIndex); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "ALTER TABLE chunks ALTER COLUMN embedding TYPE vector")
		return err
	})
	return removed, err
}

// EmbeddingSpace returns the recorded space, or nil for an empty store.
func (s *Store) EmbeddingSpace(ctx context.Context) (*core.EmbeddingSpace, error) {
	return readSpace(ctx, s.db, false)
}

// VectorSearch orders chunks by cosine distance. query.Candidates sets
// hnsw.ef_search for the transaction.
func (s *Store) VectorSearch(ctx context.Context, query core.VectorQuery) ([]*core.SearchResult, error) {
	if query.K <= 0 || len(query.Vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}

	results := []*core.SearchResult{}
	err := s.db.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
		space, err := readSpace(ctx, tx, false)
		if err != nil {
			return err
		}
		if space == nil {
			return nil
		}
		if (query.Model != "" && query.Model != space.Model) || len(query.Vector) != space.Dimensions {
			return fmt.Errorf("%w: store holds %s/%d, query is %s/%d", storage.ErrEmbeddingSpaceMismatch,
				space.Model, space.Dimensions, query.Model, len(query.Vector))
		}

		if query.Candidates > 0 {
			if _, err := tx.ExecContext(ctx, "SET LOCAL hnsw.ef_search = ?", max(query.Candidates, query.K)); err != nil {
				return err
			}
		}

		vec := pgvector.NewVector(core.NormalizeVector(query.Vector))
		var rows []chunkRow
		err = tx.NewSelect().
			Model(&rows).
			ColumnExpr("c.*").
			ColumnExpr("1 - (c.embedding <=> ?) AS score", vec).
			OrderExpr("c.embedding <=> ?", vec).
			OrderExpr("c.id ASC").
			Limit(query.K).
			Scan(ctx)
		if err != nil {
			return err
		}
		for i := range rows {
			results = append(results, &core.SearchResult{
				Chunk: fromRow(&rows[i]),
				Score: float32(rows[i].Score),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func toRow(chunk *core.Chunk) chunkRow {
	return chunkRow{
		Content:        chunk.Content,
		SourceFile:     chunk.Metadata.SourceFile,
		PageNumber:     chunk.Metadata.PageNumber,
		EmbeddingModel: chunk.EmbeddingModel,
		ContentHash:    int64(chunk.ContentHash),
		Embedding:      pgvector.NewVector(chunk.Vector),
		CreatedAt:      chunk.CreatedAt,
	}
}

func fromRow(row *chunkRow) *core.Chunk {
	return &core.Chunk{
		Id:      core.ID(row.ID),
		Content: row.Content,
		Metadata: core.ChunkMetadata{
			SourceFile: row.SourceFile,
			PageNumber: row.PageNumber,
		},
		Vector:         row.Embedding.Slice(),
		EmbeddingModel: row.EmbeddingModel,
		ContentHash:    core.ID(uint64(row.ContentHash)),
		CreatedAt:      row.CreatedAt,
	}
}
