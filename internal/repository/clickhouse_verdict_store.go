package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"EventHorizon/internal/domain/models"
	domrepo "EventHorizon/internal/domain/repository"
	pkgch "EventHorizon/pkg/clickhouse"
	applogger "EventHorizon/pkg/logger"
)

const verdictColumns = "computed_at, a, b, category, tier, theta, tau, sample_size, divergent, fingerprint"

// VerdictSchema creates the verdict table. Candidates are read back ordered
// by theta, so theta leads the sort key.
func VerdictSchema(table string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            computed_at DateTime64(3, 'UTC'),
            a String,
            b String,
            category LowCardinality(String),
            tier LowCardinality(String),
            theta Float64,
            tau UInt32,
            sample_size UInt32,
            divergent Array(UInt64),
            fingerprint LowCardinality(String)
        ) ENGINE = ReplacingMergeTree(computed_at)
        ORDER BY (category, theta, a, b, fingerprint)
    `, table)}
}

// CHVerdictStore implements VerdictStore backed by ClickHouse.
type CHVerdictStore struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
	chunk  int
	l      *applogger.Logger
}

func NewCHVerdictStore(ch *pkgch.Client, table string, chunk int, l *applogger.Logger) domrepo.VerdictStore {
	if chunk <= 0 {
		chunk = 2000
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHVerdictStore{client: ch, db: ch.DB(), table: table, chunk: chunk, l: l}
}

func (s *CHVerdictStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, VerdictSchema(s.table))
}

func (s *CHVerdictStore) StoreBatch(ctx context.Context, verdicts []models.Verdict) error {
	for start := 0; start < len(verdicts); start += s.chunk {
		end := start + s.chunk
		if end > len(verdicts) {
			end = len(verdicts)
		}
		q, args := buildVerdictInsert(s.table, verdicts[start:end])
		if q == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse verdict insert error",
				applogger.String("table", s.table),
				applogger.Int("rows", end-start),
				applogger.Error(err),
			)
			return fmt.Errorf("insert verdicts: %w", err)
		}
	}
	return nil
}

// buildVerdictInsert renders one multi-row VALUES insert.
func buildVerdictInsert(table string, verdicts []models.Verdict) (string, []interface{}) {
	values := make([]string, 0, len(verdicts))
	args := make([]interface{}, 0, len(verdicts)*10)
	for _, v := range verdicts {
		if v.A == "" || v.B == "" {
			continue
		}
		divergent := v.Divergent
		if divergent == nil {
			divergent = []uint64{}
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			v.ComputedAt,
			v.A,
			v.B,
			string(v.Category),
			string(v.Tier),
			v.Signals.Theta,
			uint32(v.Signals.Tau),
			uint32(v.SampleSize),
			divergent,
			v.Fingerprint,
		)
	}
	if len(values) == 0 {
		return "", nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, verdictColumns, strings.Join(values, ",")), args
}

func (s *CHVerdictStore) TopCandidates(ctx context.Context, limit int) ([]models.Verdict, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE category = ?
        ORDER BY theta ASC, tau DESC
        LIMIT ?
    `, verdictColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, string(models.HighRankCandidate), limit)
	if err != nil {
		s.l.Error("clickhouse top_candidates query error",
			applogger.String("table", s.table),
			applogger.Int("limit", limit),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("top candidates: %w", err)
	}
	defer rows.Close()

	out := make([]models.Verdict, 0, limit)
	for rows.Next() {
		var (
			v         models.Verdict
			category  string
			tier      string
			tau, size uint32
		)
		if err := rows.Scan(&v.ComputedAt, &v.A, &v.B, &category, &tier, &v.Signals.Theta, &tau, &size, &v.Divergent, &v.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		v.Category = models.Category(category)
		v.Tier = models.Tier(tier)
		v.Signals.Tau = int(tau)
		v.SampleSize = int(size)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHVerdictStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *CHVerdictStore) Close() error {
	return nil // client owned by the DI container
}

// StoreSink buffers verdicts and writes them to a VerdictStore in chunks.
// Failed curves carry no verdict and are not stored.
type StoreSink struct {
	store domrepo.VerdictStore
	size  int
	buf   []models.Verdict
}

func NewStoreSink(store domrepo.VerdictStore, flushEvery int) *StoreSink {
	if flushEvery <= 0 {
		flushEvery = 500
	}
	return &StoreSink{store: store, size: flushEvery}
}

func (s *StoreSink) Name() string { return "clickhouse" }

func (s *StoreSink) Write(ctx context.Context, r models.Result) error {
	if r.Verdict == nil {
		return nil
	}
	s.buf = append(s.buf, *r.Verdict)
	if len(s.buf) < s.size {
		return nil
	}
	if err := s.flush(ctx); err != nil {
		// the caller retries r itself; the rest of the chunk stays buffered
		s.buf = s.buf[:len(s.buf)-1]
		return err
	}
	return nil
}

// flush resets the buffer only once the store accepted it.
func (s *StoreSink) flush(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}
	if err := s.store.StoreBatch(ctx, s.buf); err != nil {
		return err
	}
	s.buf = s.buf[:0]
	return nil
}

// Buffered is the number of verdicts not yet written to the store.
func (s *StoreSink) Buffered() int { return len(s.buf) }

func (s *StoreSink) Close() error {
	return s.flush(context.Background())
}
