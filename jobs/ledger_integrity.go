package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/corebank/corebank/internal/jobs"
)

// LedgerIntegrityJob verifies that every account balance matches the snapshot
// carried by its latest successful ledger entry. Any divergence means a write
// bypassed the balance engine and is reported, never repaired.
type LedgerIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLedgerIntegrityJob initialises the integrity handler.
func NewLedgerIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type auditAccount struct {
	ID      int64
	Number  string
	Balance int64
}

// Handle executes the integrity audit.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Concurrency <= 0 {
		payload.Concurrency = 4
	}

	start := j.now()
	tracker := j.metrics().Track(TaskLedgerIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("concurrency", payload.Concurrency))
	logger.Info("starting ledger integrity audit")

	checked, drifted, err := j.audit(ctx, payload.Concurrency)
	if err != nil {
		resultErr = err
		logger.Error("audit failed", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed ledger integrity audit",
		slog.Int("accounts", checked),
		slog.Int("drifted", drifted),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *LedgerIntegrityJob) audit(ctx context.Context, concurrency int) (int, int, error) {
	if j.Pool == nil {
		return 0, 0, errors.New("ledger integrity: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT id, account_number, balance FROM accounts ORDER BY id`)
	if err != nil {
		return 0, 0, err
	}
	accounts := make([]auditAccount, 0)
	for rows.Next() {
		var acc auditAccount
		if err := rows.Scan(&acc.ID, &acc.Number, &acc.Balance); err != nil {
			rows.Close()
			return 0, 0, err
		}
		accounts = append(accounts, acc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	var drifted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, acc := range accounts {
		g.Go(func() error {
			snapshot, ok, err := j.latestSnapshot(gctx, acc.ID)
			if err != nil {
				return err
			}
			if !ok || snapshot == acc.Balance {
				return nil
			}
			drifted.Add(1)
			j.metrics().AddDrift(acc.Number, 1)
			j.logger().Warn("balance drift detected",
				slog.String("account_number", acc.Number),
				slog.Int64("balance", acc.Balance),
				slog.Int64("snapshot", snapshot),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	return len(accounts), int(drifted.Load()), nil
}

func (j *LedgerIntegrityJob) latestSnapshot(ctx context.Context, accountID int64) (int64, bool, error) {
	var snapshot int64
	err := j.Pool.QueryRow(ctx, `
		SELECT balance_snapshot FROM transactions
		WHERE account_id = $1 AND result = 'SUCCESS'
		ORDER BY transacted_at DESC, id DESC
		LIMIT 1`, accountID).Scan(&snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return snapshot, true, nil
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return nil
}

func (j *LedgerIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
