package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/tenant"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
)

// --- Retry Logic Configuration ---
const (
	defaultRetryInitialInterval = 50 * time.Millisecond
	defaultRetryMaxInterval     = 2 * time.Second
	auditRetryMaxElapsedTime    = 5 * time.Second

	connectInitialInterval = 1 * time.Second
	connectMaxInterval     = 15 * time.Second
	connectMaxElapsedTime  = 1 * time.Minute
)

// Options configures the connection pool and schema placement.
type Options struct {
	DSN             string
	Schema          string
	AutoMigrate     bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// newRetryPolicy creates a new exponential backoff policy with context awareness.
func newRetryPolicy(ctx context.Context, maxElapsedTime time.Duration) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultRetryInitialInterval
	b.MaxInterval = defaultRetryMaxInterval
	b.MaxElapsedTime = maxElapsedTime
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// retryableOperation retries operation while it fails with a transient error.
// Only idempotent writes go through here; business writes are never retried
// inside the store.
func retryableOperation(ctx context.Context, policy backoff.BackOffContext, opName string, operation func() error) error {
	notify := func(err error, d time.Duration) {
		logger.FromContext(ctx).Warn("Retrying DB operation",
			zap.String("operation", opName),
			zap.Error(err),
			zap.Duration("after", d),
		)
	}

	return backoff.RetryNotify(func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if isTransientError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, notify)
}

// isTransientError checks if the error suggests a temporary issue like a network problem.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Class 08 connection exception, class 53 insufficient resources,
	// deadlock and serialization failure.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "53") ||
			pgErr.Code == "40P01" ||
			pgErr.Code == "40001" {
			return true
		}
		return false
	}

	errStr := strings.ToLower(err.Error())
	transientIndicators := []string{
		"connection refused",
		"network is unreachable",
		"i/o timeout",
		"broken pipe",
		"connection reset by peer",
		"could not translate host name",
		"no route to host",
		"database system is starting up",
		"connection timed out",
		"connection reset",
	}
	for _, indicator := range transientIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// PostgresRepo implements every repository of the lead pipeline on one
// gorm connection pool.
type PostgresRepo struct {
	db *gorm.DB
}

// tenantNamer qualifies every table with the configured schema.
type tenantNamer struct {
	schema.NamingStrategy
	schemaName string
}

func (tn tenantNamer) TableName(table string) string {
	return fmt.Sprintf("%q.%s", tn.schemaName, table)
}

func connectWithRetry(dsn string, cfg *gorm.Config, what string) (*gorm.DB, error) {
	operation := func() (*gorm.DB, error) {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			if isTransientError(err) {
				logger.Log.Warn("Failed to connect to postgres (transient), retrying...", zap.String("target", what), zap.Error(err))
				return nil, err
			}
			return nil, backoff.Permanent(fmt.Errorf("failed to connect to postgres %s: %w", what, err))
		}
		return db, nil
	}

	notify := func(err error, d time.Duration) {
		logger.Log.Warn("Retrying DB connection", zap.String("target", what), zap.Error(err), zap.Duration("after", d))
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = connectInitialInterval
	b.MaxInterval = connectMaxInterval
	b.MaxElapsedTime = connectMaxElapsedTime

	return backoff.RetryNotifyWithData(operation, b, notify)
}

func closeQuietly(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// NewPostgresRepo connects, makes sure the schema exists and migrates the
// lead pipeline tables into it.
func NewPostgresRepo(opts Options) (*PostgresRepo, error) {
	schemaName := opts.Schema
	if schemaName == "" {
		schemaName = "public"
	}

	dbDefault, err := connectWithRetry(opts.DSN, &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)}, "default")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to default postgres after retries: %w", err)
	}

	logger.Log.Info("Ensuring PostgreSQL schema exists", zap.String("schema", schemaName))
	if err := dbDefault.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", schemaName)).Error; err != nil {
		closeQuietly(dbDefault)
		return nil, fmt.Errorf("failed to create schema %s: %w", schemaName, err)
	}
	closeQuietly(dbDefault)

	db, err := connectWithRetry(opts.DSN, &gorm.Config{
		NamingStrategy: tenantNamer{schemaName: schemaName},
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
	}, schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres schema %s after retries: %w", schemaName, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	repo := &PostgresRepo{db: db}

	if opts.AutoMigrate {
		if err := repo.migrate(schemaName); err != nil {
			closeQuietly(db)
			return nil, err
		}
	}

	return repo, nil
}

// NewPostgresRepoFromDB wraps an already opened connection.
func NewPostgresRepoFromDB(db *gorm.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) migrate(schemaName string) error {
	logger.Log.Info("Running auto-migration", zap.String("schema", schemaName))

	// Parents before children so the foreign keys resolve.
	err := r.db.AutoMigrate(
		&model.Lead{},
		&model.LeadEvent{},
		&model.InboundMessage{},
		&model.Conversation{},
		&model.WebhookLogEntry{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate schema %s: %w", schemaName, err)
	}

	// The identity index backs find-or-create under concurrent first contact,
	// so failing to build it is fatal.
	identityIndex := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_owner_phone_digits ON %q.leads USING btree (owner_user_id, phone_digits);", schemaName)
	if err := r.db.Exec(identityIndex).Error; err != nil {
		return fmt.Errorf("failed to create lead identity index in schema %s: %w", schemaName, err)
	}

	indexes := map[string]string{
		"idx_lead_events_lead_created":   fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_lead_events_lead_created ON %q.lead_events USING btree (lead_id, created_at DESC);", schemaName),
		"idx_conversations_lead_fecha":   fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_conversations_lead_fecha ON %q.conversations USING btree (lead_id, fecha DESC);", schemaName),
		"idx_inbound_messages_lead_recv": fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_inbound_messages_lead_recv ON %q.inbound_messages USING btree (lead_id, received_at DESC);", schemaName),
		"idx_webhook_logs_origen_fecha":  fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_webhook_logs_origen_fecha ON %q.webhook_logs USING btree (origen, fecha DESC);", schemaName),
		"idx_leads_owner_status_created": fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_leads_owner_status_created ON %q.leads USING btree (owner_user_id, status, created_at);", schemaName),
	}
	for indexName, indexSQL := range indexes {
		if err := r.db.Exec(indexSQL).Error; err != nil {
			logger.Log.Warn("Failed to create index", zap.String("indexName", indexName), zap.Error(err))
		}
	}

	logger.Log.Info("Auto-migration finished", zap.String("schema", schemaName))
	return nil
}

type txKey struct{}

// WithTx runs fn inside one database transaction. Repository calls made with
// the ctx passed to fn join it; a nested WithTx reuses the outer transaction.
func (r *PostgresRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
	}

	var fnErr error
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if fnErr != nil {
			if rbErr := tx.Rollback().Error; rbErr != nil {
				logger.FromContext(ctx).Error("Failed to rollback transaction after error", zap.Error(rbErr), zap.NamedError("originalTxError", fnErr))
			}
		}
	}()

	if fnErr = fn(context.WithValue(ctx, txKey{}, tx)); fnErr != nil {
		return fnErr
	}

	if err := tx.Commit().Error; err != nil {
		return checkConstraintViolation(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// conn returns the transaction bound to ctx, or the pool.
func (r *PostgresRepo) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func (r *PostgresRepo) table(name string) string {
	return r.db.NamingStrategy.TableName(name)
}

func ownerFromContext(ctx context.Context) (string, error) {
	owner, err := tenant.FromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: failed to get owner ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	return owner, nil
}

// Ping checks that the database answers.
func (r *PostgresRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("%w: failed to get SQL DB: %w", apperrors.ErrDatabase, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping failed: %w", apperrors.ErrDatabase, err)
	}
	return nil
}

// Close closes the database connection
func (r *PostgresRepo) Close(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to get underlying SQL DB for closing", zap.Error(err))
		return nil
	}

	if closeErr := sqlDB.Close(); closeErr != nil {
		logger.FromContext(ctx).Error("Failed to close database connection", zap.Error(closeErr))
		return fmt.Errorf("failed to close SQL DB: %w", closeErr)
	}

	logger.FromContext(ctx).Info("Database connection closed successfully")
	return nil
}

// checkConstraintViolation inspects database errors and maps them to standard apperrors.
func checkConstraintViolation(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", apperrors.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		// Class 23, integrity constraint violation
		case "23505": // unique_violation
			return fmt.Errorf("%w: constraint %s: %w", apperrors.ErrDuplicate, pgErr.ConstraintName, err)
		case "23503": // foreign_key_violation, the referenced parent does not exist
			return fmt.Errorf("%w: constraint %s: %w", apperrors.ErrNotFound, pgErr.ConstraintName, err)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: null value in column %s: %w", apperrors.ErrValidation, pgErr.ColumnName, err)
		case "23514": // check_violation
			return fmt.Errorf("%w: constraint %s: %w", apperrors.ErrValidation, pgErr.ConstraintName, err)

		// Class 22, data exception
		case "22001": // string_data_right_truncation
			return fmt.Errorf("%w: value too long for column %s: %w", apperrors.ErrValidation, pgErr.ColumnName, err)
		case "22P02": // invalid_text_representation
			return fmt.Errorf("%w: invalid input syntax for type %s: %w", apperrors.ErrValidation, pgErr.DataTypeName, err)

		// Class 40, transaction rollback
		case "40001", "40P01":
			return fmt.Errorf("%w: transaction rollback (%s): %w", apperrors.ErrDatabase, pgErr.Code, err)

		default:
			if strings.HasPrefix(pgErr.Code, "53") {
				return fmt.Errorf("%w: insufficient resources (%s): %w", apperrors.ErrDatabase, pgErr.Code, err)
			}
			if strings.HasPrefix(pgErr.Code, "08") {
				return fmt.Errorf("%w: connection error (%s): %w", apperrors.ErrDatabase, pgErr.Code, err)
			}
			return fmt.Errorf("%w: unhandled pgcode %s: %w", apperrors.ErrDatabase, pgErr.Code, err)
		}
	}

	return fmt.Errorf("%w: %w", apperrors.ErrDatabase, err)
}
