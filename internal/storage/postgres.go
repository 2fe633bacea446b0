package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/mselser95/arena-settle/pkg/types"
	"go.uber.org/zap"
)

// PostgresStore implements Store using PostgreSQL. Wallet rows are the unit of
// mutual exclusion and are locked with SELECT ... FOR UPDATE inside each mutation.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// DSN returns the lib/pq connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// NewPostgresStore opens and pings the database.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig) (*PostgresStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	store, err := OpenPostgresStore(ctx, cfg.DSN(), cfg.Logger)
	if err != nil {
		return nil, err
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return store, nil
}

// OpenPostgresStore opens and pings a lib/pq connection string.
func OpenPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgresStoreFromDB(db, logger), nil
}

// NewPostgresStoreFromDB wraps an existing handle. Tests pass a sqlmock DB.
func NewPostgresStoreFromDB(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying handle for migrations.
func (p *PostgresStore) DB() *sql.DB {
	return p.db
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}

// withTx runs fn in a transaction, rolling back on error.
func (p *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				p.logger.Error("transaction-rollback-failed", zap.Error(rbErr))
			}
		}
	}()

	err = fn(tx)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const walletColumns = `id, user_id, balance_cents, pending_cents, created_at, updated_at`

func scanWallet(row rowScanner) (*types.Wallet, error) {
	var w types.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.BalanceCents, &w.PendingCents, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	return &w, nil
}

// GetOrCreateWallet inserts with ON CONFLICT DO NOTHING so concurrent first access resolves to one row.
func (p *PostgresStore) GetOrCreateWallet(ctx context.Context, userID string) (*types.Wallet, error) {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO wallets (id, user_id) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		uuid.NewString(), userID)
	if err != nil {
		return nil, fmt.Errorf("insert wallet: %w", err)
	}

	return p.GetWalletByUser(ctx, userID)
}

func (p *PostgresStore) GetWallet(ctx context.Context, walletID string) (*types.Wallet, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID)
	return scanWallet(row)
}

func (p *PostgresStore) GetWalletByUser(ctx context.Context, userID string) (*types.Wallet, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	return scanWallet(row)
}

func lockWallet(ctx context.Context, tx *sql.Tx, walletID string) (*types.Wallet, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, walletID)
	return scanWallet(row)
}

// insertTransaction reports false when (provider, idempotency_key) already exists.
func insertTransaction(ctx context.Context, tx *sql.Tx, entry *types.Transaction) (bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = types.TxStatusCompleted
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (
			id, wallet_id, type, amount_cents, provider, provider_ref, idempotency_key, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider, idempotency_key) DO NOTHING`,
		entry.ID, entry.WalletID, string(entry.Type), entry.AmountCents,
		entry.Provider, entry.ProviderRef, entry.IdempotencyKey, string(entry.Status))
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func updateWallet(ctx context.Context, tx *sql.Tx, w *types.Wallet, balanceDelta, pendingDelta int64) error {
	row := tx.QueryRowContext(ctx, `
		UPDATE wallets
		SET balance_cents = balance_cents + $1, pending_cents = pending_cents + $2, updated_at = NOW()
		WHERE id = $3
		RETURNING balance_cents, pending_cents, updated_at`,
		balanceDelta, pendingDelta, w.ID)

	err := row.Scan(&w.BalanceCents, &w.PendingCents, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	return nil
}

// ApplyTransaction locks the wallet, records the entry and moves the balance in one transaction.
func (p *PostgresStore) ApplyTransaction(ctx context.Context, entry *types.Transaction) (wallet *types.Wallet, err error) {
	var delta int64
	switch entry.Type {
	case types.TxDeposit:
		delta = entry.AmountCents
	case types.TxWithdrawal:
		delta = -entry.AmountCents
	default:
		return nil, errUnsupportedType(entry.Type)
	}

	err = p.withTx(ctx, func(tx *sql.Tx) error {
		w, lockErr := lockWallet(ctx, tx, entry.WalletID)
		if lockErr != nil {
			return lockErr
		}

		inserted, insErr := insertTransaction(ctx, tx, entry)
		if insErr != nil {
			return insErr
		}
		if !inserted {
			return types.ErrDuplicateIdempotencyKey
		}

		if w.BalanceCents+delta < w.PendingCents {
			return types.ErrInsufficientFunds
		}

		if updErr := updateWallet(ctx, tx, w, delta, 0); updErr != nil {
			return updErr
		}
		wallet = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	return wallet, nil
}

// LockFunds moves amount from available to pending.
func (p *PostgresStore) LockFunds(ctx context.Context, walletID string, amountCents int64) (wallet *types.Wallet, err error) {
	err = p.withTx(ctx, func(tx *sql.Tx) error {
		w, lockErr := lockWallet(ctx, tx, walletID)
		if lockErr != nil {
			return lockErr
		}
		if amountCents > w.AvailableCents() {
			return types.ErrInsufficientAvailableFunds
		}
		if updErr := updateWallet(ctx, tx, w, 0, amountCents); updErr != nil {
			return updErr
		}
		wallet = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	return wallet, nil
}

// PlaceBet locks the stake, inserts the bet and records a bet-lock transaction.
func (p *PostgresStore) PlaceBet(ctx context.Context, bet *types.Bet) (wallet *types.Wallet, err error) {
	if bet.ID == "" {
		bet.ID = uuid.NewString()
	}
	bet.Status = types.BetFilled

	err = p.withTx(ctx, func(tx *sql.Tx) error {
		w, lockErr := lockWallet(ctx, tx, bet.WalletID)
		if lockErr != nil {
			return lockErr
		}
		if bet.AmountCents > w.AvailableCents() {
			return types.ErrInsufficientAvailableFunds
		}
		if updErr := updateWallet(ctx, tx, w, 0, bet.AmountCents); updErr != nil {
			return updErr
		}

		_, execErr := tx.ExecContext(ctx, `
			INSERT INTO bets (id, wallet_id, user_id, source, market_id, outcome, amount_cents, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			bet.ID, bet.WalletID, w.UserID, string(bet.Source), bet.MarketID, bet.Outcome,
			bet.AmountCents, string(bet.Status))
		if execErr != nil {
			return fmt.Errorf("insert bet: %w", execErr)
		}
		bet.UserID = w.UserID

		inserted, insErr := insertTransaction(ctx, tx, &types.Transaction{
			WalletID:       w.ID,
			Type:           types.TxBetLock,
			AmountCents:    bet.AmountCents,
			Provider:       types.ProviderLedger,
			ProviderRef:    bet.ID,
			IdempotencyKey: betLockKey(bet.ID),
		})
		if insErr != nil {
			return insErr
		}
		if !inserted {
			return types.ErrDuplicateIdempotencyKey
		}

		wallet = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	return wallet, nil
}

// lockFilledBet returns the bet's wallet and stake, or ok=false if the bet is no longer filled.
func lockFilledBet(ctx context.Context, tx *sql.Tx, betID string) (walletID string, stake int64, ok bool, err error) {
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT wallet_id, amount_cents, status FROM bets WHERE id = $1 FOR UPDATE`, betID).
		Scan(&walletID, &stake, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, false, types.ErrBetNotFound
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("lock bet: %w", err)
	}
	return walletID, stake, types.BetStatus(status) == types.BetFilled, nil
}

// SettleBet releases the stake from pending and credits payout. Lock order is bet then wallet.
func (p *PostgresStore) SettleBet(ctx context.Context, betID string, payoutCents int64) (settled bool, err error) {
	err = p.withTx(ctx, func(tx *sql.Tx) error {
		walletID, stake, filled, lockErr := lockFilledBet(ctx, tx, betID)
		if lockErr != nil {
			return lockErr
		}
		if !filled {
			return nil
		}

		inserted, insErr := insertTransaction(ctx, tx, &types.Transaction{
			WalletID:       walletID,
			Type:           types.TxBetSettle,
			AmountCents:    payoutCents,
			Provider:       types.ProviderSettlement,
			ProviderRef:    betID,
			IdempotencyKey: betSettleKey(betID),
		})
		if insErr != nil {
			return insErr
		}
		if !inserted {
			return nil
		}

		w := &types.Wallet{ID: walletID}
		if updErr := updateWallet(ctx, tx, w, payoutCents, -stake); updErr != nil {
			return updErr
		}

		_, execErr := tx.ExecContext(ctx, `
			UPDATE bets SET status = $1, payout_cents = $2, resolved_at = NOW() WHERE id = $3`,
			string(types.BetResolved), payoutCents, betID)
		if execErr != nil {
			return fmt.Errorf("update bet: %w", execErr)
		}

		settled = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return settled, nil
}

// ReleaseBet cancels a filled bet and returns its stake to available.
func (p *PostgresStore) ReleaseBet(ctx context.Context, betID string) (released bool, err error) {
	err = p.withTx(ctx, func(tx *sql.Tx) error {
		walletID, stake, filled, lockErr := lockFilledBet(ctx, tx, betID)
		if lockErr != nil {
			return lockErr
		}
		if !filled {
			return nil
		}

		inserted, insErr := insertTransaction(ctx, tx, &types.Transaction{
			WalletID:       walletID,
			Type:           types.TxBetSettle,
			AmountCents:    0,
			Provider:       types.ProviderSettlement,
			ProviderRef:    betID,
			IdempotencyKey: betCancelKey(betID),
			Status:         types.TxStatusCancelled,
		})
		if insErr != nil {
			return insErr
		}
		if !inserted {
			return nil
		}

		w := &types.Wallet{ID: walletID}
		if updErr := updateWallet(ctx, tx, w, 0, -stake); updErr != nil {
			return updErr
		}

		_, execErr := tx.ExecContext(ctx, `
			UPDATE bets SET status = $1, payout_cents = 0, resolved_at = NOW() WHERE id = $2`,
			string(types.BetCancelled), betID)
		if execErr != nil {
			return fmt.Errorf("update bet: %w", execErr)
		}

		released = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return released, nil
}
