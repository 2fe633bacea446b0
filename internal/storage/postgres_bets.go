package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mselser95/arena-settle/pkg/types"
)

const betColumns = `id, wallet_id, user_id, source, market_id, outcome, amount_cents, status, payout_cents, created_at, resolved_at`

func scanBet(row rowScanner) (*types.Bet, error) {
	var (
		b          types.Bet
		source     string
		status     string
		resolvedAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.WalletID, &b.UserID, &source, &b.MarketID, &b.Outcome,
		&b.AmountCents, &status, &b.PayoutCents, &b.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	b.Source = types.Source(source)
	b.Status = types.BetStatus(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		b.ResolvedAt = &t
	}
	return &b, nil
}

func (p *PostgresStore) GetBet(ctx context.Context, betID string) (*types.Bet, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id = $1`, betID)
	bet, err := scanBet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrBetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bet: %w", err)
	}
	return bet, nil
}

func (p *PostgresStore) ListUnresolvedBets(ctx context.Context) ([]types.Bet, error) {
	return p.queryBets(ctx,
		`SELECT `+betColumns+` FROM bets WHERE status = 'filled' ORDER BY created_at`)
}

func (p *PostgresStore) ListUnresolvedBetsForMarket(ctx context.Context, key types.MarketKey) ([]types.Bet, error) {
	return p.queryBets(ctx,
		`SELECT `+betColumns+` FROM bets WHERE status = 'filled' AND source = $1 AND market_id = $2 ORDER BY created_at`,
		string(key.Source), key.MarketID)
}

func (p *PostgresStore) queryBets(ctx context.Context, query string, args ...any) ([]types.Bet, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bets: %w", err)
	}
	defer rows.Close()

	var bets []types.Bet
	for rows.Next() {
		bet, scanErr := scanBet(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan bet: %w", scanErr)
		}
		bets = append(bets, *bet)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bets: %w", err)
	}
	return bets, nil
}

const paperBetColumns = `id, user_id, source, market_id, outcome, amount, shares, resolved, resolution, payout, profit, created_at, resolved_at`

func (p *PostgresStore) InsertPaperBet(ctx context.Context, bet *types.PaperBet) error {
	if bet.ID == "" {
		bet.ID = uuid.NewString()
	}

	err := p.db.QueryRowContext(ctx, `
		INSERT INTO paper_bets (id, user_id, source, market_id, outcome, amount, shares)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		bet.ID, bet.UserID, string(bet.Source), bet.MarketID, bet.Outcome, bet.Amount, bet.Shares).
		Scan(&bet.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert paper bet: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListUnresolvedPaperBets(ctx context.Context) ([]types.PaperBet, error) {
	return p.queryPaperBets(ctx,
		`SELECT `+paperBetColumns+` FROM paper_bets WHERE resolved = FALSE ORDER BY created_at`)
}

func (p *PostgresStore) ListUnresolvedPaperBetsForMarket(ctx context.Context, key types.MarketKey) ([]types.PaperBet, error) {
	return p.queryPaperBets(ctx,
		`SELECT `+paperBetColumns+` FROM paper_bets WHERE resolved = FALSE AND source = $1 AND market_id = $2 ORDER BY created_at`,
		string(key.Source), key.MarketID)
}

func (p *PostgresStore) queryPaperBets(ctx context.Context, query string, args ...any) ([]types.PaperBet, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query paper bets: %w", err)
	}
	defer rows.Close()

	var bets []types.PaperBet
	for rows.Next() {
		var (
			b          types.PaperBet
			source     string
			resolvedAt sql.NullTime
		)
		err = rows.Scan(&b.ID, &b.UserID, &source, &b.MarketID, &b.Outcome, &b.Amount, &b.Shares,
			&b.Resolved, &b.Resolution, &b.Payout, &b.Profit, &b.CreatedAt, &resolvedAt)
		if err != nil {
			return nil, fmt.Errorf("scan paper bet: %w", err)
		}
		b.Source = types.Source(source)
		if resolvedAt.Valid {
			t := resolvedAt.Time
			b.ResolvedAt = &t
		}
		bets = append(bets, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paper bets: %w", err)
	}
	return bets, nil
}

// ResolvePaperBet is conditional on resolved = FALSE so a duplicate settlement is a no-op.
func (p *PostgresStore) ResolvePaperBet(ctx context.Context, bet *types.PaperBet) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE paper_bets
		SET resolved = TRUE, resolution = $1, payout = $2, profit = $3, resolved_at = $4
		WHERE id = $5 AND resolved = FALSE`,
		bet.Resolution, bet.Payout, bet.Profit, bet.ResolvedAt, bet.ID)
	if err != nil {
		return false, fmt.Errorf("resolve paper bet: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
