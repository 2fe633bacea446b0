package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mselser95/arena-settle/pkg/types"
)

const marketColumns = `id, source, external_market_id, COALESCE(competition_id, ''), question, status, created_at, updated_at`

func scanMarket(row rowScanner) (*types.Market, error) {
	var (
		m      types.Market
		source string
		status string
	)
	err := row.Scan(&m.ID, &source, &m.ExternalID, &m.CompetitionID, &m.Question, &status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Source = types.Source(source)
	m.Status = types.MarketStatus(status)
	return &m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// UpsertMarket fills in competition and question on an existing row but never touches its status.
func (p *PostgresStore) UpsertMarket(ctx context.Context, market *types.Market) error {
	if market.ID == "" {
		market.ID = uuid.NewString()
	}
	if market.Status == "" {
		market.Status = types.MarketStatusOpen
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO markets (id, source, external_market_id, competition_id, question, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source, external_market_id) DO UPDATE
		SET competition_id = COALESCE(EXCLUDED.competition_id, markets.competition_id),
			question = CASE WHEN EXCLUDED.question <> '' THEN EXCLUDED.question ELSE markets.question END,
			updated_at = NOW()`,
		market.ID, string(market.Source), market.ExternalID, nullString(market.CompetitionID),
		market.Question, string(market.Status))
	if err != nil {
		return fmt.Errorf("upsert market: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetMarket(ctx context.Context, key types.MarketKey) (*types.Market, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE source = $1 AND external_market_id = $2`,
		string(key.Source), key.MarketID)
	m, err := scanMarket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrMarketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get market: %w", err)
	}
	return m, nil
}

// SetMarketStatus creates the row if needed; the WHERE clause keeps settled and cancelled markets final.
func (p *PostgresStore) SetMarketStatus(ctx context.Context, key types.MarketKey, status types.MarketStatus) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO markets (id, source, external_market_id, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source, external_market_id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = NOW()
		WHERE markets.status NOT IN ('settled', 'cancelled')`,
		uuid.NewString(), string(key.Source), key.MarketID, string(status))
	if err != nil {
		return fmt.Errorf("set market status: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListOpenCompetitionMarkets(ctx context.Context) ([]types.Market, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+marketColumns+` FROM markets
		WHERE competition_id IS NOT NULL AND status IN ('open', 'closed')
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query markets: %w", err)
	}
	defer rows.Close()

	var markets []types.Market
	for rows.Next() {
		m, scanErr := scanMarket(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan market: %w", scanErr)
		}
		markets = append(markets, *m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate markets: %w", err)
	}
	return markets, nil
}

func (p *PostgresStore) GetCompetition(ctx context.Context, competitionID string) (*types.Competition, error) {
	var (
		c       types.Competition
		status  string
		endedAt sql.NullTime
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT id, status, ended_at, winner_agent_id FROM competitions WHERE id = $1`, competitionID).
		Scan(&c.ID, &status, &endedAt, &c.WinnerAgentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrCompetitionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get competition: %w", err)
	}
	c.Status = types.CompetitionStatus(status)
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	return &c, nil
}

// UpsertCompetition mirrors the competition module's view of a competition.
func (p *PostgresStore) UpsertCompetition(ctx context.Context, c *types.Competition) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO competitions (id, status, ended_at, winner_agent_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, ended_at = EXCLUDED.ended_at, winner_agent_id = EXCLUDED.winner_agent_id`,
		c.ID, string(c.Status), c.EndedAt, c.WinnerAgentID)
	if err != nil {
		return fmt.Errorf("upsert competition: %w", err)
	}
	return nil
}

func (p *PostgresStore) HasResolution(ctx context.Context, key types.MarketKey) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM market_resolutions WHERE market_id = $1 AND source = $2)`,
		key.MarketID, string(key.Source)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check resolution: %w", err)
	}
	return exists, nil
}

// InsertResolution relies on the (market_id, source) unique constraint as the idempotence barrier.
func (p *PostgresStore) InsertResolution(ctx context.Context, r *types.MarketResolution) (bool, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	res, err := p.db.ExecContext(ctx, `
		INSERT INTO market_resolutions (id, market_id, source, winning_outcome, resolved_at, manual)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (market_id, source) DO NOTHING`,
		r.ID, r.MarketID, string(r.Source), r.WinningOutcome, r.ResolvedAt, r.Manual)
	if err != nil {
		return false, fmt.Errorf("insert resolution: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (p *PostgresStore) GetResolution(ctx context.Context, key types.MarketKey) (*types.MarketResolution, error) {
	var (
		r      types.MarketResolution
		source string
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, market_id, source, winning_outcome, resolved_at, manual
		FROM market_resolutions WHERE market_id = $1 AND source = $2`,
		key.MarketID, string(key.Source)).
		Scan(&r.ID, &r.MarketID, &source, &r.WinningOutcome, &r.ResolvedAt, &r.Manual)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrResolutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get resolution: %w", err)
	}
	r.Source = types.Source(source)
	return &r, nil
}

// ClaimSettlement is a single upsert so concurrent claimers all read back the
// row that won. The no-op update makes RETURNING yield the existing row on conflict.
func (p *PostgresStore) ClaimSettlement(ctx context.Context, claim *types.SettlementClaim) (*types.SettlementClaim, error) {
	held := types.SettlementClaim{MarketID: claim.MarketID, Source: claim.Source}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO market_settlement_claims (market_id, source, winning_outcome, cancel, manual, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (market_id, source) DO UPDATE SET market_id = EXCLUDED.market_id
		RETURNING winning_outcome, cancel, manual, claimed_at`,
		claim.MarketID, string(claim.Source), claim.WinningOutcome, claim.Cancel, claim.Manual, claim.ClaimedAt).
		Scan(&held.WinningOutcome, &held.Cancel, &held.Manual, &held.ClaimedAt)
	if err != nil {
		return nil, fmt.Errorf("claim settlement: %w", err)
	}
	return &held, nil
}
