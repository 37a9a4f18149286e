package postgres

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolstates/internal/model"
)

// Store provides Postgres persistence for extracted records.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS pool_tick_info (
		block_number BIGINT NOT NULL,
		pool_address TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		tx_index BIGINT NOT NULL,
		tick INTEGER NOT NULL,
		tick_spacing INTEGER NOT NULL,
		liquidity_gross NUMERIC NOT NULL,
		liquidity_net NUMERIC NOT NULL,
		fee_growth_outside_0_x128 NUMERIC NOT NULL,
		fee_growth_outside_1_x128 NUMERIC NOT NULL,
		tick_cumulative_outside BIGINT NOT NULL,
		seconds_per_liquidity_outside_x128 NUMERIC NOT NULL,
		seconds_outside BIGINT NOT NULL,
		initialized BOOLEAN NOT NULL,
		PRIMARY KEY (block_number, pool_address, tx_hash, tick)
	)`,
	`CREATE TABLE IF NOT EXISTS pool_slot0 (
		block_number BIGINT NOT NULL,
		pool_address TEXT NOT NULL,
		token0 TEXT NOT NULL,
		token0_decimals SMALLINT NOT NULL,
		token1 TEXT NOT NULL,
		token1_decimals SMALLINT NOT NULL,
		tx_hash TEXT NOT NULL,
		tx_index BIGINT NOT NULL,
		tick INTEGER NOT NULL,
		sqrt_price_x96 NUMERIC NOT NULL,
		calculated_price DOUBLE PRECISION NOT NULL,
		observation_index INTEGER NOT NULL,
		observation_cardinality INTEGER NOT NULL,
		observation_cardinality_next INTEGER NOT NULL,
		fee_protocol SMALLINT NOT NULL,
		unlocked BOOLEAN NOT NULL,
		PRIMARY KEY (block_number, pool_address, tx_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS pool_trades (
		block_number BIGINT NOT NULL,
		pool_address TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		token_in TEXT NOT NULL,
		token_in_decimals SMALLINT NOT NULL,
		token_in_amount NUMERIC NOT NULL,
		token_out TEXT NOT NULL,
		token_out_decimals SMALLINT NOT NULL,
		token_out_amount NUMERIC NOT NULL,
		calculated_price DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (block_number, pool_address, tx_hash)
	)`,
}

// EnsureSchema creates the record tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// InsertTickInfos upserts tick-info rows keyed by block, pool, tx and tick.
func (s *Store) InsertTickInfos(ctx context.Context, records []model.TickInfo) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO pool_tick_info (
				block_number, pool_address, tx_hash, tx_index, tick, tick_spacing,
				liquidity_gross, liquidity_net, fee_growth_outside_0_x128,
				fee_growth_outside_1_x128, tick_cumulative_outside,
				seconds_per_liquidity_outside_x128, seconds_outside, initialized
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (block_number, pool_address, tx_hash, tick)
			DO UPDATE SET
				tx_index = EXCLUDED.tx_index,
				tick_spacing = EXCLUDED.tick_spacing,
				liquidity_gross = EXCLUDED.liquidity_gross,
				liquidity_net = EXCLUDED.liquidity_net,
				fee_growth_outside_0_x128 = EXCLUDED.fee_growth_outside_0_x128,
				fee_growth_outside_1_x128 = EXCLUDED.fee_growth_outside_1_x128,
				tick_cumulative_outside = EXCLUDED.tick_cumulative_outside,
				seconds_per_liquidity_outside_x128 = EXCLUDED.seconds_per_liquidity_outside_x128,
				seconds_outside = EXCLUDED.seconds_outside,
				initialized = EXCLUDED.initialized
		`,
			int64(r.BlockNumber),
			hexAddress(r.PoolAddress),
			hexHash(r.TxHash),
			int64(r.TxIndex),
			r.Tick,
			r.TickSpacing,
			numeric(r.LiquidityGross),
			numeric(r.LiquidityNet),
			numeric(r.FeeGrowthOutside0X128),
			numeric(r.FeeGrowthOutside1X128),
			r.TickCumulativeOutside,
			numeric(r.SecondsPerLiquidityOutsideX128),
			int64(r.SecondsOutside),
			r.Initialized,
		)
	}
	return s.sendBatch(ctx, batch, len(records))
}

// InsertSlot0s upserts slot0 rows keyed by block, pool and tx.
func (s *Store) InsertSlot0s(ctx context.Context, records []model.Slot0) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO pool_slot0 (
				block_number, pool_address, token0, token0_decimals, token1,
				token1_decimals, tx_hash, tx_index, tick, sqrt_price_x96,
				calculated_price, observation_index, observation_cardinality,
				observation_cardinality_next, fee_protocol, unlocked
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (block_number, pool_address, tx_hash)
			DO UPDATE SET
				tx_index = EXCLUDED.tx_index,
				tick = EXCLUDED.tick,
				sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
				calculated_price = EXCLUDED.calculated_price,
				observation_index = EXCLUDED.observation_index,
				observation_cardinality = EXCLUDED.observation_cardinality,
				observation_cardinality_next = EXCLUDED.observation_cardinality_next,
				fee_protocol = EXCLUDED.fee_protocol,
				unlocked = EXCLUDED.unlocked
		`,
			int64(r.BlockNumber),
			hexAddress(r.PoolAddress),
			hexAddress(r.Token0),
			int16(r.Token0Decimals),
			hexAddress(r.Token1),
			int16(r.Token1Decimals),
			hexHash(r.TxHash),
			int64(r.TxIndex),
			r.Tick,
			numeric(r.SqrtPriceX96),
			r.CalculatedPrice,
			int32(r.ObservationIndex),
			int32(r.ObservationCardinality),
			int32(r.ObservationCardinalityNext),
			int16(r.FeeProtocol),
			r.Unlocked,
		)
	}
	return s.sendBatch(ctx, batch, len(records))
}

// InsertTrades upserts trade rows keyed by block, pool and tx.
func (s *Store) InsertTrades(ctx context.Context, records []model.Trade) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO pool_trades (
				block_number, pool_address, tx_hash, token_in, token_in_decimals,
				token_in_amount, token_out, token_out_decimals, token_out_amount,
				calculated_price
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (block_number, pool_address, tx_hash)
			DO UPDATE SET
				token_in = EXCLUDED.token_in,
				token_in_decimals = EXCLUDED.token_in_decimals,
				token_in_amount = EXCLUDED.token_in_amount,
				token_out = EXCLUDED.token_out,
				token_out_decimals = EXCLUDED.token_out_decimals,
				token_out_amount = EXCLUDED.token_out_amount,
				calculated_price = EXCLUDED.calculated_price
		`,
			int64(r.BlockNumber),
			hexAddress(r.PoolAddress),
			hexHash(r.TxHash),
			hexAddress(r.TokenIn),
			int16(r.TokenInDecimals),
			numeric(r.TokenInAmount),
			hexAddress(r.TokenOut),
			int16(r.TokenOutDecimals),
			numeric(r.TokenOutAmount),
			r.CalculatedPrice,
		)
	}
	return s.sendBatch(ctx, batch, len(records))
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// numeric renders a big integer for a NUMERIC column. pgx handles the string
// form for arbitrary precision values.
func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func hexAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func hexHash(hash common.Hash) string {
	return strings.ToLower(hash.Hex())
}
