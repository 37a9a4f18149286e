package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/ethereum/go-ethereum/common"

	"poolstates/internal/model"
)

// Store persists records to ClickHouse over the native protocol.
type Store struct {
	conn clickhouse.Conn
}

// NewStore opens a ClickHouse connection from a DSN.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("clickhouse dsn is required")
	}

	options, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

var tableDDL = []string{
	`CREATE TABLE IF NOT EXISTS pool_tick_info (
		block_number UInt64,
		pool_address String,
		tx_hash String,
		tx_index UInt64,
		tick Int32,
		tick_spacing Int32,
		liquidity_gross UInt128,
		liquidity_net Int128,
		fee_growth_outside_0_x128 UInt256,
		fee_growth_outside_1_x128 UInt256,
		tick_cumulative_outside Int64,
		seconds_per_liquidity_outside_x128 UInt256,
		seconds_outside UInt32,
		initialized Bool
	) ENGINE = ReplacingMergeTree
	ORDER BY (block_number, pool_address, tx_hash, tick)`,

	`CREATE TABLE IF NOT EXISTS pool_slot0 (
		block_number UInt64,
		pool_address String,
		token0 String,
		token0_decimals UInt8,
		token1 String,
		token1_decimals UInt8,
		tx_hash String,
		tx_index UInt64,
		tick Int32,
		sqrt_price_x96 UInt256,
		calculated_price Float64,
		observation_index UInt16,
		observation_cardinality UInt16,
		observation_cardinality_next UInt16,
		fee_protocol UInt8,
		unlocked Bool
	) ENGINE = ReplacingMergeTree
	ORDER BY (block_number, pool_address, tx_hash)`,

	`CREATE TABLE IF NOT EXISTS pool_trades (
		block_number UInt64,
		pool_address String,
		tx_hash String,
		token_in String,
		token_in_decimals UInt8,
		token_in_amount Int256,
		token_out String,
		token_out_decimals UInt8,
		token_out_amount Int256,
		calculated_price Float64
	) ENGINE = ReplacingMergeTree
	ORDER BY (block_number, pool_address, tx_hash)`,
}

// EnsureTables creates the record tables if they do not exist. Re-inserting
// a row with the same ordering key is deduplicated by the merge engine,
// which is what makes the sink's at-least-once delivery safe.
func (s *Store) EnsureTables(ctx context.Context) error {
	for _, ddl := range tableDDL {
		if err := s.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// InsertTickInfos stores tick-info rows.
func (s *Store) InsertTickInfos(ctx context.Context, records []model.TickInfo) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO pool_tick_info (
		block_number, pool_address, tx_hash, tx_index, tick, tick_spacing,
		liquidity_gross, liquidity_net, fee_growth_outside_0_x128,
		fee_growth_outside_1_x128, tick_cumulative_outside,
		seconds_per_liquidity_outside_x128, seconds_outside, initialized
	) VALUES`)
	if err != nil {
		return fmt.Errorf("prepare tick info batch: %w", err)
	}

	for _, r := range records {
		if err := batch.Append(
			r.BlockNumber,
			hexAddress(r.PoolAddress),
			hexHash(r.TxHash),
			r.TxIndex,
			r.Tick,
			r.TickSpacing,
			r.LiquidityGross,
			r.LiquidityNet,
			r.FeeGrowthOutside0X128,
			r.FeeGrowthOutside1X128,
			r.TickCumulativeOutside,
			r.SecondsPerLiquidityOutsideX128,
			r.SecondsOutside,
			r.Initialized,
		); err != nil {
			return fmt.Errorf("append tick info: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("insert tick infos: %w", err)
	}
	return nil
}

// InsertSlot0s stores slot0 rows.
func (s *Store) InsertSlot0s(ctx context.Context, records []model.Slot0) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO pool_slot0 (
		block_number, pool_address, token0, token0_decimals, token1,
		token1_decimals, tx_hash, tx_index, tick, sqrt_price_x96,
		calculated_price, observation_index, observation_cardinality,
		observation_cardinality_next, fee_protocol, unlocked
	) VALUES`)
	if err != nil {
		return fmt.Errorf("prepare slot0 batch: %w", err)
	}

	for _, r := range records {
		if err := batch.Append(
			r.BlockNumber,
			hexAddress(r.PoolAddress),
			hexAddress(r.Token0),
			r.Token0Decimals,
			hexAddress(r.Token1),
			r.Token1Decimals,
			hexHash(r.TxHash),
			r.TxIndex,
			r.Tick,
			r.SqrtPriceX96,
			r.CalculatedPrice,
			r.ObservationIndex,
			r.ObservationCardinality,
			r.ObservationCardinalityNext,
			r.FeeProtocol,
			r.Unlocked,
		); err != nil {
			return fmt.Errorf("append slot0: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("insert slot0s: %w", err)
	}
	return nil
}

// InsertTrades stores trade rows.
func (s *Store) InsertTrades(ctx context.Context, records []model.Trade) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO pool_trades (
		block_number, pool_address, tx_hash, token_in, token_in_decimals,
		token_in_amount, token_out, token_out_decimals, token_out_amount,
		calculated_price
	) VALUES`)
	if err != nil {
		return fmt.Errorf("prepare trades batch: %w", err)
	}

	for _, r := range records {
		if err := batch.Append(
			r.BlockNumber,
			hexAddress(r.PoolAddress),
			hexHash(r.TxHash),
			hexAddress(r.TokenIn),
			r.TokenInDecimals,
			r.TokenInAmount,
			hexAddress(r.TokenOut),
			r.TokenOutDecimals,
			r.TokenOutAmount,
			r.CalculatedPrice,
		); err != nil {
			return fmt.Errorf("append trade: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("insert trades: %w", err)
	}
	return nil
}

// LoadPoolDescriptors reads the monitored pool set from the pools metadata
// table, optionally filtered to the given addresses.
func (s *Store) LoadPoolDescriptors(ctx context.Context, addresses []string) ([]model.PoolDescriptor, error) {
	query := `SELECT address, token0_address, token0_decimals,
		token1_address, token1_decimals, earliest_block FROM pools`

	var (
		rows driver.Rows
		err  error
	)
	if len(addresses) > 0 {
		lowered := make([]string, 0, len(addresses))
		for _, a := range addresses {
			lowered = append(lowered, strings.ToLower(a))
		}
		rows, err = s.conn.Query(ctx, query+` WHERE address IN (?)`, lowered)
	} else {
		rows, err = s.conn.Query(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	var descriptors []model.PoolDescriptor
	for rows.Next() {
		var desc model.PoolDescriptor
		if err := rows.Scan(
			&desc.Address,
			&desc.Token0.Address,
			&desc.Token0.Decimals,
			&desc.Token1.Address,
			&desc.Token1.Decimals,
			&desc.EarliestBlock,
		); err != nil {
			return nil, fmt.Errorf("scan pool row: %w", err)
		}
		if err := desc.Validate(); err != nil {
			return nil, err
		}
		descriptors = append(descriptors, desc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool rows: %w", err)
	}

	return descriptors, nil
}

func hexAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func hexHash(hash common.Hash) string {
	return strings.ToLower(hash.Hex())
}
