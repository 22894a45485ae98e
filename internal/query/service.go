// Package query serves read-only views: live pool and asset state
// straight from the engine, and historical settlement records from
// Postgres with cursor pagination.
package query

import (
	"context"
	"database/sql"
	"fmt"

	"PoolCore/internal/core"
	fpmath "PoolCore/internal/math"
	"PoolCore/internal/projection"
	"PoolCore/internal/registry"
)

const defaultHistoryLimit = 100

// Service answers API queries. Live views come from the engine under its
// own mutex; history comes from the settlement log.
type Service struct {
	engine *core.Engine
	db     *sql.DB
}

func NewService(engine *core.Engine, db *sql.DB) *Service {
	return &Service{engine: engine, db: db}
}

// GetAssetInfo returns the composite view of one asset.
func (s *Service) GetAssetInfo(id registry.AssetID) (AssetInfoResponse, error) {
	info, err := s.engine.GetAssetInfo(id)
	if err != nil {
		return AssetInfoResponse{}, err
	}
	return assetInfoResponse(info), nil
}

// ListAssets returns the composite view of every registered asset.
func (s *Service) ListAssets() []AssetInfoResponse {
	infos := s.engine.ListAssets()
	result := make([]AssetInfoResponse, 0, len(infos))
	for _, info := range infos {
		result = append(result, assetInfoResponse(info))
	}
	return result
}

// GetPoolState returns pool-level scalars and the broker whitelist.
func (s *Service) GetPoolState() PoolStateResponse {
	st := s.engine.GetPoolState()
	return PoolStateResponse{
		ShareSupply:     st.ShareSupply,
		PendingOrders:   st.PendingOrders,
		NextOrderID:     st.NextOrderID,
		LockPeriodSec:   int64(st.LockPeriod.Seconds()),
		MaxTimeoutSec:   int64(st.MaxOrderTimeout.Seconds()),
		GasCompensation: st.GasCompensation,
		EmergencyNavMin: st.EmergencyNavMin,
		EmergencyNavMax: st.EmergencyNavMax,
		RecordSequence:  st.RecordSequence,
		Brokers:         s.engine.Brokers(),
	}
}

// ListPendingOrders returns all pending orders sorted by id.
func (s *Service) ListPendingOrders() []OrderResponse {
	pending := s.engine.PendingOrders()
	result := make([]OrderResponse, 0, len(pending))
	for _, o := range pending {
		result = append(result, OrderResponse{
			OrderID:   o.OrderID,
			Account:   o.Account,
			AssetID:   uint8(o.AssetID),
			Amount:    o.Amount,
			Direction: o.Direction.String(),
			MinOut:    o.MinOut,
			PlacedAt:  o.PlacedAt.Unix(),
		})
	}
	return result
}

// GetAccountShares returns an account's projected share holdings.
func (s *Service) GetAccountShares(ctx context.Context, account string) (projection.AccountShares, error) {
	return projection.GetAccountShares(ctx, s.db, account)
}

// RebuildHoldings recomputes the share-holdings projection from the
// settlement log.
func (s *Service) RebuildHoldings(ctx context.Context) error {
	return projection.Rebuild(ctx, s.db)
}

// GetSettlementHistory reads the settlement log newest-first with cursor
// pagination.
func (s *Service) GetSettlementHistory(ctx context.Context, filter HistoryFilter) ([]SettlementRecordResponse, error) {
	query := `
		SELECT sequence, record_type, asset_id, order_id, account, payload, recorded_at
		FROM settlement.records
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1

	if filter.Account != nil {
		query += fmt.Sprintf(" AND account = $%d", argIdx)
		args = append(args, *filter.Account)
		argIdx++
	}
	if filter.AssetID != nil {
		query += fmt.Sprintf(" AND asset_id = $%d", argIdx)
		args = append(args, *filter.AssetID)
		argIdx++
	}
	if filter.RecordType != nil {
		query += fmt.Sprintf(" AND record_type = $%d", argIdx)
		args = append(args, *filter.RecordType)
		argIdx++
	}
	if filter.AfterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *filter.AfterSequence)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetOrderHistory returns every settlement record touching one order,
// oldest first: placement, then fill or cancellation.
func (s *Service) GetOrderHistory(ctx context.Context, orderID uint64) ([]SettlementRecordResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, record_type, asset_id, order_id, account, payload, recorded_at
		FROM settlement.records
		WHERE order_id = $1
		ORDER BY sequence ASC
	`, int64(orderID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]SettlementRecordResponse, error) {
	var records []SettlementRecordResponse
	for rows.Next() {
		var r SettlementRecordResponse
		var recordedAt sql.NullTime
		if err := rows.Scan(
			&r.Sequence, &r.RecordType, &r.AssetID, &r.OrderID,
			&r.Account, &r.Payload, &recordedAt,
		); err != nil {
			return nil, err
		}
		if recordedAt.Valid {
			r.RecordedAt = recordedAt.Time.Unix()
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func assetInfoResponse(info core.AssetInfo) AssetInfoResponse {
	return AssetInfoResponse{
		AssetID:           uint8(info.Asset.ID),
		Symbol:            info.Asset.Symbol,
		Decimals:          info.Asset.Decimals,
		IsStable:          info.Asset.IsStable,
		Token:             info.Asset.Token,
		Synthetic:         info.Asset.Synthetic,
		Tradable:          info.Asset.Flags.Tradable,
		Openable:          info.Asset.Flags.Openable,
		Enabled:           info.Asset.Flags.Enabled,
		Strict:            info.Asset.Flags.Strict,
		SpotLiquidity:     info.Entry.SpotLiquidity,
		Credit:            info.Entry.Credit,
		CollectedFee:      info.Entry.CollectedFee,
		Utilization:       fpmath.Utilization(info.Entry.SpotLiquidity, info.Entry.Credit),
		FundingIndex:      info.Funding.CumulativeIndex,
		FundingLastUpdate: info.Funding.LastUpdate,
		SpotWeight:        info.Asset.Params.SpotWeight,
		HalfSpread:        info.Asset.Params.HalfSpread,
	}
}
