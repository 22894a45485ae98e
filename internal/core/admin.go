package core

import (
	"PoolCore/internal/registry"
)

// Governance passthroughs. The sub-registries check authorization
// themselves; the engine only provides the serialization point so admin
// calls never interleave with settlement.

// AddAsset registers a new asset.
func (e *Engine) AddAsset(actor string, id registry.AssetID, symbol string, decimals uint8, isStable bool, token, synthetic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.registry.AddAsset(actor, id, symbol, decimals, isStable, token, synthetic); err != nil {
		return err
	}
	e.log.Info().Uint8("asset_id", uint8(id)).Str("symbol", symbol).Msg("asset added")
	return nil
}

// SetAssetParams replaces an asset's risk and fee parameters.
func (e *Engine) SetAssetParams(actor string, id registry.AssetID, params registry.AssetParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.SetAssetParams(actor, id, params)
}

// SetAssetFlags replaces an asset's behavior flags.
func (e *Engine) SetAssetFlags(actor string, id registry.AssetID, flags registry.AssetFlags) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.SetAssetFlags(actor, id, flags)
}

// SetFundingParams replaces an asset's funding rate parameters.
func (e *Engine) SetFundingParams(actor string, id registry.AssetID, params registry.FundingParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.SetFundingParams(actor, id, params)
}

// AddBroker whitelists a broker address.
func (e *Engine) AddBroker(actor, brokerAddr string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.brokers.Add(actor, brokerAddr); err != nil {
		return err
	}
	e.log.Info().Str("broker", brokerAddr).Msg("broker added")
	return nil
}

// RemoveBroker removes a broker from the whitelist.
func (e *Engine) RemoveBroker(actor, brokerAddr string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.brokers.Remove(actor, brokerAddr); err != nil {
		return err
	}
	e.log.Info().Str("broker", brokerAddr).Msg("broker removed")
	return nil
}

// Brokers lists the broker whitelist.
func (e *Engine) Brokers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.brokers.List()
}
