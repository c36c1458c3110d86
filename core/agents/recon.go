package agents

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sort"

	"secops-orchestrator/core/models"
)

// AssetInventory is a source of known hosts, such as a cloud account
type AssetInventory interface {
	Name() string
	FindAssets(ctx context.Context, first, last netip.Addr) ([]models.Asset, error)
}

// ReconAgent maps an address range onto the assets the inventories know about
type ReconAgent struct {
	inventories []AssetInventory
	logger      *slog.Logger
}

// NewReconAgent creates a new recon agent
func NewReconAgent(logger *slog.Logger, inventories ...AssetInventory) *ReconAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconAgent{
		inventories: inventories,
		logger:      logger.With("component", "recon_agent"),
	}
}

// Execute implements registry.Handler
func (a *ReconAgent) Execute(ctx context.Context, params models.Parameters) (models.JobResult, error) {
	p, err := paramsAs[models.ReconParams](params)
	if err != nil {
		return nil, err
	}
	first, last, err := models.ParseIPRange(p.IPRange)
	if err != nil {
		return nil, fmt.Errorf("parse ip range: %w", err)
	}

	a.logger.Info("network scan initiated", "ip_range", p.IPRange, "inventories", len(a.inventories))

	assets := make([]models.Asset, 0)
	seen := make(map[string]bool)
	for _, inv := range a.inventories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := inv.FindAssets(ctx, first, last)
		if err != nil {
			return nil, fmt.Errorf("%s inventory: %w", inv.Name(), err)
		}
		for _, asset := range found {
			key := string(asset.Provider) + "/" + asset.ID
			if seen[key] || !assetInRange(asset, first, last) {
				continue
			}
			seen[key] = true
			assets = append(assets, asset)
		}
		a.logger.Debug("inventory scanned", "inventory", inv.Name(), "found", len(found))
	}

	sort.SliceStable(assets, func(i, j int) bool {
		return assetAddr(assets[i]).Less(assetAddr(assets[j]))
	})

	return models.JobResult{
		"status":    "scan_completed",
		"ipRange":   p.IPRange,
		"hostCount": len(assets),
		"assets":    assets,
		"message":   fmt.Sprintf("Network scan of %s completed: %d hosts found.", p.IPRange, len(assets)),
	}, nil
}

// assetAddr returns the first parseable address of an asset
func assetAddr(asset models.Asset) netip.Addr {
	for _, s := range []string{asset.PrivateIP, asset.PublicIP} {
		if addr, err := netip.ParseAddr(s); err == nil {
			return addr
		}
	}
	return netip.Addr{}
}

func assetInRange(asset models.Asset, first, last netip.Addr) bool {
	for _, s := range []string{asset.PrivateIP, asset.PublicIP} {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			continue
		}
		if models.AddrInRange(addr, first, last) {
			return true
		}
	}
	return false
}

// StaticInventory serves a fixed list of on-premises hosts from configuration
type StaticInventory struct {
	assets []models.Asset
}

// NewStaticInventory creates an inventory over a fixed asset list
func NewStaticInventory(assets []models.Asset) *StaticInventory {
	return &StaticInventory{assets: assets}
}

// Name implements AssetInventory
func (s *StaticInventory) Name() string { return "static" }

// FindAssets implements AssetInventory
func (s *StaticInventory) FindAssets(_ context.Context, first, last netip.Addr) ([]models.Asset, error) {
	var found []models.Asset
	for _, asset := range s.assets {
		if assetInRange(asset, first, last) {
			found = append(found, asset)
		}
	}
	return found, nil
}
