/*
Package factory provides JSON to Go rate-table conversion.

PURPOSE:
  Converts a JSON rate-table file into the loyalty tier table and the ad
  package table. This lets operations change thresholds, benefits, fees
  and rates without a release. Tables only affect what is created after
  they are loaded: ad partnerships keep the package they were created with.

JSON SCHEMA:
  {
    "loyalty_tiers": [
      {"tier": "bronze", "min_lifetime_points": 0, "commission_bonus_percent": "0"},
      {"tier": "silver", "min_lifetime_points": 5000, "commission_bonus_percent": "1",
       "priority_support": true}
    ],
    "ad_packages": [
      {"tier": "bronze", "monthly_fee": "99", "commission_rate": "0.15", "bonus_points": 500}
    ],
    "ad_period_days": 30
  }

  Every section is optional; omitted sections keep the built-in defaults.
  A loyalty_tiers section must list all four tiers with strictly increasing
  thresholds, bronze at 0.

USAGE:
  tables, err := factory.LoadRateTables("rates.json")
  points.Tiers = tables.Loyalty
  ads.Packages = tables.AdPackages

  ToJSON renders tables back into the same schema; the admin API serves it
  so operators can start a file from the tables in effect.
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/adpartner"
	"github.com/warp/earnings-engine/rewards"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type RateTablesJSON struct {
	LoyaltyTiers []LoyaltyTierJSON `json:"loyalty_tiers,omitempty"`
	AdPackages   []AdPackageJSON   `json:"ad_packages,omitempty"`
	AdPeriodDays int               `json:"ad_period_days,omitempty"`
}

type LoyaltyTierJSON struct {
	Tier                   string `json:"tier"`
	MinLifetimePoints      int64  `json:"min_lifetime_points"`
	CommissionBonusPercent string `json:"commission_bonus_percent,omitempty"`
	PrioritySupport        bool   `json:"priority_support,omitempty"`
	FeaturedListing        bool   `json:"featured_listing,omitempty"`
	ExclusiveProducts      bool   `json:"exclusive_products,omitempty"`
}

type AdPackageJSON struct {
	Tier           string `json:"tier"`
	MonthlyFee     string `json:"monthly_fee"`
	CommissionRate string `json:"commission_rate"`
	BonusPoints    int64  `json:"bonus_points"`
}

// RateTables is the parsed, validated result.
type RateTables struct {
	Loyalty      rewards.TierTable
	AdPackages   adpartner.PackageTable
	AdPeriodDays int
}

// Defaults returns the built-in tables.
func Defaults() RateTables {
	return RateTables{
		Loyalty:      rewards.DefaultTierTable(),
		AdPackages:   adpartner.DefaultPackages(),
		AdPeriodDays: adpartner.DefaultPeriodDays,
	}
}

// =============================================================================
// PARSING
// =============================================================================

// LoadRateTables reads and parses a rate-table file.
func LoadRateTables(path string) (RateTables, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return RateTables{}, fmt.Errorf("failed to read rate tables: %w", err)
	}
	return ParseRateTables(string(b))
}

// ParseRateTables parses a JSON document over the built-in defaults.
func ParseRateTables(jsonStr string) (RateTables, error) {
	var rj RateTablesJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return RateTables{}, fmt.Errorf("failed to parse rate tables JSON: %w", err)
	}

	tables := Defaults()
	if len(rj.LoyaltyTiers) > 0 {
		tt, err := parseLoyalty(rj.LoyaltyTiers)
		if err != nil {
			return RateTables{}, err
		}
		tables.Loyalty = tt
	}
	if len(rj.AdPackages) > 0 {
		pt, err := parseAdPackages(rj.AdPackages)
		if err != nil {
			return RateTables{}, err
		}
		for tier, pkg := range pt {
			tables.AdPackages[tier] = pkg
		}
	}
	if rj.AdPeriodDays < 0 {
		return RateTables{}, fmt.Errorf("ad_period_days must be positive")
	}
	if rj.AdPeriodDays > 0 {
		tables.AdPeriodDays = rj.AdPeriodDays
	}
	return tables, nil
}

// =============================================================================
// RENDERING
// =============================================================================

// ToJSON renders tables in file form, tiers in ascending order.
func ToJSON(tables RateTables) RateTablesJSON {
	out := RateTablesJSON{AdPeriodDays: tables.AdPeriodDays}
	for _, t := range rewards.Tiers {
		th, ok := tables.Loyalty.Thresholds[t]
		if !ok {
			continue
		}
		b := tables.Loyalty.Benefits[t]
		out.LoyaltyTiers = append(out.LoyaltyTiers, LoyaltyTierJSON{
			Tier:                   string(t),
			MinLifetimePoints:      th,
			CommissionBonusPercent: b.CommissionBonusPercent.String(),
			PrioritySupport:        b.PrioritySupport,
			FeaturedListing:        b.FeaturedListing,
			ExclusiveProducts:      b.ExclusiveProducts,
		})
	}
	for _, t := range adpartner.PackageTiers {
		pkg, ok := tables.AdPackages[t]
		if !ok {
			continue
		}
		out.AdPackages = append(out.AdPackages, AdPackageJSON{
			Tier:           string(t),
			MonthlyFee:     pkg.MonthlyFee.String(),
			CommissionRate: pkg.CommissionRate.String(),
			BonusPoints:    pkg.BonusPoints,
		})
	}
	return out
}

func parseLoyalty(tiers []LoyaltyTierJSON) (rewards.TierTable, error) {
	tt := rewards.TierTable{
		Thresholds: map[rewards.Tier]int64{},
		Benefits:   map[rewards.Tier]rewards.Benefits{},
	}
	for _, lj := range tiers {
		tier := rewards.Tier(lj.Tier)
		if !tier.Valid() {
			return rewards.TierTable{}, fmt.Errorf("unknown loyalty tier %q", lj.Tier)
		}
		if _, dup := tt.Thresholds[tier]; dup {
			return rewards.TierTable{}, fmt.Errorf("loyalty tier %q listed twice", lj.Tier)
		}
		bonus := decimal.Zero
		if lj.CommissionBonusPercent != "" {
			var err error
			if bonus, err = decimal.NewFromString(lj.CommissionBonusPercent); err != nil {
				return rewards.TierTable{}, fmt.Errorf("tier %s commission_bonus_percent: %w", lj.Tier, err)
			}
		}
		tt.Thresholds[tier] = lj.MinLifetimePoints
		tt.Benefits[tier] = rewards.Benefits{
			CommissionBonusPercent: bonus,
			PrioritySupport:        lj.PrioritySupport,
			FeaturedListing:        lj.FeaturedListing,
			ExclusiveProducts:      lj.ExclusiveProducts,
		}
	}

	prev := int64(-1)
	for _, t := range rewards.Tiers {
		th, ok := tt.Thresholds[t]
		if !ok {
			return rewards.TierTable{}, fmt.Errorf("loyalty tier %q missing", t)
		}
		if t == rewards.TierBronze && th != 0 {
			return rewards.TierTable{}, fmt.Errorf("bronze threshold must be 0, got %d", th)
		}
		if th <= prev {
			return rewards.TierTable{}, fmt.Errorf("loyalty thresholds must increase: %s at %d", t, th)
		}
		prev = th
	}
	return tt, nil
}

func parseAdPackages(pkgs []AdPackageJSON) (adpartner.PackageTable, error) {
	out := adpartner.PackageTable{}
	for _, pj := range pkgs {
		tier := adpartner.PackageTier(pj.Tier)
		if !tier.Valid() {
			return nil, fmt.Errorf("unknown ad package tier %q", pj.Tier)
		}
		fee, err := decimal.NewFromString(pj.MonthlyFee)
		if err != nil || !fee.IsPositive() {
			return nil, fmt.Errorf("ad package %s: monthly_fee must be a positive amount", pj.Tier)
		}
		rate, err := decimal.NewFromString(pj.CommissionRate)
		if err != nil || rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("ad package %s: commission_rate must be in [0, 1)", pj.Tier)
		}
		if pj.BonusPoints < 0 {
			return nil, fmt.Errorf("ad package %s: bonus_points must not be negative", pj.Tier)
		}
		out[tier] = adpartner.Package{Tier: tier, MonthlyFee: fee, CommissionRate: rate, BonusPoints: pj.BonusPoints}
	}
	return out, nil
}
