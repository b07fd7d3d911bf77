// internal/models/pricing.go
package models

import (
	"context"
	"fmt"

	dbq "github.com/codr1/Fitclub/internal/db/queries"
)

type PriceQueries interface {
	GetPackagePriceOverrides(ctx context.Context, arg dbq.GetPackagePriceOverridesParams) (dbq.PackagePriceOverrides, error)
}

// EffectivePrice resolves what a member pays for pkg at a location: a member
// override wins over a location override, which wins over the base price.
func EffectivePrice(ctx context.Context, q PriceQueries, pkg dbq.Package, locationID, userID int64) (int64, error) {
	overrides, err := q.GetPackagePriceOverrides(ctx, dbq.GetPackagePriceOverridesParams{
		PackageID:  pkg.ID,
		LocationID: locationID,
		UserID:     userID,
	})
	if err != nil {
		return 0, fmt.Errorf("price overrides: %w", err)
	}
	switch {
	case overrides.MemberPriceCents != nil:
		return *overrides.MemberPriceCents, nil
	case overrides.LocationPriceCents != nil:
		return *overrides.LocationPriceCents, nil
	default:
		return pkg.PriceCents, nil
	}
}

// UsableAt reports whether credits from pkg can be spent at locationID.
func UsableAt(pkg dbq.Package, locationID int64) bool {
	return pkg.LocationID == nil || *pkg.LocationID == locationID
}
