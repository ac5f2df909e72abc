// Package consentlist reconciles raw consent histories into the list a user
// manages, and exports that list as CSV.
package consentlist

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/xmtp/allow-list-management/v1/models"
)

// Reconcile collapses a consent history into one record per address and
// orders the result allowed, then unknown, then denied.
//
// records is read oldest first: for each address only its last occurrence
// survives. Records of equal permission keep the order of those surviving
// occurrences. The input slice is never modified.
//
// A record with a blank address or a permission outside the closed set is a
// precondition violation and fails the whole call with
// models.ErrMalformedConsentRecord.
func Reconcile(records []models.ConsentRecord) ([]models.ConsentRecord, error) {
	if err := Validate(records); err != nil {
		return nil, err
	}

	last := make(map[string]int, len(records))
	for i, r := range records {
		last[r.Address] = i
	}

	out := make([]models.ConsentRecord, 0, len(last))
	for i, r := range records {
		if last[r.Address] == i {
			out = append(out, r)
		}
	}

	slices.SortStableFunc(out, func(a, b models.ConsentRecord) int {
		return cmp.Compare(a.Permission.Priority(), b.Permission.Priority())
	})
	return out, nil
}

// Validate checks every record against the reconciler's preconditions.
func Validate(records []models.ConsentRecord) error {
	for i, r := range records {
		if err := models.CheckAddress(r.Address); err != nil {
			return fmt.Errorf("%w: record %d: %w", models.ErrMalformedConsentRecord, i, err)
		}
		if !r.Permission.IsValid() {
			return fmt.Errorf("%w: record %d (%s) has permission %q",
				models.ErrMalformedConsentRecord, i, r.Address, r.Permission)
		}
	}
	return nil
}

// GroupByPermission splits a reconciled list into its allowed, unknown and
// denied sections, preserving order within each.
func GroupByPermission(records []models.ConsentRecord) map[models.Permission][]models.ConsentRecord {
	groups := map[models.Permission][]models.ConsentRecord{
		models.PermissionAllowed: {},
		models.PermissionUnknown: {},
		models.PermissionDenied:  {},
	}
	for _, r := range records {
		groups[r.Permission] = append(groups[r.Permission], r)
	}
	return groups
}

// Addresses returns the addresses of records in order.
func Addresses(records []models.ConsentRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Address
	}
	return out
}
