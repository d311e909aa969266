package domain

import (
	"fmt"
	"strings"
)

// Product identifies which Dynamics 365 product an endpoint belongs to.
type Product string

const (
	// ProductDataverse is Dataverse / Dynamics 365 Customer Engagement.
	ProductDataverse Product = "dataverse"
	// ProductFinOps is Dynamics 365 Finance & Operations.
	ProductFinOps Product = "finops"
)

// ParseProduct converts a configuration string into a Product.
// Accepts the canonical names plus the aliases used in older config files.
func ParseProduct(s string) (Product, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dataverse", "crm", "ce":
		return ProductDataverse, nil
	case "finops", "fno", "f&o", "fo":
		return ProductFinOps, nil
	default:
		return "", fmt.Errorf("%w: unknown product %q", ErrInvalidInput, s)
	}
}

// SupportsCrossCompany reports whether the product honours the cross-company query flag.
func (p Product) SupportsCrossCompany() bool {
	return p == ProductFinOps
}

// DisplayName returns a human readable product name.
func (p Product) DisplayName() string {
	switch p {
	case ProductFinOps:
		return "Finance & Operations"
	case ProductDataverse:
		return "Dataverse"
	default:
		return string(p)
	}
}
