package address

import (
	"context"
	"time"

	"github.com/greenmarket/storefront/internal/gateway"
)

const table = "addresses"

// GatewayAPI is the production API implementation over the backend
// addresses table.
type GatewayAPI struct {
	client *gateway.Client
}

// NewGatewayAPI creates the production address API.
func NewGatewayAPI(client *gateway.Client) *GatewayAPI {
	return &GatewayAPI{client: client}
}

// ListAddresses returns all addresses of a user, default first.
func (g *GatewayAPI) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	var addrs []Address
	err := g.client.Table(table).
		Select("*").
		Eq("user_id", userID).
		Order("is_default", true).
		Order("created_at", false).
		ExecuteInto(ctx, &addrs)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

// CreateAddress inserts a new address row.
func (g *GatewayAPI) CreateAddress(ctx context.Context, a Address) (Address, error) {
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt

	var created []Address
	err := g.client.Table(table).Insert(a).ExecuteInto(ctx, &created)
	if err != nil {
		return Address{}, err
	}
	if len(created) > 0 {
		return created[0], nil
	}
	return a, nil
}

// UpdateAddress patches an address row by id.
func (g *GatewayAPI) UpdateAddress(ctx context.Context, a Address) (Address, error) {
	a.UpdatedAt = time.Now().UTC()

	var updated []Address
	err := g.client.Table(table).
		Update(map[string]any{
			"label":       a.Label,
			"line":        a.Line,
			"city":        a.City,
			"district":    a.District,
			"postal_code": a.PostalCode,
			"is_default":  a.IsDefault,
			"updated_at":  a.UpdatedAt,
		}).
		Eq("id", a.ID).
		ExecuteInto(ctx, &updated)
	if err != nil {
		return Address{}, err
	}
	if len(updated) > 0 {
		return updated[0], nil
	}
	return a, nil
}

// DeleteAddress removes an address row by id.
func (g *GatewayAPI) DeleteAddress(ctx context.Context, id string) error {
	_, err := g.client.Table(table).Delete().Eq("id", id).Execute(ctx)
	return err
}

// UnsetDefaults clears the default flag on every address of the user
// except the named one.
func (g *GatewayAPI) UnsetDefaults(ctx context.Context, userID, exceptID string) error {
	_, err := g.client.Table(table).
		Update(map[string]any{"is_default": false, "updated_at": time.Now().UTC()}).
		Eq("user_id", userID).
		Neq("id", exceptID).
		Execute(ctx)
	return err
}

// MarkDefault sets the default flag on one address.
func (g *GatewayAPI) MarkDefault(ctx context.Context, id string) error {
	_, err := g.client.Table(table).
		Update(map[string]any{"is_default": true, "updated_at": time.Now().UTC()}).
		Eq("id", id).
		Execute(ctx)
	return err
}
