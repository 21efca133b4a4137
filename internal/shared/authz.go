package shared

import (
	"context"
	"errors"
	"fmt"
)

// ErrForbidden indicates the principal's role does not permit the
// operation.
var ErrForbidden = errors.New("shared: forbidden")

// RequireRole verifies that the principal in ctx carries one of the given
// roles. Approval and closing entry points are gated on the nazer role.
func RequireRole(ctx context.Context, roles ...string) (Principal, error) {
	p := PrincipalFromContext(ctx)
	if p.UserID == 0 {
		return Principal{}, fmt.Errorf("%w: no principal", ErrForbidden)
	}
	for _, role := range roles {
		if p.Role == role {
			return p, nil
		}
	}
	return Principal{}, fmt.Errorf("%w: role %q", ErrForbidden, p.Role)
}
