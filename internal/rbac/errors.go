package rbac

import (
	"fmt"

	"github.com/sheetgate/sheetgate/internal/platform/httpx"
)

// Domain errors. Each wraps the matching transport sentinel so handlers can
// map them to problem-detail responses without inspecting rbac internals.
var (
	ErrUnauthorized    = fmt.Errorf("rbac: admin privileges required: %w", httpx.ErrForbidden)
	ErrNotFound        = fmt.Errorf("rbac: %w", httpx.ErrNotFound)
	ErrDuplicateName   = fmt.Errorf("rbac: role name already in use: %w", httpx.ErrDuplicate)
	ErrEmailTaken      = fmt.Errorf("rbac: email already registered to another account: %w", httpx.ErrDuplicate)
	ErrInvalidInput    = fmt.Errorf("rbac: %w", httpx.ErrValidation)
	ErrCascadeConflict = fmt.Errorf("rbac: mutation raced a role deletion: %w", httpx.ErrConflict)
)
