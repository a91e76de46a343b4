package response

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/apisync/internal/pkg/errcode"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
)

func TestCodeOf(t *testing.T) {
	code, msg := CodeOf(fmt.Errorf("job x: %w", appErr.ErrNotFound))
	require.Equal(t, errcode.ErrNotFound, code)
	require.Equal(t, "not found", msg)

	code, msg = CodeOf(fmt.Errorf("%w: interval required", appErr.ErrInvalid))
	require.Equal(t, errcode.ErrInvalid, code)
	require.Equal(t, "invalid: interval required", msg)

	code, msg = CodeOf(fmt.Errorf("boom"))
	require.Equal(t, errcode.ErrInternal, code)
	require.Equal(t, "internal error", msg)
}
