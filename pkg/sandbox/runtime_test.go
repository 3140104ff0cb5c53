package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_InstantiatesHostModuleAndCloses(t *testing.T) {
	ctx := context.Background()
	r, err := New(ctx, Config{MemoryLimitBytes: 1 << 20}, func([]byte) ([]byte, error) {
		return []byte("report"), nil
	})
	require.NoError(t, err)
	require.NotNil(t, r.host)
	require.NoError(t, r.Close(ctx))
}

func TestHostModule_UnknownHandleReportsError(t *testing.T) {
	h := NewHostModule(func([]byte) ([]byte, error) { return nil, nil })
	status := h.connectFinish(context.Background(), nil, 999)
	require.Equal(t, statusError, status)
}
