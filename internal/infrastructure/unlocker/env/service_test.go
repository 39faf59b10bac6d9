package envunlocker_test

import (
	"context"
	"testing"

	envunlocker "github.com/rgb-ln/rlnd/internal/infrastructure/unlocker/env"
	"github.com/stretchr/testify/require"
)

func TestEnvUnlocker(t *testing.T) {
	_, err := envunlocker.NewService("")
	require.Error(t, err)

	svc, err := envunlocker.NewService("password")
	require.NoError(t, err)
	password, err := svc.GetPassword(context.Background())
	require.NoError(t, err)
	require.Equal(t, "password", password)
}
