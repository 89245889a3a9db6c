package filehandle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithWorkerScratchIsRetrievable(t *testing.T) {
	ctx := WithWorkerScratch(context.Background())
	require.NotNil(t, scratchFromContext(ctx))
	require.Nil(t, scratchFromContext(context.Background()))
}

func TestBounceScratchReusesBackingArrayWhenBigEnough(t *testing.T) {
	s := &bounceScratch{}
	first := s.get(64, 512)
	require.Len(t, first, 64)
	require.True(t, isAligned(uint64(bufAddr(first)), 512))

	second := s.get(32, 512)
	require.Equal(t, bufAddr(first), bufAddr(second), "a smaller request that still fits must reuse the same backing array")
}

func TestBounceScratchGrowsWhenTooSmall(t *testing.T) {
	s := &bounceScratch{}
	small := s.get(16, 512)
	big := s.get(4096, 512)
	require.Len(t, big, 4096)
	require.NotEqual(t, bufAddr(small), bufAddr(big))
	require.True(t, isAligned(uint64(bufAddr(big)), 512))
}

func TestBounceForFallsBackWithoutRegisteredWorker(t *testing.T) {
	buf := bounceFor(context.Background(), 512, 512)
	require.Len(t, buf, 512)
	require.True(t, isAligned(uint64(bufAddr(buf)), 512))
}
