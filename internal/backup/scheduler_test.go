package backup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
)

func TestSchedulerTick_DisabledDoesNothing(t *testing.T) {
	m, st, gw := newManager(t, 1)
	s := NewScheduler(m, st, testLogger())

	s.tick()
	assert.Empty(t, gw.deliveries)
}

func TestSchedulerTick_HonoursInterval(t *testing.T) {
	m, st, gw := newManager(t, 1)
	ctx := context.Background()

	require.NoError(t, st.Update(ctx, func(doc *domain.Document) error {
		doc.AutoBackup = domain.AutoBackupConfig{Enabled: true, IntervalMinutes: 30}
		return nil
	}))

	s := NewScheduler(m, st, testLogger())
	clock := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.tick()
	assert.Len(t, gw.deliveries, 1, "first tick backs up immediately")

	clock = clock.Add(10 * time.Minute)
	s.tick()
	assert.Len(t, gw.deliveries, 1, "within the interval nothing happens")

	clock = clock.Add(25 * time.Minute)
	s.tick()
	assert.Len(t, gw.deliveries, 2, "elapsed interval triggers another backup")
}
