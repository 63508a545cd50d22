package memory

import (
	"context"
	"testing"
	"time"

	"kairos/internal/domain"
	iface "kairos/internal/repository/iface"
	"kairos/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func TestScheduleRepository(t *testing.T) {
	repotest.ScheduleRepository(t, func(t *testing.T) iface.ScheduleRepository {
		return NewScheduleRepository()
	})
}

func TestRunRepository(t *testing.T) {
	repotest.RunRepository(t, func(t *testing.T) iface.RunRepository {
		return NewRunRepository()
	})
}

func TestReturnedSchedulesAreCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewScheduleRepository()
	job := domain.NewScheduledJob("copy", domain.TriggerKindCron, "* * * * *", "t", map[string]interface{}{"a": "b"}, "", "", testNow)
	require.NoError(t, repo.Create(ctx, job))

	job.Payload["a"] = "mutated"
	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Payload["a"])

	got.Name = "changed"
	again, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "copy", again.Name)
}

func TestBadNextToken(t *testing.T) {
	_, err := NewScheduleRepository().List(context.Background(), 10, "!!!")
	assert.Error(t, err)
}
