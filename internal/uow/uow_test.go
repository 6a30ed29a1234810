package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/mkravets/tickethub/internal/repository"
	"github.com/mkravets/tickethub/internal/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_RunsHooksAfterCommit(t *testing.T) {
	u := NewUoW(repotest.NewFakeStore())

	var order []string
	err := u.Do(context.Background(), func(
		ctx context.Context,
		tx repository.Tx,
		after func(AfterCommit),
	) error {
		after(func(ctx context.Context) { order = append(order, "hook1") })
		after(func(ctx context.Context) { order = append(order, "hook2") })
		order = append(order, "body")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"body", "hook1", "hook2"}, order)
}

func TestDo_SkipsHooksOnError(t *testing.T) {
	u := NewUoW(repotest.NewFakeStore())

	boom := errors.New("boom")
	ran := false
	err := u.Do(context.Background(), func(
		ctx context.Context,
		tx repository.Tx,
		after func(AfterCommit),
	) error {
		after(func(ctx context.Context) { ran = true })
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)
}
