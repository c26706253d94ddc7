package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPages(t *testing.T) {
	t.Parallel()

	pages := map[int][]string{0: {"a", "b"}, 2: {"c", "d"}, 4: {"e"}}

	got, err := Pages(context.Background(), func(_ context.Context, start int) ([]string, int, bool, error) {
		values := pages[start]
		return values, start + len(values), start == 4, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestPages_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	tests := map[string]struct {
		ctx     func() context.Context
		fetch   PageFunc[int, int]
		wantErr error
		wantMsg string
	}{
		"fetch error": {
			ctx: context.Background,
			fetch: func(context.Context, int) ([]int, int, bool, error) {
				return nil, 0, false, boom
			},
			wantErr: boom,
		},
		"stuck cursor": {
			ctx: context.Background,
			fetch: func(_ context.Context, c int) ([]int, int, bool, error) {
				return []int{1}, c, false, nil
			},
			wantMsg: "did not advance",
		},
		"canceled": {
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			fetch: func(context.Context, int) ([]int, int, bool, error) {
				return []int{1}, 1, true, nil
			},
			wantErr: context.Canceled,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Pages(tt.ctx(), tt.fetch)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.ErrorContains(t, err, tt.wantMsg)
			}
		})
	}
}
