package fleet

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"gitlab.com/TitanInd/fleet-metrics/internal/lib"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/dbutil"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/upstream"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"upstream credential unset", upstream.ErrNotConfigured, KindUnconfigured},
		{"database url unset", dbutil.ErrNotConfigured, KindUnconfigured},
		{"undefined table", dbutil.WrapError(&pgconn.PgError{Code: dbutil.UndefinedTableErrorCode}), KindMissing},
		{"no price row", fmt.Errorf("%w: 2024-01-01", ErrPriceNotFound), KindMissing},
		{"bad shape", lib.WrapError(upstream.ErrMalformedResponse, errors.New("json: cannot unmarshal")), KindMalformed},
		{"unknown unit", upstream.ErrUnknownUnit, KindMalformed},
		{"http status", &upstream.UpstreamError{Status: 500, Body: "boom"}, KindUnavailable},
		{"connection refused", errConnRefused, KindUnavailable},
		{"request deadline", context.DeadlineExceeded, KindTimeout},
		{"canceled mid call", fmt.Errorf("statistics of customer B: %w", context.Canceled), KindTimeout},
		{"malformed wins over deadline", errors.Join(upstream.ErrMalformedResponse, context.DeadlineExceeded), KindMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.kind, Classify(tc.err))
		})
	}
}

func TestAttempt(t *testing.T) {
	ok := Attempt(SourceMetricsDB, func() (float64, error) { return 1.5, nil })
	require.True(t, ok.Ok())
	require.Equal(t, 1.5, ok.Or(0))

	failed := Attempt(SourceMetricsDB, func() (float64, error) { return 7, errConnRefused })
	require.False(t, failed.Ok())
	require.Equal(t, 0.0, failed.Or(0))
	require.Equal(t, 7.0, failed.Value)
	require.Equal(t, KindUnavailable, failed.Err.Kind)
	require.ErrorIs(t, failed.Err, errConnRefused)

	panicked := Attempt(SourcePriceDB, func() (float64, error) { panic("nil map") })
	require.Equal(t, KindPanic, panicked.Err.Kind)
	require.Equal(t, SourcePriceDB, panicked.Err.Source)
}

func TestSourceErrorMessage(t *testing.T) {
	err := &SourceError{Source: SourceUpstream, Kind: KindUnavailable, Err: errors.New("timeout")}

	require.Equal(t, "upstream unavailable: timeout", err.Error())

	var target *SourceError
	require.True(t, errors.As(fmt.Errorf("snapshot: %w", err), &target))
	require.Equal(t, SourceUpstream, target.Source)
}
