package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/repository"
	"github.com/nkiryanov/storefront/internal/testutil"
)

func TestPayments(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withTx := func(t *testing.T, db DBTX, fn func(pgx.Tx, repository.Storage)) {
		testutil.WithTx(db, t, func(ttx pgx.Tx) {
			fn(ttx, NewStorage(ttx))
		})
	}

	t.Run("attempts", func(t *testing.T) {
		withTx(t, pg.Pool, func(_ pgx.Tx, s repository.Storage) {
			order, err := s.Order().CreateOrder(t.Context(), newTestOrder("ORD-10", "42"))
			require.NoError(t, err)

			attempt := models.PaymentAttempt{TxRef: "tx-1", OrderID: order.ID, Link: "https://pay.example.com/tx-1"}
			require.NoError(t, s.Payment().SaveAttempt(t.Context(), attempt))
			require.NoError(t, s.Payment().SaveAttempt(t.Context(), attempt), "saving same attempt twice is not an error")

			got, err := s.Payment().GetAttempt(t.Context(), "tx-1")
			require.NoError(t, err)
			require.Equal(t, order.ID, got.OrderID)
			require.Equal(t, "https://pay.example.com/tx-1", got.Link)

			_, err = s.Payment().GetAttempt(t.Context(), "tx-unknown")
			require.ErrorIs(t, err, apperrors.ErrOrderNotFound)
		})
	})

	t.Run("callbacks recorded once", func(t *testing.T) {
		withTx(t, pg.Pool, func(_ pgx.Tx, s repository.Storage) {
			order, err := s.Order().CreateOrder(t.Context(), newTestOrder("ORD-11", "42"))
			require.NoError(t, err)

			cb := models.PaymentCallback{OrderID: order.ID, TransactionID: "777", TxRef: "tx-2", Status: "successful"}

			_, found, err := s.Payment().GetCallback(t.Context(), order.ID, "777")
			require.NoError(t, err)
			require.False(t, found)

			recorded, err := s.Payment().RecordCallback(t.Context(), cb)
			require.NoError(t, err)
			require.True(t, recorded)

			recorded, err = s.Payment().RecordCallback(t.Context(), cb)
			require.NoError(t, err)
			require.False(t, recorded, "same (order, transaction) pair must be recorded once")

			got, found, err := s.Payment().GetCallback(t.Context(), order.ID, "777")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, "successful", got.Status)
			require.Equal(t, "tx-2", got.TxRef)
		})
	})

	t.Run("InTx", func(t *testing.T) {
		withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
			errBoom := errors.New("boom")

			err := s.InTx(t.Context(), func(s repository.Storage) error {
				_, err := s.Order().CreateOrder(t.Context(), newTestOrder("ORD-12", "42"))
				require.NoError(t, err)
				return errBoom
			})
			require.ErrorIs(t, err, errBoom)

			_, err = s.Order().GetOrder(t.Context(), "ORD-12")
			require.ErrorIs(t, err, apperrors.ErrOrderNotFound, "changes must be rolled back")

			err = s.InTx(t.Context(), func(s repository.Storage) error {
				_, err := s.Order().CreateOrder(t.Context(), newTestOrder("ORD-13", "42"))
				return err
			})
			require.NoError(t, err)

			_, err = s.Order().GetOrder(t.Context(), "ORD-13")
			require.NoError(t, err, "changes must be committed")
		})
	})
}
