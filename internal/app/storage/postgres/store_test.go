package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestEnsureSchemaCreatesTables(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS market_prices").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS market_positions").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertPricesNormalizesAndStampsTime(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO market_prices").
		WithArgs("BTC", 65000.0, 2.5, 1000.0, 66000.0, 64000.0, "exchange", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpsertPrices(context.Background(), []market.Price{{
		Symbol:    " btc ",
		Price:     65000,
		Change24h: 2.5,
		Volume24h: 1000,
		High24h:   66000,
		Low24h:    64000,
		Source:    "exchange",
	}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertPricesSkipsEmptySymbol(t *testing.T) {
	store, mock := newMockStore(t)

	// No exec expected.
	err := store.UpsertPrices(context.Background(), []market.Price{{Symbol: "  "}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetPrice(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"symbol", "price", "change_24h", "volume_24h", "high_24h", "low_24h", "source", "updated_at"}).
		AddRow("ETH", 3500.0, -1.2, 500.0, 3600.0, 3400.0, "mcp", now)
	mock.ExpectQuery("SELECT symbol, price").WithArgs("ETH").WillReturnRows(rows)

	p, err := store.GetPrice(context.Background(), "eth")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Symbol != "ETH" || p.Price != 3500 || p.Source != "mcp" {
		t.Fatalf("unexpected price: %+v", p)
	}
}

func TestGetPriceNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT symbol, price").
		WithArgs("MISSING").
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "price", "change_24h", "volume_24h", "high_24h", "low_24h", "source", "updated_at"}))

	_, err := store.GetPrice(context.Background(), "MISSING")
	if !storage.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestUpsertPositionsNormalizesWallet(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO market_positions").
		WithArgs("0xabc", "ETH", "ethereum", 2.0, 7000.0, 3500.0, -1.2, "", "dex", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpsertPositions(context.Background(), []market.Position{{
		WalletAddress: "0xABC",
		Symbol:        "eth",
		Chain:         "ethereum",
		Balance:       2,
		BalanceUSD:    7000,
		Price:         3500,
		Change24h:     -1.2,
		Source:        "dex",
	}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListPositions(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"wallet_address", "symbol", "chain", "balance", "balance_usd", "price", "change_24h", "token_address", "source", "updated_at"}).
		AddRow("0xabc", "ETH", "ethereum", 2.0, 7000.0, 3500.0, -1.2, "", "dex", now).
		AddRow("0xabc", "BTC", "bitcoin", 0.5, 32500.0, 65000.0, 2.0, "", "exchange", now)
	mock.ExpectQuery("SELECT wallet_address").WithArgs("0xabc").WillReturnRows(rows)

	positions, err := store.ListPositions(context.Background(), "0xABC")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(positions))
	}
}
