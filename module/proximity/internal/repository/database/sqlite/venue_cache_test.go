package sqlite

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS venue_cache`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := NewVenueCache(db).Migrate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSaveVenues_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`INSERT INTO venue_cache`).
		WithArgs("bar_locations", `[{"id":1,"latitude":38.0351,"longitude":-78.5001}]`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	cache := NewVenueCache(db)
	err = cache.SaveVenues(context.Background(), []domain.Venue{
		{ID: 1, Latitude: 38.0351, Longitude: -78.5001},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSaveVenues_EmptySet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`INSERT INTO venue_cache`).
		WithArgs("bar_locations", `[]`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := NewVenueCache(db).SaveVenues(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSaveVenues_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`INSERT INTO venue_cache`).
		WillReturnError(sqlmock.ErrCancelled)

	err = NewVenueCache(db).SaveVenues(context.Background(), []domain.Venue{{ID: 1}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadVenues_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"payload"}).
		AddRow(`[{"id":1,"latitude":38.0351,"longitude":-78.5001},{"id":2,"latitude":38.04,"longitude":-78.51}]`)
	mock.ExpectQuery(`SELECT payload FROM venue_cache WHERE cache_key = (.+)`).
		WithArgs("bar_locations").
		WillReturnRows(rows)

	venues, err := NewVenueCache(db).LoadVenues(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(venues) != 2 {
		t.Fatalf("expected 2 venues, got %d", len(venues))
	}
	if venues[1].ID != 2 || venues[1].Latitude != 38.04 {
		t.Errorf("unexpected venue %+v", venues[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadVenues_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT payload FROM venue_cache`).
		WithArgs("bar_locations").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	venues, err := NewVenueCache(db).LoadVenues(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(venues) != 0 {
		t.Fatalf("expected no venues, got %d", len(venues))
	}
}

func TestLoadVenues_CorruptPayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT payload FROM venue_cache`).
		WithArgs("bar_locations").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow("not json"))

	if _, err := NewVenueCache(db).LoadVenues(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
