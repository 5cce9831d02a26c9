package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/openfleet/tally/internal/changefeed"
	claimdomain "github.com/openfleet/tally/internal/claim/domain"
	"github.com/openfleet/tally/internal/clock"
	driverdomain "github.com/openfleet/tally/internal/driver/domain"
	driverrepo "github.com/openfleet/tally/internal/driver/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTest(t *testing.T, repo driverdomain.Repository, feed *changefeed.Hub) (claimdomain.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&driverdomain.Driver{}); err != nil {
		t.Fatal(err)
	}

	svc := NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		Clock:      clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		DriverRepo: repo,
		Feed:       feed,
	})
	return svc, db
}

func seedDriver(t *testing.T, db *gorm.DB, driver driverdomain.Driver) driverdomain.Driver {
	t.Helper()
	if driver.DriverID == 0 {
		driver.DriverID = driverdomain.IDBase
	}
	if driver.Version == 0 {
		driver.Version = 1
	}
	if driver.Name == "" {
		driver.Name = "Asha"
	}
	if driver.Role == "" {
		driver.Role = "driver"
	}
	if err := db.Create(&driver).Error; err != nil {
		t.Fatal(err)
	}
	return driver
}

func TestClaim_ConsumesOnePointAndResetsTotal(t *testing.T) {
	svc, db := setupTest(t, driverrepo.NewRepository(), nil)
	seeded := seedDriver(t, db, driverdomain.Driver{
		TotalCollected:  150000,
		UnclaimedPoints: 2,
	})

	driver, err := svc.Claim(context.Background(), seeded.DriverID)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), driver.UnclaimedPoints)
	assert.Equal(t, int64(1), driver.ClaimedPoints)
	assert.Equal(t, int64(0), driver.TotalCollected)
	assert.Equal(t, int64(2), driver.Version)

	var stored driverdomain.Driver
	assert.NoError(t, db.Where("driver_id = ?", seeded.DriverID).First(&stored).Error)
	assert.Equal(t, int64(1), stored.UnclaimedPoints)
	assert.Equal(t, int64(1), stored.ClaimedPoints)
	assert.Equal(t, int64(0), stored.TotalCollected)
}

func TestClaim_SecondPointRemainsClaimable(t *testing.T) {
	svc, db := setupTest(t, driverrepo.NewRepository(), nil)
	seeded := seedDriver(t, db, driverdomain.Driver{
		TotalCollected:  210000,
		UnclaimedPoints: 2,
	})

	_, err := svc.Claim(context.Background(), seeded.DriverID)
	assert.NoError(t, err)

	driver, err := svc.Claim(context.Background(), seeded.DriverID)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), driver.UnclaimedPoints)
	assert.Equal(t, int64(2), driver.ClaimedPoints)

	_, err = svc.Claim(context.Background(), seeded.DriverID)
	assert.ErrorIs(t, err, claimdomain.ErrNothingToClaim)
}

func TestClaim_NothingToClaim(t *testing.T) {
	svc, db := setupTest(t, driverrepo.NewRepository(), nil)
	seeded := seedDriver(t, db, driverdomain.Driver{TotalCollected: 50000})

	_, err := svc.Claim(context.Background(), seeded.DriverID)
	assert.ErrorIs(t, err, claimdomain.ErrNothingToClaim)

	// Counters are untouched by the failed claim.
	var stored driverdomain.Driver
	assert.NoError(t, db.Where("driver_id = ?", seeded.DriverID).First(&stored).Error)
	assert.Equal(t, int64(50000), stored.TotalCollected)
	assert.Equal(t, int64(0), stored.ClaimedPoints)
	assert.Equal(t, int64(1), stored.Version)
}

func TestClaim_UnknownDriver(t *testing.T) {
	svc, _ := setupTest(t, driverrepo.NewRepository(), nil)

	_, err := svc.Claim(context.Background(), 4242)
	assert.ErrorIs(t, err, driverdomain.ErrDriverNotFound)

	_, err = svc.Claim(context.Background(), -1)
	assert.ErrorIs(t, err, driverdomain.ErrInvalidDriverID)
}

// racingRepo consumes the last point out of band after each read, so every
// conditional write observes a stale version.
type racingRepo struct {
	driverdomain.Repository
	db     *gorm.DB
	limit  int
	losses int
}

func (r *racingRepo) FindByID(ctx context.Context, db *gorm.DB, driverID int64) (*driverdomain.Driver, error) {
	driver, err := r.Repository.FindByID(ctx, db, driverID)
	if err != nil || driver == nil {
		return driver, err
	}
	if r.losses < r.limit {
		r.losses++
		err := r.db.Exec(
			`UPDATE drivers SET version = version + 1 WHERE driver_id = ?`,
			driverID,
		).Error
		if err != nil {
			return nil, err
		}
	}
	return driver, nil
}

func TestClaim_RetriesAfterLosingVersionRace(t *testing.T) {
	repo := &racingRepo{Repository: driverrepo.NewRepository(), limit: 1}
	svc, db := setupTest(t, repo, nil)
	repo.db = db
	seeded := seedDriver(t, db, driverdomain.Driver{
		TotalCollected:  150000,
		UnclaimedPoints: 1,
	})

	driver, err := svc.Claim(context.Background(), seeded.DriverID)
	assert.NoError(t, err)
	assert.Equal(t, 1, repo.losses)
	assert.Equal(t, int64(0), driver.UnclaimedPoints)
	assert.Equal(t, int64(1), driver.ClaimedPoints)
}

func TestClaim_ConcurrentUpdateExhausted(t *testing.T) {
	repo := &racingRepo{Repository: driverrepo.NewRepository(), limit: updateAttempts}
	svc, db := setupTest(t, repo, nil)
	repo.db = db
	seeded := seedDriver(t, db, driverdomain.Driver{
		TotalCollected:  150000,
		UnclaimedPoints: 1,
	})

	_, err := svc.Claim(context.Background(), seeded.DriverID)
	assert.ErrorIs(t, err, driverdomain.ErrConcurrentUpdateExhausted)
	assert.Equal(t, updateAttempts, repo.losses)

	// The point survives for a later retry.
	var stored driverdomain.Driver
	assert.NoError(t, db.Where("driver_id = ?", seeded.DriverID).First(&stored).Error)
	assert.Equal(t, int64(1), stored.UnclaimedPoints)
	assert.Equal(t, int64(0), stored.ClaimedPoints)
}

func TestClaim_PublishesDriverUpdate(t *testing.T) {
	feed := changefeed.NewHub()
	svc, db := setupTest(t, driverrepo.NewRepository(), feed)
	seeded := seedDriver(t, db, driverdomain.Driver{
		TotalCollected:  120000,
		UnclaimedPoints: 1,
	})

	sub, _, err := feed.Subscribe(changefeed.EntityDriver)
	assert.NoError(t, err)
	defer sub.Close()

	driver, err := svc.Claim(context.Background(), seeded.DriverID)
	assert.NoError(t, err)

	event := <-sub.Events()
	assert.Equal(t, changefeed.KindUpdate, event.Kind)
	assert.Equal(t, "1001", event.Key)
	assert.Equal(t, driver.Version, event.Version)
}
