package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steward/internal/catalog"
	"steward/internal/model"
	"steward/internal/store"
	"steward/internal/testing/mock"
)

func newScheduler(t *testing.T, clock *mock.MockClock) (*Scheduler, *store.SQLStore) {
	t.Helper()
	s, err := store.Open(store.Options{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewScheduler(s, Config{Now: clock.Now}), s
}

func subject() Subject {
	return Subject{
		Kind:            model.KindContainer,
		ID:              "c1",
		Fullname:        "dev-odoo_srv1.example.com",
		ApplicationCode: "odoo",
		ContainerID:     "c1",
		BackupIDs:       []string{"bk1", "bk2"},
		Policy:          catalog.BackupPolicy{MinutesBetweenSave: 60, ExpirationDays: 3},
	}
}

func TestPassSave_SharesGeneration(t *testing.T) {
	clock := mock.NewMockClock(time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC))
	sched, st := newScheduler(t, clock)
	pass := sched.Begin()
	assert.Equal(t, "2026-03-01-103000", pass.Generation())

	// time moves on during the pass; the tag does not
	clock.Advance(2 * time.Minute)

	var dumped []string
	res, err := pass.Save(context.Background(), subject(), Options{Force: true, Comment: "Before purge"},
		func(_ context.Context, s *model.Save) error {
			dumped = append(dumped, s.BackupID)
			return nil
		})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, []string{"bk1", "bk2"}, dumped)
	require.Len(t, res.Saves, 2)
	for _, s := range res.Saves {
		assert.Equal(t, "2026-03-01-103000", s.Generation)
		assert.Equal(t, "2026-03-01-103000_dev-odoo_srv1.example.com", s.Name)
		assert.Equal(t, "Before purge", s.Comment)
		assert.Equal(t, clock.Now().AddDate(0, 0, 3), s.Expiration)
	}
	assert.Equal(t, clock.Now().Add(60*time.Minute), res.NextSave)

	stored, err := st.ListSaves(context.Background(), store.SaveFilter{Generation: pass.Generation()})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestPassSave_Overrides(t *testing.T) {
	clock := mock.NewMockClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	sched, _ := newScheduler(t, clock)

	subj := subject()
	subj.Autosave = true
	subj.SaveExpiration = 10
	subj.TimeBetweenSave = 15
	subj.Comment = "Requested"
	subj.BackupIDs = nil
	subj.Policy.Destinations = []string{"bk-default"}

	res, err := sched.Begin().Save(context.Background(), subj, Options{}, nil)
	require.NoError(t, err)
	require.Len(t, res.Saves, 1)
	assert.Equal(t, "bk-default", res.Saves[0].BackupID)
	assert.Equal(t, "Requested", res.Saves[0].Comment)
	assert.Equal(t, clock.Now().AddDate(0, 0, 10), res.Saves[0].Expiration)
	assert.Equal(t, clock.Now().Add(15*time.Minute), res.NextSave)
}

func TestPassSave_Skips(t *testing.T) {
	clock := mock.NewMockClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	sched, _ := newScheduler(t, clock)

	noBackup := subject()
	noBackup.NoBackup = true
	noDest := subject()
	noDest.BackupIDs = nil

	tests := []struct {
		name    string
		subject Subject
		opts    Options
	}{
		{name: "autosave off and not forced", subject: subject()},
		{name: "no-save pass", subject: subject(), opts: Options{Force: true, NoSave: true}},
		{name: "no-backup application", subject: noBackup, opts: Options{Force: true}},
		{name: "no destination", subject: noDest, opts: Options{Force: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := sched.Begin().Save(context.Background(), tt.subject, tt.opts, func(context.Context, *model.Save) error {
				t.Fatal("dump must not run")
				return nil
			})
			require.NoError(t, err)
			assert.True(t, res.Skipped)
			assert.Empty(t, res.Saves)
		})
	}
}

func TestPassSave_DumpFailure(t *testing.T) {
	clock := mock.NewMockClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	sched, st := newScheduler(t, clock)

	_, err := sched.Begin().Save(context.Background(), subject(), Options{Force: true}, func(context.Context, *model.Save) error {
		return errors.New("disk full")
	})
	assert.ErrorContains(t, err, "disk full")

	saves, err := st.ListSaves(context.Background(), store.SaveFilter{})
	require.NoError(t, err)
	assert.Empty(t, saves)
}

func TestDefaultsAndExpired(t *testing.T) {
	clock := mock.NewMockClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	sched, _ := newScheduler(t, clock)

	subj := subject()
	subj.Policy = catalog.BackupPolicy{}
	assert.Equal(t, clock.Now().Add(24*time.Hour), sched.NextSave(subj))

	res, err := sched.Begin().Save(context.Background(), subj, Options{Force: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultComment, res.Saves[0].Comment)
	assert.Equal(t, clock.Now().AddDate(0, 0, 5), res.Saves[0].Expiration)

	expired, err := sched.ExpiredSaves(context.Background(), clock.Now().AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.Len(t, expired, 2)

	expired, err = sched.ExpiredSaves(context.Background(), clock.Now())
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("*/5 * * * *"))
	assert.NoError(t, ValidateSchedule("@every 10m"))
	assert.Error(t, ValidateSchedule("every five minutes"))
}

func TestTickerRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan time.Time, 4)
	ticker := NewTicker("@every 1s", func(_ context.Context, now time.Time) {
		ticks <- now
	})

	done := make(chan error, 1)
	go func() { done <- ticker.Run(ctx) }()

	select {
	case <-ticks:
	case <-time.After(5 * time.Second):
		t.Fatal("ticker did not fire")
	}
	cancel()
	require.NoError(t, <-done)

	assert.Error(t, NewTicker("bogus", func(context.Context, time.Time) {}).Run(context.Background()))
}
