package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"foxgem/common"
)

var baseTime = time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

const week = 7 * 24 * time.Hour

// forEachStore запускает тест для хранилища в памяти и для SQLite
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		fn(t, s)
	})
}

func mustUpsert(t *testing.T, s Store, id int64, name string, now time.Time) *common.UserProfile {
	t.Helper()
	p, err := s.UpsertProfile(context.Background(), common.ProfileUpdate{TelegramID: id, DisplayName: name}, now)
	if err != nil {
		t.Fatalf("UpsertProfile(%d): %v", id, err)
	}
	return p
}

func mustRecord(t *testing.T, s Store, id int64, score int64, at time.Time) *common.UserProfile {
	t.Helper()
	entry := common.ScoreEntry{ID: common.GenerateEntryID(), TelegramID: id, Score: score, CreatedAt: at}
	p, err := s.RecordScore(context.Background(), common.ProfileUpdate{TelegramID: id}, entry)
	if err != nil {
		t.Fatalf("RecordScore(%d, %d): %v", id, score, err)
	}
	return p
}

func TestUpsertProfile_KeepsJoinDate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		created := mustUpsert(t, s, 1, "Лиса", baseTime)
		if !created.JoinDate.Equal(baseTime) {
			t.Errorf("JoinDate = %v, ожидалось %v", created.JoinDate, baseTime)
		}
		if !created.LastBonusReset.Equal(baseTime) {
			t.Errorf("LastBonusReset = %v, ожидалось %v", created.LastBonusReset, baseTime)
		}

		later := baseTime.Add(time.Hour)
		updated, err := s.UpsertProfile(ctx, common.ProfileUpdate{TelegramID: 1, DisplayName: "Лисичка", FirstName: "Анна"}, later)
		if err != nil {
			t.Fatalf("UpsertProfile: %v", err)
		}
		if !updated.JoinDate.Equal(baseTime) {
			t.Errorf("JoinDate изменилась: %v", updated.JoinDate)
		}
		if updated.DisplayName != "Лисичка" || updated.FirstName != "Анна" {
			t.Errorf("отображаемые поля не обновились: %+v", updated)
		}

		// Пустые поля не затирают сохраненные
		kept, err := s.UpsertProfile(ctx, common.ProfileUpdate{TelegramID: 1}, later)
		if err != nil {
			t.Fatalf("UpsertProfile: %v", err)
		}
		if kept.DisplayName != "Лисичка" || kept.FirstName != "Анна" {
			t.Errorf("пустое обновление стерло поля: %+v", kept)
		}
	})
}

func TestGetProfile_NotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.GetProfile(context.Background(), 404)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetProfile() err = %v, ожидалось ErrNotFound", err)
		}
		_, err = s.GetProfileByReferralCode(context.Background(), "ZZZZZZ")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetProfileByReferralCode() err = %v, ожидалось ErrNotFound", err)
		}
	})
}

func TestRecordScore_MaxAndCount(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		mustRecord(t, s, 7, 100, baseTime)
		mustRecord(t, s, 7, 250, baseTime.Add(time.Minute))
		p := mustRecord(t, s, 7, 50, baseTime.Add(2*time.Minute))

		if p.BestScore != 250 {
			t.Errorf("BestScore = %d, ожидалось 250", p.BestScore)
		}
		if p.GamesPlayed != 3 {
			t.Errorf("GamesPlayed = %d, ожидалось 3", p.GamesPlayed)
		}
		if !p.JoinDate.Equal(baseTime) {
			t.Errorf("JoinDate = %v, ожидалось %v", p.JoinDate, baseTime)
		}

		n, err := s.CountScores(ctx, 7)
		if err != nil {
			t.Fatalf("CountScores: %v", err)
		}
		if n != 3 {
			t.Errorf("CountScores = %d, ожидалось 3", n)
		}

		n, err = s.CountScores(ctx, 8)
		if err != nil {
			t.Fatalf("CountScores: %v", err)
		}
		if n != 0 {
			t.Errorf("CountScores для нового игрока = %d, ожидалось 0", n)
		}
	})
}

func TestSetReferralCode(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUpsert(t, s, 1, "B", baseTime)
		mustUpsert(t, s, 2, "C", baseTime)

		code, err := s.SetReferralCode(ctx, 1, "AB12CD")
		if err != nil || code != "AB12CD" {
			t.Fatalf("SetReferralCode() = %q, %v", code, err)
		}

		// Повторная запись не меняет уже выданный код
		code, err = s.SetReferralCode(ctx, 1, "XXXXXX")
		if err != nil || code != "AB12CD" {
			t.Errorf("повторный SetReferralCode() = %q, %v, ожидалось AB12CD", code, err)
		}

		if _, err := s.SetReferralCode(ctx, 2, "AB12CD"); !errors.Is(err, ErrDuplicateCode) {
			t.Errorf("занятый код: err = %v, ожидалось ErrDuplicateCode", err)
		}

		if _, err := s.SetReferralCode(ctx, 3, "QWERTY"); !errors.Is(err, ErrNotFound) {
			t.Errorf("нет профиля: err = %v, ожидалось ErrNotFound", err)
		}

		owner, err := s.GetProfileByReferralCode(ctx, "AB12CD")
		if err != nil {
			t.Fatalf("GetProfileByReferralCode: %v", err)
		}
		if owner.TelegramID != 1 {
			t.Errorf("владелец кода = %d, ожидалось 1", owner.TelegramID)
		}
	})
}

func TestAttributeReferral_WindowReset(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUpsert(t, s, 1, "B", baseTime)
		for id := int64(10); id <= 12; id++ {
			mustUpsert(t, s, id, "новичок", baseTime)
		}

		attribute := func(newUser int64, now time.Time) *common.ReferralCredit {
			t.Helper()
			credit, err := s.AttributeReferral(ctx, ReferralAttribution{
				ReferrerID: 1, NewUserID: newUser, Reward: 5, Window: week, Now: now,
			})
			if err != nil {
				t.Fatalf("AttributeReferral(%d): %v", newUser, err)
			}
			return credit
		}

		first := attribute(10, baseTime.Add(24*time.Hour))
		if first.ReferralCount != 1 || first.ReferralBonus != 5 || first.WindowReset {
			t.Errorf("первое начисление = %+v", first)
		}

		second := attribute(11, baseTime.Add(48*time.Hour))
		if second.ReferralCount != 2 || second.ReferralBonus != 10 {
			t.Errorf("второе начисление = %+v", second)
		}

		// Окно истекло: бонус обнуляется перед начислением
		expiredAt := baseTime.Add(week + time.Hour)
		third := attribute(12, expiredAt)
		if third.ReferralCount != 3 || third.ReferralBonus != 5 || !third.WindowReset {
			t.Errorf("начисление после окна = %+v", third)
		}
		if !third.LastBonusReset.Equal(expiredAt) {
			t.Errorf("LastBonusReset = %v, ожидалось %v", third.LastBonusReset, expiredAt)
		}

		invited, err := s.GetProfile(ctx, 12)
		if err != nil {
			t.Fatalf("GetProfile: %v", err)
		}
		if invited.InvitedBy != 1 {
			t.Errorf("InvitedBy = %d, ожидалось 1", invited.InvitedBy)
		}
	})
}

func TestAttributeReferral_WindowBoundary(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, id := range []int64{1, 2, 3} {
			mustUpsert(t, s, id, "пригласивший", baseTime)
		}
		for id := int64(10); id <= 12; id++ {
			mustUpsert(t, s, id, "новичок", baseTime)
		}

		credit := func(referrer, newUser int64, now time.Time) *common.ReferralCredit {
			t.Helper()
			c, err := s.AttributeReferral(ctx, ReferralAttribution{
				ReferrerID: referrer, NewUserID: newUser, Reward: 5, Window: week, Now: now,
			})
			if err != nil {
				t.Fatalf("AttributeReferral(%d, %d): %v", referrer, newUser, err)
			}
			return c
		}

		// Новый профиль: окно только началось, сброса нет
		fresh := credit(1, 10, baseTime)
		if fresh.WindowReset || fresh.ReferralBonus != 5 || fresh.ReferralCount != 1 {
			t.Errorf("начисление в момент регистрации = %+v", fresh)
		}

		// Ровно на границе окна бонус уже сбрасывается
		boundary := baseTime.Add(week)
		atBoundary := credit(2, 11, boundary)
		if !atBoundary.WindowReset || atBoundary.ReferralBonus != 5 {
			t.Errorf("начисление на границе окна = %+v", atBoundary)
		}
		if !atBoundary.LastBonusReset.Equal(boundary) {
			t.Errorf("LastBonusReset = %v, ожидалось %v", atBoundary.LastBonusReset, boundary)
		}

		beforeBoundary := credit(3, 12, boundary.Add(-time.Second))
		if beforeBoundary.WindowReset || !beforeBoundary.LastBonusReset.Equal(baseTime) {
			t.Errorf("начисление до границы окна = %+v", beforeBoundary)
		}
	})
}

func TestAttributeReferral_BonusSaturates(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustRecord(t, s, 1, common.MaxScore, baseTime)
		mustRecord(t, s, 2, 50, baseTime)
		mustUpsert(t, s, 10, "новичок", baseTime)
		mustUpsert(t, s, 11, "новичок", baseTime)

		rewards := map[int64]int64{10: common.MaxReferralBonus - 1, 11: 10}
		for _, newUser := range []int64{10, 11} {
			c, err := s.AttributeReferral(ctx, ReferralAttribution{
				ReferrerID: 1, NewUserID: newUser, Reward: rewards[newUser], Window: week, Now: baseTime.Add(time.Hour),
			})
			if err != nil {
				t.Fatalf("AttributeReferral(%d): %v", newUser, err)
			}
			if c.ReferralBonus > common.MaxReferralBonus {
				t.Errorf("бонус %d больше максимума", c.ReferralBonus)
			}
		}

		p, err := s.GetProfile(ctx, 1)
		if err != nil {
			t.Fatalf("GetProfile: %v", err)
		}
		if p.ReferralBonus != common.MaxReferralBonus || p.ReferralCount != 2 {
			t.Errorf("bonus=%d count=%d", p.ReferralBonus, p.ReferralCount)
		}

		top, err := s.TopByProfile(ctx, 10)
		if err != nil {
			t.Fatalf("TopByProfile: %v", err)
		}
		if len(top) != 2 || top[0].TelegramID != 1 || top[0].Score != common.MaxScore+common.MaxReferralBonus {
			t.Errorf("top = %+v", top)
		}
	})
}

func TestAttributeReferral_Errors(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUpsert(t, s, 1, "B", baseTime)
		mustUpsert(t, s, 2, "C", baseTime)

		a := ReferralAttribution{ReferrerID: 1, NewUserID: 99, Reward: 5, Window: week, Now: baseTime}
		if _, err := s.AttributeReferral(ctx, a); !errors.Is(err, ErrNotFound) {
			t.Errorf("нет нового пользователя: err = %v, ожидалось ErrNotFound", err)
		}

		a.NewUserID = 2
		if _, err := s.AttributeReferral(ctx, a); err != nil {
			t.Fatalf("AttributeReferral: %v", err)
		}
		if _, err := s.AttributeReferral(ctx, a); !errors.Is(err, ErrAlreadyInvited) {
			t.Errorf("повторное приглашение: err = %v, ожидалось ErrAlreadyInvited", err)
		}

		referrer, err := s.GetProfile(ctx, 1)
		if err != nil {
			t.Fatalf("GetProfile: %v", err)
		}
		if referrer.ReferralCount != 1 || referrer.ReferralBonus != 5 {
			t.Errorf("после отказа счетчики изменились: %+v", referrer)
		}
	})
}

func TestResetBonuses_Idempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUpsert(t, s, 1, "B", baseTime)
		mustUpsert(t, s, 2, "C", baseTime)
		mustUpsert(t, s, 3, "D", baseTime)
		if _, err := s.AttributeReferral(ctx, ReferralAttribution{ReferrerID: 1, NewUserID: 2, Reward: 5, Window: week, Now: baseTime}); err != nil {
			t.Fatalf("AttributeReferral: %v", err)
		}

		sweepAt := baseTime.Add(time.Hour)
		n, err := s.ResetBonuses(ctx, sweepAt)
		if err != nil {
			t.Fatalf("ResetBonuses: %v", err)
		}
		if n != 1 {
			t.Errorf("ResetBonuses затронул %d профилей, ожидалось 1", n)
		}

		n, err = s.ResetBonuses(ctx, sweepAt.Add(time.Hour))
		if err != nil {
			t.Fatalf("ResetBonuses: %v", err)
		}
		if n != 0 {
			t.Errorf("повторный ResetBonuses затронул %d профилей, ожидалось 0", n)
		}

		p, err := s.GetProfile(ctx, 1)
		if err != nil {
			t.Fatalf("GetProfile: %v", err)
		}
		if p.ReferralBonus != 0 || p.ReferralCount != 1 {
			t.Errorf("после сброса: bonus=%d count=%d", p.ReferralBonus, p.ReferralCount)
		}
		if !p.LastBonusReset.Equal(sweepAt) {
			t.Errorf("LastBonusReset = %v, ожидалось %v", p.LastBonusReset, sweepAt)
		}
	})
}

func TestTopByLedger_OneEntryPerUser(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustRecord(t, s, 1, 100, baseTime)
		mustRecord(t, s, 1, 200, baseTime.Add(time.Minute))
		mustRecord(t, s, 2, 150, baseTime.Add(2*time.Minute))
		mustRecord(t, s, 3, 200, baseTime.Add(3*time.Minute))

		top, err := s.TopByLedger(ctx, 10)
		if err != nil {
			t.Fatalf("TopByLedger: %v", err)
		}

		want := []struct {
			id    int64
			score int64
		}{{1, 200}, {3, 200}, {2, 150}}
		if len(top) != len(want) {
			t.Fatalf("len(top) = %d, ожидалось %d: %+v", len(top), len(want), top)
		}
		for i, w := range want {
			if top[i].TelegramID != w.id || top[i].Score != w.score {
				t.Errorf("top[%d] = (%d, %d), ожидалось (%d, %d)", i, top[i].TelegramID, top[i].Score, w.id, w.score)
			}
		}

		limited, err := s.TopByLedger(ctx, 2)
		if err != nil {
			t.Fatalf("TopByLedger: %v", err)
		}
		if len(limited) != 2 {
			t.Errorf("len(limited) = %d, ожидалось 2", len(limited))
		}
	})
}

func TestTopByProfile_IncludesBonus(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustRecord(t, s, 1, 100, baseTime)
		mustRecord(t, s, 2, 103, baseTime.Add(time.Minute))
		mustUpsert(t, s, 3, "без игр", baseTime)
		mustUpsert(t, s, 4, "приглашенный", baseTime)

		// Бонус 5 поднимает игрока 1 выше игрока 2
		if _, err := s.AttributeReferral(ctx, ReferralAttribution{ReferrerID: 1, NewUserID: 4, Reward: 5, Window: week, Now: baseTime}); err != nil {
			t.Fatalf("AttributeReferral: %v", err)
		}

		top, err := s.TopByProfile(ctx, 10)
		if err != nil {
			t.Fatalf("TopByProfile: %v", err)
		}
		if len(top) != 2 {
			t.Fatalf("len(top) = %d, ожидалось 2: %+v", len(top), top)
		}
		if top[0].TelegramID != 1 || top[0].Score != 105 || top[0].Bonus != 5 || top[0].BestScore != 100 {
			t.Errorf("top[0] = %+v", top[0])
		}
		if top[1].TelegramID != 2 || top[1].Score != 103 {
			t.Errorf("top[1] = %+v", top[1])
		}
	})
}

func TestDBTime_Scan(t *testing.T) {
	tests := []struct {
		name string
		src  interface{}
		want time.Time
	}{
		{"time", baseTime, baseTime},
		{"fixed layout", baseTime.Format(sqlTimeLayout), baseTime},
		{"rfc3339", baseTime.Format(time.RFC3339Nano), baseTime},
		{"bytes", []byte(baseTime.Format(sqlTimeLayout)), baseTime},
		{"nil", nil, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got dbTime
			if err := got.Scan(tt.src); err != nil {
				t.Fatalf("Scan() error: %v", err)
			}
			if !got.Time.Equal(tt.want) {
				t.Errorf("Scan() = %v, ожидалось %v", got.Time, tt.want)
			}
		})
	}

	var bad dbTime
	if err := bad.Scan("вчера"); err == nil {
		t.Error("Scan() не вернул ошибку для некорректной строки")
	}
}
