package telegram_bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"foxgem/common"
	"foxgem/leaderboard"
	"foxgem/referralLink"
	"foxgem/scores"
	"foxgem/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// fakeMessenger запоминает отправленные сообщения
type fakeMessenger struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeMessenger) SendMessage(ctx context.Context, chatID int64, text string, opts ...MessageOption) error {
	msg := tgbotapi.NewMessage(chatID, text)
	for _, opt := range opts {
		opt(&msg)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeMessenger) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("сообщения не отправлялись")
	}
	return f.sent[len(f.sent)-1]
}

// blockingSender никогда не отвечает, пока не закрыт release
type blockingSender struct {
	release chan struct{}
}

func (s *blockingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	<-s.release
	return tgbotapi.Message{}, nil
}

type funcSender func(c tgbotapi.Chattable) (tgbotapi.Message, error)

func (f funcSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) { return f(c) }

func TestTelegramMessenger_SendMessage(t *testing.T) {
	var got tgbotapi.MessageConfig
	m := &TelegramMessenger{api: funcSender(func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
		got = c.(tgbotapi.MessageConfig)
		return tgbotapi.Message{}, nil
	})}

	if err := m.SendMessage(context.Background(), 42, "<b>привет</b>", WithPlayButton("https://example.com/game")); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got.ChatID != 42 || got.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("сообщение = %+v", got)
	}
	if _, ok := got.ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup); !ok {
		t.Errorf("нет кнопки игры: %#v", got.ReplyMarkup)
	}
}

func TestTelegramMessenger_ContextTimeout(t *testing.T) {
	s := &blockingSender{release: make(chan struct{})}
	defer close(s.release)
	m := &TelegramMessenger{api: s}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := m.SendMessage(ctx, 1, "текст")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, ожидалось DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("SendMessage ждал %v", elapsed)
	}
}

func TestDispatcher_DoesNotBlock(t *testing.T) {
	s := &blockingSender{release: make(chan struct{})}
	defer close(s.release)
	d := NewDispatcher(&TelegramMessenger{api: s}, 200*time.Millisecond, true)

	start := time.Now()
	d.Dispatch(1, "уведомление")
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Dispatch блокировал вызывающего %v", elapsed)
	}

	// Отправка завершается по таймауту, даже если Bot API не отвечает
	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() не завершился после таймаута отправки")
	}
}

func TestDispatcher_SendFailure(t *testing.T) {
	m := &fakeMessenger{err: errors.New("chat not found")}
	d := NewDispatcher(m, time.Second, true)

	err := d.Send(context.Background(), 1, "текст")
	if !errors.Is(err, common.ErrNotificationFailure) {
		t.Fatalf("err = %v, ожидалось NOTIFICATION_FAILURE", err)
	}

	d.Dispatch(1, "текст")
	d.Wait()
	if len(m.sent) != 2 {
		t.Errorf("попыток отправки = %d, ожидалось 2", len(m.sent))
	}
}

func TestDispatcher_Disabled(t *testing.T) {
	m := &fakeMessenger{}
	d := NewDispatcher(m, time.Second, false)
	d.Dispatch(1, "текст")
	d.Wait()
	if len(m.sent) != 0 {
		t.Errorf("отключенный диспетчер отправил %d сообщений", len(m.sent))
	}
}

func newTestBot(t *testing.T) (*Bot, *fakeMessenger, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	referrals := referralLink.NewReferralService(store, referralLink.Options{
		Enabled:     true,
		Reward:      5,
		Window:      7 * 24 * time.Hour,
		LinkBaseURL: "https://t.me/FoxGemBot?startapp=ref_",
	}, nil)
	m := &fakeMessenger{}
	bot := NewBot(nil, m, BotDeps{
		Scores:    scores.NewService(store, referrals, nil),
		Referrals: referrals,
		Board:     leaderboard.NewAggregator(store, common.LeaderboardModeProfile, 10),
		GameURL:   "https://example.com/game",
	})
	return bot, m, store
}

func message(from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: from, FirstName: "Анна", UserName: "anna"},
		Chat: &tgbotapi.Chat{ID: from},
		Text: text,
	}
}

func TestBot_StartWithReferral(t *testing.T) {
	bot, m, store := newTestBot(t)
	ctx := context.Background()

	store.UpsertProfile(ctx, common.ProfileUpdate{TelegramID: 100}, time.Now())
	store.SetReferralCode(ctx, 100, "AB12CD")

	bot.HandleMessage(ctx, message(1, "/start ref_AB12CD"))

	reply := m.last(t)
	if !strings.Contains(reply.Text, "Привет, anna") || !strings.Contains(reply.Text, "по приглашению") {
		t.Errorf("ответ = %q", reply.Text)
	}

	referrer, _ := store.GetProfile(ctx, 100)
	if referrer.ReferralCount != 1 || referrer.ReferralBonus != 5 {
		t.Errorf("count=%d bonus=%d", referrer.ReferralCount, referrer.ReferralBonus)
	}

	// Повторный /start не начисляет бонус
	bot.HandleMessage(ctx, message(1, "/start ref_AB12CD"))
	referrer, _ = store.GetProfile(ctx, 100)
	if referrer.ReferralCount != 1 {
		t.Errorf("повторный /start: count=%d", referrer.ReferralCount)
	}
}

func TestBot_StartEscapesName(t *testing.T) {
	bot, m, _ := newTestBot(t)

	msg := message(3, "/start")
	msg.From.UserName = ""
	msg.From.FirstName = "Tom <3"
	bot.HandleMessage(context.Background(), msg)

	reply := m.last(t)
	if !strings.Contains(reply.Text, "Привет, Tom &lt;3!") {
		t.Errorf("ответ = %q", reply.Text)
	}
	if strings.Contains(reply.Text, "Tom <3") {
		t.Errorf("имя не экранировано: %q", reply.Text)
	}
}

func TestBot_Top(t *testing.T) {
	bot, m, store := newTestBot(t)
	ctx := context.Background()

	store.RecordScore(ctx, common.ProfileUpdate{TelegramID: 1, DisplayName: "Лиса"}, common.ScoreEntry{
		ID: "e1", TelegramID: 1, Score: 300, CreatedAt: time.Now(),
	})

	bot.HandleMessage(ctx, message(2, "/top@FoxGemBot"))
	if reply := m.last(t); !strings.Contains(reply.Text, "1. Лиса - <b>300</b>") {
		t.Errorf("ответ = %q", reply.Text)
	}
}

func TestBot_Ref(t *testing.T) {
	bot, m, store := newTestBot(t)
	ctx := context.Background()

	bot.HandleMessage(ctx, message(5, "/ref"))

	p, err := store.GetProfile(ctx, 5)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	reply := m.last(t)
	if p.ReferralCode == "" || !strings.Contains(reply.Text, "startapp=ref_"+p.ReferralCode) {
		t.Errorf("код=%q ответ=%q", p.ReferralCode, reply.Text)
	}
}

func TestBot_StatsAndHelp(t *testing.T) {
	bot, m, _ := newTestBot(t)
	ctx := context.Background()

	bot.HandleMessage(ctx, message(7, "/stats"))
	if reply := m.last(t); !strings.Contains(reply.Text, "ни одной игры") {
		t.Errorf("ответ = %q", reply.Text)
	}

	score := int64(120)
	if _, err := bot.scores.Submit(ctx, scores.SubmitRequest{UserID: 8, Score: &score}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	bot.HandleMessage(ctx, message(8, "/stats"))
	reply := m.last(t).Text
	if !strings.Contains(reply, "Лучший результат: <b>120</b>") || !strings.Contains(reply, "В игре с") {
		t.Errorf("ответ = %q", reply)
	}

	bot.HandleMessage(ctx, message(7, "привет"))
	if reply := m.last(t); !strings.Contains(reply.Text, "/top") {
		t.Errorf("ответ = %q", reply.Text)
	}
}

func TestParseCommand(t *testing.T) {
	tests := map[string]string{
		"/start ref_AB12CD": "start",
		"/TOP@FoxGemBot":    "top",
		"текст":             "",
		"":                  "",
	}
	for text, want := range tests {
		if got := parseCommand(text); got != want {
			t.Errorf("parseCommand(%q) = %q, ожидалось %q", text, got, want)
		}
	}
}
