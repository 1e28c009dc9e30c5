// loadTest нагрузочное тестирование хранилища через сервисы игры:
// параллельные игроки отправляют результаты, читают таблицу лидеров и приглашают друзей.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"foxgem/app"
	"foxgem/common"
	"foxgem/leaderboard"
	"foxgem/referralLink"
	"foxgem/scores"
	"foxgem/storage"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// LoadTestConfig конфигурация нагрузочного тестирования
type LoadTestConfig struct {
	Duration        time.Duration // Продолжительность теста
	ConcurrentUsers int           // Количество одновременных игроков
	ReadWeight      int           // Вес чтения таблицы лидеров
	WriteWeight     int           // Вес отправки результата
	ReferralWeight  int           // Вес перехода по реферальной ссылке
	Pause           time.Duration // Максимальная пауза между операциями
}

// LoadTestStats статистика нагрузочного тестирования
type LoadTestStats struct {
	TotalOperations     int64
	ReadOperations      int64
	WriteOperations     int64
	ReferralOperations  int64
	Errors              int64
	AverageResponseTime time.Duration
	MaxResponseTime     time.Duration
	MinResponseTime     time.Duration
	StartTime           time.Time
	EndTime             time.Time

	total time.Duration
}

type operation string

const (
	opRead     operation = "read"
	opWrite    operation = "write"
	opReferral operation = "referral"
)

// firstPlayerID идентификаторы тестовых игроков начинаются отсюда
const firstPlayerID = 1_000_000

type loadTest struct {
	config    LoadTestConfig
	scores    *scores.Service
	referrals *referralLink.ReferralService
	board     *leaderboard.Aggregator
	log       *logrus.Entry

	mu    sync.Mutex
	stats LoadTestStats
}

func newLoadTest(config LoadTestConfig, store storage.Store, cfg *common.Config) *loadTest {
	referrals := referralLink.NewReferralService(store, referralLink.Options{
		Enabled:     true,
		Reward:      cfg.ReferralBonusAmount,
		Window:      cfg.ReferralWindow(),
		LinkBaseURL: cfg.ReferralLinkBaseURL,
	}, nil)

	return &loadTest{
		config:    config,
		scores:    scores.NewService(store, referrals, nil),
		referrals: referrals,
		board:     leaderboard.NewAggregator(store, cfg.LeaderboardMode, cfg.LeaderboardLimit),
		log:       common.Component("LOAD_TEST"),
	}
}

var config LoadTestConfig

var rootCmd = &cobra.Command{
	Use:           "loadtest",
	Short:         "Нагрузочное тестирование хранилища FoxGem",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.DurationVar(&config.Duration, "duration", 5*time.Minute, "продолжительность теста")
	flags.IntVar(&config.ConcurrentUsers, "users", 200, "одновременных игроков")
	flags.IntVar(&config.ReadWeight, "read", 5, "вес чтения таблицы лидеров")
	flags.IntVar(&config.WriteWeight, "write", 4, "вес отправки результатов")
	flags.IntVar(&config.ReferralWeight, "referral", 1, "вес реферальных переходов")
	flags.DurationVar(&config.Pause, "pause", 100*time.Millisecond, "максимальная пауза между операциями")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		common.Log.Errorf("LOAD_TEST: %v", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	common.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	lt := newLoadTest(config, store, cfg)
	lt.log.Info("🚀 Запуск нагрузочного тестирования")
	lt.log.Infof("📊 Продолжительность: %v, игроков: %d, чтение=%d запись=%d рефералы=%d",
		config.Duration, config.ConcurrentUsers, config.ReadWeight, config.WriteWeight, config.ReferralWeight)

	stats := lt.Run(ctx)
	lt.printResults(stats)
	return nil
}

// Run запускает игроков и ждет окончания теста или отмены ctx
func (lt *loadTest) Run(ctx context.Context) LoadTestStats {
	ctx, cancel := context.WithTimeout(ctx, lt.config.Duration)
	defer cancel()

	lt.mu.Lock()
	lt.stats = LoadTestStats{StartTime: time.Now()}
	lt.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < lt.config.ConcurrentUsers; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			lt.simulatePlayer(ctx, clientID)
		}(i)
	}
	wg.Wait()

	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.stats.EndTime = time.Now()
	if lt.stats.TotalOperations > 0 {
		lt.stats.AverageResponseTime = lt.stats.total / time.Duration(lt.stats.TotalOperations)
	}
	lt.log.Info("✅ Нагрузочное тестирование завершено")
	return lt.stats
}

func (lt *loadTest) simulatePlayer(ctx context.Context, clientID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(clientID)))
	playerID := int64(firstPlayerID + clientID)

	for ctx.Err() == nil {
		op := lt.selectOperation(rng)

		start := time.Now()
		err := lt.perform(ctx, op, playerID, rng)
		lt.updateStats(op, time.Since(start), err)

		if lt.config.Pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(rng.Int63n(int64(lt.config.Pause)))):
			}
		}
	}
}

func (lt *loadTest) selectOperation(rng *rand.Rand) operation {
	total := lt.config.ReadWeight + lt.config.WriteWeight + lt.config.ReferralWeight
	if total <= 0 {
		return opWrite
	}
	n := rng.Intn(total)
	switch {
	case n < lt.config.ReadWeight:
		return opRead
	case n < lt.config.ReadWeight+lt.config.WriteWeight:
		return opWrite
	default:
		return opReferral
	}
}

func (lt *loadTest) perform(ctx context.Context, op operation, playerID int64, rng *rand.Rand) error {
	switch op {
	case opRead:
		_, err := lt.board.Top(ctx)
		return err
	case opWrite:
		score := rng.Int63n(10_000)
		_, err := lt.scores.Submit(ctx, scores.SubmitRequest{
			UserID:      playerID,
			DisplayName: fmt.Sprintf("loadtest_%d", playerID),
			Score:       &score,
		})
		return err
	case opReferral:
		return lt.referral(ctx, playerID, rng)
	default:
		return fmt.Errorf("неизвестная операция: %s", op)
	}
}

// referral создает нового игрока и приглашает его по коду playerID.
// Повторное приглашение не считается ошибкой.
func (lt *loadTest) referral(ctx context.Context, playerID int64, rng *rand.Rand) error {
	if _, err := lt.scores.SaveUser(ctx, common.ProfileUpdate{TelegramID: playerID}); err != nil {
		return err
	}
	code, err := lt.referrals.IssueReferralCode(ctx, playerID)
	if err != nil {
		return err
	}

	invited := firstPlayerID*10 + rng.Int63n(firstPlayerID)
	if _, err := lt.scores.SaveUser(ctx, common.ProfileUpdate{TelegramID: invited}); err != nil {
		return err
	}
	_, err = lt.referrals.AttributeReferral(ctx, code, invited)
	if common.ErrorCode(err) == common.CodeAlreadyAttributed {
		return nil
	}
	return err
}

func (lt *loadTest) updateStats(op operation, duration time.Duration, err error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	s := &lt.stats
	s.TotalOperations++
	switch op {
	case opRead:
		s.ReadOperations++
	case opWrite:
		s.WriteOperations++
	case opReferral:
		s.ReferralOperations++
	}

	if err != nil {
		s.Errors++
		lt.log.Debugf("Ошибка операции %s: %v", op, err)
	}

	s.total += duration
	if s.TotalOperations == 1 || duration < s.MinResponseTime {
		s.MinResponseTime = duration
	}
	if duration > s.MaxResponseTime {
		s.MaxResponseTime = duration
	}
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func (lt *loadTest) printResults(s LoadTestStats) {
	duration := s.EndTime.Sub(s.StartTime)
	opsPerSecond := float64(s.TotalOperations) / duration.Seconds()
	errorRate := percent(s.Errors, s.TotalOperations)

	lt.log.Info("📊 РЕЗУЛЬТАТЫ НАГРУЗОЧНОГО ТЕСТИРОВАНИЯ")
	lt.log.Infof("⏱️  Общее время теста: %v", duration.Round(time.Millisecond))
	lt.log.Infof("🔄 Всего операций: %d (%.2f в секунду)", s.TotalOperations, opsPerSecond)
	lt.log.Infof("📖 Чтение таблицы лидеров: %d (%.1f%%)", s.ReadOperations, percent(s.ReadOperations, s.TotalOperations))
	lt.log.Infof("✍️  Отправка результатов: %d (%.1f%%)", s.WriteOperations, percent(s.WriteOperations, s.TotalOperations))
	lt.log.Infof("👥 Реферальные переходы: %d (%.1f%%)", s.ReferralOperations, percent(s.ReferralOperations, s.TotalOperations))
	lt.log.Infof("❌ Ошибок: %d (%.2f%%)", s.Errors, errorRate)
	lt.log.Infof("⏱️  Время ответа: среднее %v, макс %v, мин %v", s.AverageResponseTime, s.MaxResponseTime, s.MinResponseTime)

	switch {
	case opsPerSecond > 1000:
		lt.log.Info("🟢 ОТЛИЧНО: хранилище справляется с высокой нагрузкой")
	case opsPerSecond > 500:
		lt.log.Info("🟡 ХОРОШО: хранилище работает стабильно")
	case opsPerSecond > 100:
		lt.log.Info("🟠 УДОВЛЕТВОРИТЕЛЬНО: хранилищу может потребоваться оптимизация")
	default:
		lt.log.Warn("🔴 ПЛОХО: хранилище не справляется с нагрузкой")
	}

	if errorRate < 1 {
		lt.log.Info("🟢 ОТЛИЧНО: очень низкий уровень ошибок")
	} else if errorRate < 5 {
		lt.log.Info("🟡 ХОРОШО: приемлемый уровень ошибок")
	} else {
		lt.log.Warn("🔴 ПЛОХО: высокий уровень ошибок")
	}
}
