package common

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScoresSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foxgem_scores_submitted_total",
		Help: "Количество сохраненных результатов игр",
	})

	ReferralsAttributed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foxgem_referrals_attributed_total",
		Help: "Попытки начисления реферальных бонусов по результату",
	}, []string{"result"})

	ReferralWindowResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foxgem_referral_window_resets_total",
		Help: "Ленивые сбросы реферального бонуса при начислении",
	})

	BonusSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foxgem_bonus_sweeps_total",
		Help: "Запуски еженедельного обнуления бонусов",
	}, []string{"result"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foxgem_notifications_total",
		Help: "Отправленные уведомления по результату",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "foxgem_http_request_duration_seconds",
		Help:    "Длительность обработки HTTP запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
