package common

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log общий логгер сервиса
var Log = logrus.New()

// InitLogger настраивает уровень и формат логов
func InitLogger(level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
	Log.SetOutput(os.Stdout)

	if format == "json" {
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
}

// Component возвращает логгер с тегом компонента, например "REFERRAL_SERVICE"
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
