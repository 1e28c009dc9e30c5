package storage

import (
	"fmt"

	"foxgem/common"
)

// Open создает хранилище по STORE_DRIVER
func Open(cfg *common.Config) (Store, error) {
	log := common.Component("STORAGE")

	switch cfg.StoreDriver {
	case common.StoreDriverPostgres:
		log.Infof("Подключение к PostgreSQL %s:%d/%s", cfg.PGHost, cfg.PGPort, cfg.PGDBName)
		return OpenPostgres(cfg.PostgresDSN())
	case common.StoreDriverSQLite:
		log.Infof("Открытие SQLite %s", cfg.SQLitePath)
		return OpenSQLite(cfg.SQLitePath)
	case common.StoreDriverMemory:
		log.Warn("Используется хранилище в памяти, данные не сохраняются между запусками")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("неизвестный драйвер хранилища %q", cfg.StoreDriver)
	}
}
