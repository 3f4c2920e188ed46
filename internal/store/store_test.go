package store

import "github.com/sells-group/siteplan/internal/config"

func configWithDriver(driver string) config.StoreConfig {
	return config.StoreConfig{Driver: driver, DatabaseURL: ":memory:"}
}
