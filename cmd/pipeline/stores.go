package main

import (
	"flashcard-pipeline/internal/infra/adapter/persistence/postgres"
	"flashcard-pipeline/internal/infra/adapter/persistence/sqlite"
	"flashcard-pipeline/internal/infra/db"
	"flashcard-pipeline/internal/repository"
)

// storeSet bundles the three persistence stores for one dialect.
type storeSet struct {
	cache      repository.CacheStore
	results    repository.ResultStore
	quarantine repository.QuarantineStore
}

// newStores picks the store implementations matching the opened database.
func newStores(q repository.Querier, dialect db.Dialect) storeSet {
	if dialect == db.DialectPostgres {
		return storeSet{
			cache:      postgres.NewCacheRepo(q),
			results:    postgres.NewResultRepo(q),
			quarantine: postgres.NewQuarantineRepo(q),
		}
	}
	return storeSet{
		cache:      sqlite.NewCacheRepo(q),
		results:    sqlite.NewResultRepo(q),
		quarantine: sqlite.NewQuarantineRepo(q),
	}
}
