// Package pg stores deferred writes in PostgreSQL and applies them to a jsonb document table,
// using the pgx/v5 driver and goose/v3 migrations.
//
// # Architecture
//
//   - Config: pool limits, retry and migration settings populated from PG_* environment
//     variables.
//   - Connect: opens a *pgxpool.Pool, retrying with a linearly growing delay.
//   - Migrate: applies the embedded migrations that create the write_queue and documents tables.
//   - QueueStorage: implements queue.EnqueuerRepository and queue.ProcessorRepository.
//     The claim locks the row with SELECT ... FOR UPDATE and updates it in the same
//     transaction; every other transition is an UPDATE guarded by the expected state.
//   - DocumentWriter: implements queue.Writer as an upsert on (collection, id). Merge writes
//     concatenate jsonb objects, overwrite writes replace the data column.
//
// # Usage
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//		return err
//	}
//
//	storage, _ := pg.NewQueueStorage(pool, "")
//	writer, _ := pg.NewDocumentWriter(pool, "")
//	processor, _ := queue.NewProcessor(storage, writer)
//
// # Error Handling
//
// IsNotFoundError and IsDuplicateKeyError classify pgx errors. Storage methods translate them
// into queue.ErrEntryNotFound and queue.ErrEntryExists.
package pg
