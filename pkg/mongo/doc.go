// Package mongo stores deferred writes in MongoDB and applies them to MongoDB documents.
//
// QueueStorage implements queue.EnqueuerRepository and queue.ProcessorRepository on top of a
// single collection. Claims, lease resets and terminal transitions are conditional updates
// filtered on the state the transition starts from, so concurrent drains never both win the
// same entry. EnsureIndexes creates the indexes the due and expired-lease queries rely on.
// Documents in the collection that do not decode into an entry are logged and moved to
// FAILED by the queries that meet them, so they never block a drain.
//
// DocumentWriter implements queue.Writer. Merge writes use $set with upsert, overwrite
// writes replace the document with upsert. Nested collection paths ("users/42/devices")
// map to dotted collection names ("users.42.devices").
//
// # Usage
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//
//	db, err := mongo.NewWithDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//
//	storage, _ := mongo.NewQueueStorage(db, "write_queue")
//	if err := storage.EnsureIndexes(ctx); err != nil {
//		return err
//	}
//	writer, _ := mongo.NewDocumentWriter(db)
//	processor, _ := queue.NewProcessor(storage, writer)
//
// Connection failures are wrapped in package errors (ErrFailedToConnectToMongo,
// ErrHealthcheckFailed) which can be checked with errors.Is.
package mongo
