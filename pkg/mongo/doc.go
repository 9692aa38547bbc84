// Package mongo creates MongoDB clients with mongo-driver/v2.
//
// New connects with retry and verifies the connection with a ping;
// NewWithDatabase returns a handle to the configured database, which is what
// notifications.NewMongoStorage expects:
//
//	db, err := mongo.NewWithDatabase(ctx, cfg, "")
//	if err != nil {
//		return err
//	}
//	defer db.Client().Disconnect(context.Background())
//
//	store := notifications.NewMongoStorage(db)
//	if err := store.EnsureIndexes(ctx); err != nil {
//		return err
//	}
//
// The live insert feed relies on change streams, so the server must run as a
// replica set (a single-node replica set is enough for development).
//
// Healthcheck returns a check closure. Configuration comes from environment
// variables, see the tags on Config.
package mongo
