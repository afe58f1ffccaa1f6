// Package mongo implements store.Store on the official MongoDB driver.
// Claims are a single FindOneAndUpdate, which MongoDB applies atomically
// to one document.
//
// The caller owns the client lifecycle and mongo never disconnects it:
//
//	client, _ := mongod.Connect(options.Client().ApplyURI(uri))
//	s := mongo.New(client.Database("dios"))
//	err := s.Migrate(ctx)
package mongo
