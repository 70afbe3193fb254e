// Package docdex is an embeddable document database: schemaless documents
// with a query language, secondary, geospatial and text indexes, and an
// aggregation pipeline. Data lives in memory and can be mirrored into Redis,
// Valkey or an S3-compatible object store.
//
// # Low-level API
//
//	client, _ := docdex.Open(ctx)
//	users := client.Database().Collection("users")
//	id, _ := users.InsertOne(ctx, docdex.D{{"name", "Alice"}, {"age", 30}})
//	docs, _ := users.Find(docdex.M{"age": docdex.M{"$gt": 25}}).
//	    Sort(docdex.D{{"age", -1}}).
//	    Limit(10).
//	    All(ctx)
//
// # Typed API with Go generics
//
//	type User struct {
//	    ID   string `docdex:"_id,omitempty"`
//	    Name string `docdex:"name"`
//	    Age  int    `docdex:"age"`
//	}
//
//	typed := docdex.NewTyped[User](client.Database().Collection("users"))
//	_, _ = typed.InsertOne(ctx, User{Name: "Bob", Age: 41})
//	adults, _ := typed.Find(docdex.M{"age": docdex.M{"$gte": 18}}).All(ctx)
package docdex
