// Package natskv implements store.Store on NATS JetStream key-value
// buckets, one bucket per entity.
//
// KV buckets have no multi-key transactions, so a claim is optimistic: the
// store scans the job bucket, orders candidates newest first and assigns
// the first one with a revision-checked Update. A revision conflict means
// another writer touched the job; that entry alone is re-read and, if it
// is still a candidate, retried up to a fixed bound before ErrRevisionConflict
// is returned. Two claimants can therefore never both win the same job.
//
// Cost: the bucket has no secondary indexes, so ClaimJob and FindActiveJob
// each list the job keys and read every entry, one Get per key. A single
// engine claim that rolls back k incompatible jobs issues k+1 such scans
// against N jobs. The backend suits modest job counts; prefer postgres or
// mongo when the job bucket grows into the tens of thousands.
//
// The caller owns the NATS connection:
//
//	nc, _ := nats.Connect(url)
//	js, _ := jetstream.New(nc)
//	s, err := natskv.New(ctx, js)
package natskv
