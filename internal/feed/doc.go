// Package feed consumes the remote indexing feed.
//
// When the index backend is kafka-master, this process owns the index and
// other cluster members publish their index changes as JSON records on a
// Kafka topic. A Listener polls the topic through a consumer group, applies
// each record with UpdateIndex or RemoveFromIndex and commits offsets once
// the batch is applied.
package feed
