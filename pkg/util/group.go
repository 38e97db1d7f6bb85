package util

// GroupBy buckets items by the key the mapper derives from each item.
// Insertion order within a bucket follows the input slice, which keeps
// downstream iteration deterministic per group.
func GroupBy[K comparable, T any](items []T, mapper func(T) K) map[K][]T {
	grouped := make(map[K][]T)
	for _, item := range items {
		key := mapper(item)
		grouped[key] = append(grouped[key], item)
	}
	return grouped
}
