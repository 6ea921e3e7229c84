package pe

// MergeStatic combines the static descriptors of the current scan with the
// ones recovered from a previous override section. Fresh records come
// first so the live directory decides the order; survivors of earlier runs
// are kept behind them.
func MergeStatic(fresh, prior []ImportDescriptor) []ImportDescriptor {
	return mergeDescriptors(fresh, prior)
}

// MergeDynamic combines the dynamic descriptors recorded by previous runs
// with the newly classified ones. Prior records come first: once a module
// is externalized it no longer shows up in the directory, and the dynamic
// section is the only place its descriptors survive.
func MergeDynamic(prior, fresh []ImportDescriptor) []ImportDescriptor {
	return mergeDescriptors(prior, fresh)
}

// mergeDescriptors concatenates tables and drops exact duplicates, keeping
// the first occurrence. Sentinel records are never kept.
func mergeDescriptors(tables ...[]ImportDescriptor) []ImportDescriptor {
	total := 0
	for _, t := range tables {
		total += len(t)
	}

	seen := make(map[ImportDescriptor]struct{}, total)
	merged := make([]ImportDescriptor, 0, total)
	for _, t := range tables {
		for _, desc := range t {
			if desc.IsZero() {
				continue
			}
			if _, dup := seen[desc]; dup {
				continue
			}
			seen[desc] = struct{}{}
			merged = append(merged, desc)
		}
	}

	return merged
}
