package materialize

import "strings"

// Stock computes the binary availability vector erpcache stores at
// availability:<itemCode>. Its length always equals len(reference); a
// reference warehouse with no canonically-matching entry in reported gets
// 0. Names in reported that match nothing in reference are returned
// separately so the caller can log them ("not in reference") without this
// package taking a logging dependency.
func Stock(reported []string, reference []string) (availability []int, unmatched []string) {
	availability = make([]int, len(reference))

	canonicalReference := make([]string, len(reference))
	for i, w := range reference {
		canonicalReference[i] = canonicalWarehouseName(w)
	}

	for _, r := range reported {
		canonicalReported := canonicalWarehouseName(r)

		matched := false
		for i, ref := range canonicalReference {
			if warehouseMatches(canonicalReported, ref) {
				availability[i] = 1
				matched = true
			}
		}
		if !matched {
			unmatched = append(unmatched, r)
		}
	}

	return availability, unmatched
}

// canonicalWarehouseName lowercases and trims a warehouse name and strips
// ERP's trailing " - <company abbreviation>" qualifier, e.g. "Homs Store -
// P" becomes "homs store", so that suffix never breaks matching against
// the plain warehouses:reference names.
func canonicalWarehouseName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if idx := strings.LastIndex(s, " - "); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// warehouseMatches reports whether a canonicalized ERP-reported warehouse
// name refers to a canonicalized reference warehouse: exact match, or the
// reported name is the reference name plus a trailing qualifier word (e.g.
// reported "homs store" against reference "homs").
func warehouseMatches(reportedCanonical, referenceCanonical string) bool {
	if referenceCanonical == "" {
		return false
	}
	if reportedCanonical == referenceCanonical {
		return true
	}
	return strings.HasPrefix(reportedCanonical, referenceCanonical+" ")
}
