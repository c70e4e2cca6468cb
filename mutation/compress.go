package mutation

import "github.com/hazyhaar/playerwatch/dom"

// Compress folds runs of consecutive attribute records on the same
// (target, attribute) into one, keeping the OldValue of the first.
// Child-list records are structural and never folded.
//
// Folding keeps the first record of a run in position, so rules that look
// at records[0] see the same kind, target and attribute either way.
func Compress(records []dom.Mutation) []dom.Mutation {
	if len(records) <= 1 {
		return records
	}

	result := make([]dom.Mutation, 0, len(records))

	for i := 0; i < len(records); i++ {
		rec := records[i]
		if rec.Kind != dom.KindAttributes {
			result = append(result, rec)
			continue
		}
		j := i + 1
		for j < len(records) &&
			records[j].Kind == dom.KindAttributes &&
			records[j].AttributeName == rec.AttributeName &&
			dom.Same(records[j].Target, rec.Target) {
			j++
		}
		result = append(result, rec)
		i = j - 1
	}

	return result
}
