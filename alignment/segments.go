package alignment

const minSegmentScore = 0.3

// bestSegment picks the fillable slot in clause that best suits term, or nil
// when no slot scores above minSegmentScore.
func bestSegment(term *ExtractedTerm, clause *AnalyzedClause) *FillableSegment {
	var (
		best      *FillableSegment
		bestScore float64
	)
	for i := range clause.FillableSegments {
		seg := &clause.FillableSegments[i]
		if score := scoreSegment(term, seg); score > bestScore {
			best, bestScore = seg, score
		}
	}
	if bestScore > minSegmentScore {
		return best
	}
	return nil
}

// scoreSegment gives 0.5 for a compatible value type plus up to 0.5 for the
// share of category keywords present around the slot.
func scoreSegment(term *ExtractedTerm, seg *FillableSegment) float64 {
	score := 0.0
	if fillableTypeCompatible(term.Category, seg.ExpectedType) {
		score += 0.5
	}
	keywords := categorySegmentKeywords[term.Category]
	if len(keywords) == 0 {
		return score
	}
	context := normalizeKey(seg.Context())
	hits := 0
	for _, kw := range keywords {
		if containsKeyword(context, normalizeKey(kw)) {
			hits++
		}
	}
	return score + 0.5*float64(hits)/float64(len(keywords))
}
