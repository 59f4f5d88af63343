package domain

// Resolve merges live per-hbl progress into the baseline set.
//
// With no live rows the baseline is returned unchanged. Otherwise every
// baseline row yields exactly one output row, in baseline order, where each
// value the matching live row carries overwrites the baseline value. Live
// rows with no baseline counterpart are ignored, and the first live row for
// an id wins. Resolve never mutates its inputs.
func Resolve(baseline, live []HblDestuffStatus) []HblDestuffStatus {
	if len(live) == 0 {
		return baseline
	}

	index := make(map[string]HblDestuffStatus, len(live))
	for _, row := range live {
		if _, exists := index[row.HblID]; !exists {
			index[row.HblID] = row
		}
	}

	merged := make([]HblDestuffStatus, len(baseline))
	for i, base := range baseline {
		row := base.Clone()
		if update, ok := index[base.HblID]; ok {
			overlay(&row, update)
		}
		merged[i] = row
	}
	return merged
}

func overlay(dst *HblDestuffStatus, src HblDestuffStatus) {
	if src.HblCode != "" {
		dst.HblCode = src.HblCode
	}
	if src.PackingListID != "" {
		dst.PackingListID = src.PackingListID
	}
	if src.PackingListNo != "" {
		dst.PackingListNo = src.PackingListNo
	}
	if src.BypassStorageFlag != nil {
		dst.BypassStorageFlag = BoolPtr(*src.BypassStorageFlag)
	}
	if src.DestuffStatus != "" {
		dst.DestuffStatus = src.DestuffStatus
	}
	if src.InspectionSessionID != "" {
		dst.InspectionSessionID = src.InspectionSessionID
	}
	if src.DestuffResult != nil {
		result := *src.DestuffResult
		dst.DestuffResult = &result
	}
}
