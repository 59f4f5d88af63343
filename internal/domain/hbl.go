package domain

import "strings"

// DestuffResult is the outcome an operator records against an hbl
type DestuffResult struct {
	Document string `bson:"document,omitempty" json:"document,omitempty"`
	Image    string `bson:"image,omitempty" json:"image,omitempty"`
	Note     string `bson:"note,omitempty" json:"note,omitempty"`
	OnHold   bool   `bson:"onHold" json:"onHold"`
}

// HblDestuffStatus is the canonical per-hbl record for one plan container.
// Empty strings and nil pointers mean the value is unknown.
type HblDestuffStatus struct {
	HblID               string         `bson:"hblId" json:"hblId"`
	HblCode             string         `bson:"hblCode" json:"hblCode"`
	PackingListID       string         `bson:"packingListId,omitempty" json:"packingListId,omitempty"`
	PackingListNo       string         `bson:"packingListNo,omitempty" json:"packingListNo,omitempty"`
	BypassStorageFlag   *bool          `bson:"bypassStorageFlag,omitempty" json:"bypassStorageFlag,omitempty"`
	DestuffStatus       DestuffStatus  `bson:"destuffStatus" json:"destuffStatus"`
	InspectionSessionID string         `bson:"inspectionSessionId,omitempty" json:"inspectionSessionId,omitempty"`
	DestuffResult       *DestuffResult `bson:"destuffResult,omitempty" json:"destuffResult,omitempty"`
}

// BypassStorage returns the effective flag, which defaults to false
func (h HblDestuffStatus) BypassStorage() bool {
	return h.BypassStorageFlag != nil && *h.BypassStorageFlag
}

// HasPackingList reports whether a destuff operation may begin
func (h HblDestuffStatus) HasPackingList() bool {
	return h.PackingListID != ""
}

// Clone returns a copy that shares no pointers with h
func (h HblDestuffStatus) Clone() HblDestuffStatus {
	out := h
	if h.BypassStorageFlag != nil {
		flag := *h.BypassStorageFlag
		out.BypassStorageFlag = &flag
	}
	if h.DestuffResult != nil {
		result := *h.DestuffResult
		out.DestuffResult = &result
	}
	return out
}

// Equal compares two records field by field
func (h HblDestuffStatus) Equal(other HblDestuffStatus) bool {
	if h.HblID != other.HblID ||
		h.HblCode != other.HblCode ||
		h.PackingListID != other.PackingListID ||
		h.PackingListNo != other.PackingListNo ||
		h.DestuffStatus != other.DestuffStatus ||
		h.InspectionSessionID != other.InspectionSessionID {
		return false
	}
	if (h.BypassStorageFlag == nil) != (other.BypassStorageFlag == nil) {
		return false
	}
	if h.BypassStorageFlag != nil && *h.BypassStorageFlag != *other.BypassStorageFlag {
		return false
	}
	if (h.DestuffResult == nil) != (other.DestuffResult == nil) {
		return false
	}
	return h.DestuffResult == nil || *h.DestuffResult == *other.DestuffResult
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// RawHblRecord is an hbl row as collaborators deliver it. Identity and code
// travel under several field names depending on the producing endpoint.
type RawHblRecord struct {
	HblID               string         `json:"hblId,omitempty"`
	ID                  string         `json:"id,omitempty"`
	HblCode             string         `json:"hblCode,omitempty"`
	Code                string         `json:"code,omitempty"`
	PackingListID       string         `json:"packingListId,omitempty"`
	PackingListNo       string         `json:"packingListNo,omitempty"`
	BypassStorageFlag   *bool          `json:"bypassStorageFlag,omitempty"`
	DestuffStatus       string         `json:"destuffStatus,omitempty"`
	InspectionSessionID string         `json:"inspectionSessionId,omitempty"`
	DestuffResult       *DestuffResult `json:"destuffResult,omitempty"`
}

// Identity resolves the hbl id: explicit hblId, then id. Empty means the row has no identity.
func (r RawHblRecord) Identity() string {
	if id := strings.TrimSpace(r.HblID); id != "" {
		return id
	}
	return strings.TrimSpace(r.ID)
}

// DisplayCode resolves the display code: hblCode, then code, then the identity
func (r RawHblRecord) DisplayCode() string {
	if code := strings.TrimSpace(r.HblCode); code != "" {
		return code
	}
	if code := strings.TrimSpace(r.Code); code != "" {
		return code
	}
	return r.Identity()
}

// NormalizeHbl converts a raw row into the canonical record. ok is false
// when the row carries no usable identity.
func NormalizeHbl(raw RawHblRecord) (HblDestuffStatus, bool) {
	id := raw.Identity()
	if id == "" {
		return HblDestuffStatus{}, false
	}

	record := HblDestuffStatus{
		HblID:               id,
		HblCode:             raw.DisplayCode(),
		PackingListID:       strings.TrimSpace(raw.PackingListID),
		PackingListNo:       strings.TrimSpace(raw.PackingListNo),
		DestuffStatus:       ParseDestuffStatus(raw.DestuffStatus),
		InspectionSessionID: strings.TrimSpace(raw.InspectionSessionID),
	}
	if raw.BypassStorageFlag != nil {
		record.BypassStorageFlag = BoolPtr(*raw.BypassStorageFlag)
	}
	if raw.DestuffResult != nil {
		result := *raw.DestuffResult
		record.DestuffResult = &result
	}
	return record, true
}

// NormalizeLive converts collaborator-reported rows, dropping rows without identity
func NormalizeLive(rows []RawHblRecord) []HblDestuffStatus {
	out := make([]HblDestuffStatus, 0, len(rows))
	for _, raw := range rows {
		if record, ok := NormalizeHbl(raw); ok {
			out = append(out, record)
		}
	}
	return out
}

// BuildBaseline derives the baseline hbl set from a container manifest.
// The first occurrence of each identity wins. Every row starts waiting with
// no packing list, flag, session or result.
func BuildBaseline(manifest []RawHblRecord) []HblDestuffStatus {
	seen := make(map[string]struct{}, len(manifest))
	baseline := make([]HblDestuffStatus, 0, len(manifest))

	for _, raw := range manifest {
		id := raw.Identity()
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		baseline = append(baseline, HblDestuffStatus{
			HblID:         id,
			HblCode:       raw.DisplayCode(),
			DestuffStatus: DestuffStatusWaiting,
		})
	}
	return baseline
}

// HblIDs returns the ids of rows in order
func HblIDs(rows []HblDestuffStatus) []string {
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.HblID
	}
	return ids
}

// FindHbl returns the index of the row with id, or -1
func FindHbl(rows []HblDestuffStatus, id string) int {
	for i := range rows {
		if rows[i].HblID == id {
			return i
		}
	}
	return -1
}
