package models

import (
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx/types"
)

// DraftStatus is the sub-state machine of a staged change carried inside a
// COURSE_CHANGE workflow instance.
type DraftStatus string

const (
	DraftStatusDraft           DraftStatus = "DRAFT"
	DraftStatusPendingApproval DraftStatus = "PENDING_APPROVAL"
	DraftStatusApproved        DraftStatus = "APPROVED"
	DraftStatusRejected        DraftStatus = "REJECTED"
)

// DraftOperation determines what approval does to the governed record.
type DraftOperation string

const (
	DraftOpUpdate DraftOperation = "UPDATE"
	DraftOpDelete DraftOperation = "DELETE"
)

// DraftVersion is the current encoding version for ChangeDraft payloads.
const DraftVersion = 1

// ChangeDraft is the typed metadata payload of a change workflow. The
// instance doubles as the staging area for the proposed edit: old/new data
// ride along until the final approval applies them.
type ChangeDraft struct {
	Version   int             `json:"version"`
	Status    DraftStatus     `json:"status"`
	Operation DraftOperation  `json:"operation"`
	OldData   json.RawMessage `json:"old_data,omitempty"`
	NewData   json.RawMessage `json:"new_data,omitempty"`
}

// DecodeChangeDraft parses instance metadata into a ChangeDraft, applying
// defaults for fields older encodings omit.
func DecodeChangeDraft(raw types.JSONText) (*ChangeDraft, error) {
	draft := &ChangeDraft{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, draft); err != nil {
			return nil, fmt.Errorf("decode change draft: %w", err)
		}
	}
	if draft.Version == 0 {
		draft.Version = DraftVersion
	}
	if draft.Status == "" {
		draft.Status = DraftStatusDraft
	}
	if draft.Operation == "" {
		draft.Operation = DraftOpUpdate
	}
	return draft, nil
}

// Encode serialises the draft back into instance metadata.
func (d *ChangeDraft) Encode() (types.JSONText, error) {
	if d.Version == 0 {
		d.Version = DraftVersion
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode change draft: %w", err)
	}
	return types.JSONText(raw), nil
}
