package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/draftforge-ai/authoring-platform/internal/model"
)

// VersionLedger is the append-only list of document snapshots for one
// session. The working document content is owned here: nothing outside the
// ledger assigns it. The ledger is not safe for concurrent use; the session
// serializes access.
type VersionLedger struct {
	sessionID string
	tenantID  string
	versions  []model.DocumentVersion
	currentID string
	previewID string
	lastStamp time.Time

	now func() time.Time
}

// NewVersionLedger creates an empty ledger for a session.
func NewVersionLedger(sessionID, tenantID string) *VersionLedger {
	return &VersionLedger{sessionID: sessionID, tenantID: tenantID, now: time.Now}
}

// Commit appends a new version and makes it current.
func (l *VersionLedger) Commit(content, reason string) model.DocumentVersion {
	stamp := l.now()
	// Ledger ordering by timestamp must match ordering by index.
	if !stamp.After(l.lastStamp) {
		stamp = l.lastStamp.Add(time.Nanosecond)
	}
	l.lastStamp = stamp

	v := model.DocumentVersion{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: l.sessionID,
		TenantID:  l.tenantID,
		Timestamp: stamp,
		Content:   content,
		Reason:    reason,
	}
	l.versions = append(l.versions, v)
	l.currentID = v.ID
	return v
}

// Save commits content with the manual-save reason, unless it is identical
// to the current version, in which case ErrNoChangesToSave is returned.
func (l *VersionLedger) Save(content string) (model.DocumentVersion, error) {
	if cur, ok := l.Current(); ok && cur.Content == content {
		return model.DocumentVersion{}, ErrNoChangesToSave
	}
	return l.Commit(content, model.ReasonManualSave), nil
}

// Current returns the current version, if any.
func (l *VersionLedger) Current() (model.DocumentVersion, bool) {
	return l.byID(l.currentID)
}

// CurrentContent returns the working document content ("" when the ledger
// is empty).
func (l *VersionLedger) CurrentContent() string {
	if cur, ok := l.Current(); ok {
		return cur.Content
	}
	return ""
}

// CurrentID returns the current version id ("" when empty).
func (l *VersionLedger) CurrentID() string { return l.currentID }

// PreviewID returns the preview pointer ("" when not previewing).
func (l *VersionLedger) PreviewID() string { return l.previewID }

// Versions returns a copy of the visible ledger.
func (l *VersionLedger) Versions() []model.DocumentVersion {
	out := make([]model.DocumentVersion, len(l.versions))
	copy(out, l.versions)
	return out
}

// Len returns the number of visible versions.
func (l *VersionLedger) Len() int { return len(l.versions) }

// Preview sets the non-mutating preview pointer. Unknown ids are no-ops.
func (l *VersionLedger) Preview(id string) (model.DocumentVersion, bool) {
	v, ok := l.byID(id)
	if !ok {
		return model.DocumentVersion{}, false
	}
	l.previewID = id
	return v, true
}

// ExitPreview clears the preview pointer.
func (l *VersionLedger) ExitPreview() {
	l.previewID = ""
}

// Revert truncates the ledger to end at id, making it current and clearing
// the preview pointer. Forward history is discarded (checkpoint semantics).
// Unknown ids are no-ops.
func (l *VersionLedger) Revert(id string) (model.DocumentVersion, bool) {
	idx := l.indexOf(id)
	if idx < 0 {
		return model.DocumentVersion{}, false
	}
	l.versions = l.versions[:idx+1]
	l.currentID = id
	l.previewID = ""
	return l.versions[idx], true
}

// Delete removes the version with the given id. When versions remain, the
// fallback (the version immediately preceding the deleted one's position,
// or the first remaining version) becomes current and is returned. When
// the ledger empties, the document content is cleared along with the
// current pointer. Unknown ids are no-ops.
func (l *VersionLedger) Delete(id string) (fallback model.DocumentVersion, deleted, empty bool) {
	idx := l.indexOf(id)
	if idx < 0 {
		return model.DocumentVersion{}, false, false
	}

	l.versions = append(l.versions[:idx], l.versions[idx+1:]...)
	if l.previewID == id {
		l.previewID = ""
	}

	if len(l.versions) == 0 {
		l.currentID = ""
		return model.DocumentVersion{}, true, true
	}

	fbIdx := idx - 1
	if fbIdx < 0 {
		fbIdx = 0
	}
	fb := l.versions[fbIdx]
	l.currentID = fb.ID
	return fb, true, false
}

func (l *VersionLedger) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, v := range l.versions {
		if v.ID == id {
			return i
		}
	}
	return -1
}

func (l *VersionLedger) byID(id string) (model.DocumentVersion, bool) {
	idx := l.indexOf(id)
	if idx < 0 {
		return model.DocumentVersion{}, false
	}
	return l.versions[idx], true
}
