package engine

import (
	"github.com/draftforge-ai/authoring-platform/internal/model"
	"github.com/draftforge-ai/authoring-platform/pkg/metrics"
)

// Versions returns the visible ledger plus the current and preview pointers.
func (s *Session) Versions() ([]model.DocumentVersion, string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Versions(), s.ledger.CurrentID(), s.ledger.PreviewID()
}

// VersionCount returns the visible ledger length.
func (s *Session) VersionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Len()
}

// Document returns the document the UI should display: the previewed
// version when a preview is active, otherwise the current version.
func (s *Session) Document() model.DocumentResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id := s.ledger.PreviewID(); id != "" {
		if v, ok := s.ledger.byID(id); ok {
			return model.DocumentResponse{Content: v.Content, VersionID: v.ID, Preview: true}
		}
	}
	return model.DocumentResponse{
		Content:   s.ledger.CurrentContent(),
		VersionID: s.ledger.CurrentID(),
	}
}

// CommitInitial records the generated document as the first version.
func (s *Session) CommitInitial(content string) model.DocumentVersion {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.ledger.Commit(content, model.ReasonInitialGeneration)
	metrics.VersionsCommittedTotal.WithLabelValues("generation").Inc()
	s.publishVersionLocked(v)
	return v
}

// SaveVersion commits a manual save; identical content yields
// ErrNoChangesToSave.
func (s *Session) SaveVersion(content string) (model.DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.ledger.Save(content)
	if err != nil {
		return model.DocumentVersion{}, err
	}
	metrics.VersionsCommittedTotal.WithLabelValues("manual_save").Inc()
	s.publishVersionLocked(v)
	return v, nil
}

// PreviewVersion sets the preview pointer; unknown ids are no-ops.
func (s *Session) PreviewVersion(id string) (model.DocumentVersion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Preview(id)
}

// ExitPreview clears the preview pointer.
func (s *Session) ExitPreview() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.ExitPreview()
}

// RevertVersion truncates the ledger back to id; unknown ids are no-ops.
func (s *Session) RevertVersion(id string) (model.DocumentVersion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Revert(id)
}

// DeleteVersion removes id from the ledger, returning the fallback version
// that became current (zero when the ledger emptied).
func (s *Session) DeleteVersion(id string) (fallback model.DocumentVersion, deleted, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Delete(id)
}

func (s *Session) publishVersionLocked(v model.DocumentVersion) {
	if s.audit != nil {
		s.audit.PublishVersion(v)
	}
}
