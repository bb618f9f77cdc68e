package state

import (
	"github.com/zimi-go/zimi/internal/download"
	"github.com/zimi-go/zimi/internal/safeio"
)

// AppendHistory inserts event at the front of history.json and trims
// the ring to historyMax entries, matching the original's
// _append_history (newest-first, capped list). Implements
// download.HistorySink so a *Store can be handed directly to
// download.New.
func (s *Store) AppendHistory(event download.HistoryEvent) {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	entries := s.loadHistoryLocked()
	entries = append([]download.HistoryEvent{event}, entries...)
	if len(entries) > historyMax {
		entries = entries[:historyMax]
	}
	if err := safeio.WriteJSONAtomic(s.path("history.json"), entries); err != nil {
		s.log.Warn("state: failed to write history", "error", err)
	}
}

// History returns every recorded event, newest first.
func (s *Store) History() []download.HistoryEvent {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	return s.loadHistoryLocked()
}

func (s *Store) loadHistoryLocked() []download.HistoryEvent {
	var entries []download.HistoryEvent
	if err := safeio.ReadJSON(s.path("history.json"), &entries); err != nil {
		return nil
	}
	return entries
}
