package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"proxyvote/models"
)

const (
	journalDir  = "proxy"
	ballotsFile = "ballots.json"
)

// Journal is the on-disk form of one ballot's submission journal.
type Journal struct {
	Entries []*models.JournalEntry `json:"entries"`
}

// JSONStore keeps one hash-chained journal of accepted submissions per ballot
// plus the list of registered ballots, as JSON files under basePath.
type JSONStore struct {
	basePath string
	mu       sync.RWMutex
	journals map[common.Hash]*Journal
	ballots  map[common.Hash]*models.RegisteredBallot
}

func NewJSONStore(basePath string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Join(basePath, journalDir), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create storage directory")
	}

	store := &JSONStore{
		basePath: basePath,
		journals: make(map[common.Hash]*Journal),
		ballots:  make(map[common.Hash]*models.RegisteredBallot),
	}

	files, err := filepath.Glob(filepath.Join(basePath, journalDir, "*.json"))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, path := range files {
		name := strings.TrimSuffix(filepath.Base(path), ".json")
		if !strings.HasPrefix(name, "0x") || len(name) != 2+2*common.HashLength {
			continue
		}
		journal, err := loadJournalFromFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load journal %s", name)
		}
		if err := models.ValidateJournal(journal.Entries); err != nil {
			return nil, errors.Wrapf(err, "journal %s is corrupt", name)
		}
		store.journals[common.HexToHash(name)] = journal
	}

	if err := store.loadBallots(); err != nil {
		return nil, err
	}

	return store, nil
}

// SaveSubmission appends sub to its ballot's journal and persists it.
func (s *JSONStore) SaveSubmission(sub *models.Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return errors.Wrap(err, "failed to marshal submission")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	journal, exists := s.journals[sub.BallotID]
	if !exists {
		journal = &Journal{Entries: make([]*models.JournalEntry, 0)}
	}

	prevHash := make([]byte, 32)
	if n := len(journal.Entries); n > 0 {
		prevHash = journal.Entries[n-1].Hash
	}
	entry := models.NewJournalEntry(uint64(len(journal.Entries)), sub.ReceivedAt, data, prevHash)

	next := &Journal{Entries: append(append([]*models.JournalEntry{}, journal.Entries...), entry)}
	if err := s.saveJournalToFile(sub.BallotID, next); err != nil {
		return err
	}
	s.journals[sub.BallotID] = next
	return nil
}

// LoadJournal returns a copy of a ballot's journal entries.
func (s *JSONStore) LoadJournal(ballotID common.Hash) []*models.JournalEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	journal, exists := s.journals[ballotID]
	if !exists {
		return make([]*models.JournalEntry, 0)
	}
	entries := make([]*models.JournalEntry, len(journal.Entries))
	copy(entries, journal.Entries)
	return entries
}

// LoadSubmissions decodes a ballot's journal in order.
func (s *JSONStore) LoadSubmissions(ballotID common.Hash) ([]*models.Submission, error) {
	entries := s.LoadJournal(ballotID)
	subs := make([]*models.Submission, 0, len(entries))
	for _, e := range entries {
		var sub models.Submission
		if err := json.Unmarshal(e.Data, &sub); err != nil {
			return nil, errors.Wrapf(err, "failed to decode journal entry %d", e.Index)
		}
		subs = append(subs, &sub)
	}
	return subs, nil
}

// BallotIDs lists the ballots that have a journal.
func (s *JSONStore) BallotIDs() []common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]common.Hash, 0, len(s.journals))
	for id := range s.journals {
		ids = append(ids, id)
	}
	return ids
}

// SaveBallot records or replaces a registered ballot.
func (s *JSONStore) SaveBallot(b *models.RegisteredBallot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ballots[b.BallotID] = b

	list := make([]*models.RegisteredBallot, 0, len(s.ballots))
	for _, rb := range s.ballots {
		list = append(list, rb)
	}
	return s.writeJSON(filepath.Join(s.basePath, ballotsFile), list)
}

// LoadBallot returns one registered ballot.
func (s *JSONStore) LoadBallot(ballotID common.Hash) (*models.RegisteredBallot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rb, ok := s.ballots[ballotID]
	return rb, ok
}

// LoadBallots returns every registered ballot.
func (s *JSONStore) LoadBallots() []*models.RegisteredBallot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.RegisteredBallot, 0, len(s.ballots))
	for _, rb := range s.ballots {
		list = append(list, rb)
	}
	return list
}

func (s *JSONStore) loadBallots() error {
	data, err := os.ReadFile(filepath.Join(s.basePath, ballotsFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.WithStack(err)
	}

	var list []*models.RegisteredBallot
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.Wrap(err, "failed to unmarshal ballots")
	}
	for _, rb := range list {
		s.ballots[rb.BallotID] = rb
	}
	return nil
}

func (s *JSONStore) journalPath(ballotID common.Hash) string {
	return filepath.Join(s.basePath, journalDir, fmt.Sprintf("%s.json", ballotID.Hex()))
}

func loadJournalFromFile(path string) (*Journal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var journal Journal
	if err := json.Unmarshal(data, &journal); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal journal")
	}
	return &journal, nil
}

func (s *JSONStore) saveJournalToFile(ballotID common.Hash, journal *Journal) error {
	return s.writeJSON(s.journalPath(ballotID), journal)
}

func (s *JSONStore) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal")
	}

	// Write to temporary file first
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write file")
	}

	// Atomic rename to ensure consistency
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(err, "failed to save file")
	}

	return nil
}
