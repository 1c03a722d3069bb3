package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// jsonFile serializes read-modify-write cycles on one JSON file. Each
// logical store owns its own lock so Normal, Shared and API-mode writers
// never contend with each other.
type jsonFile struct {
	mu   sync.Mutex
	path string
}

func (f *jsonFile) read(v any) (exists bool, err error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", f.path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return true, nil
}

func (f *jsonFile) write(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}
	if err := os.WriteFile(f.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}

func (f *jsonFile) remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", f.path, err)
	}
	return nil
}

func sessionKey(telegramID int64) string {
	return strconv.FormatInt(telegramID, 10)
}

// NormalJSONStore keeps Normal-mode sessions in normal_mode_sessions.json as
// a map of Telegram id to session.
type NormalJSONStore struct {
	file jsonFile
}

func NewNormalJSONStore(dataDir string) *NormalJSONStore {
	return &NormalJSONStore{file: jsonFile{path: filepath.Join(dataDir, NormalSessionsFileName)}}
}

func (s *NormalJSONStore) Get(telegramID int64) (*UserSession, error) {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	all := map[string]UserSession{}
	if _, err := s.file.read(&all); err != nil {
		return nil, err
	}
	sess, ok := all[sessionKey(telegramID)]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *NormalJSONStore) Save(telegramID int64, sess UserSession) error {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	all := map[string]UserSession{}
	if _, err := s.file.read(&all); err != nil {
		return err
	}
	all[sessionKey(telegramID)] = sess
	return s.file.write(all)
}

func (s *NormalJSONStore) Delete(telegramID int64) error {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	all := map[string]UserSession{}
	exists, err := s.file.read(&all)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	key := sessionKey(telegramID)
	if _, ok := all[key]; !ok {
		return nil
	}
	delete(all, key)
	return s.file.write(all)
}

// SharedJSONStore keeps the singleton Shared-mode session in
// shared_mode_session.json. Clear removes the file.
type SharedJSONStore struct {
	file jsonFile
}

func NewSharedJSONStore(dataDir string) *SharedJSONStore {
	return &SharedJSONStore{file: jsonFile{path: filepath.Join(dataDir, SharedSessionFileName)}}
}

func (s *SharedJSONStore) Get() (*SharedSession, error) {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	var sess SharedSession
	exists, err := s.file.read(&sess)
	if err != nil {
		return nil, err
	}
	if !exists || sess.Cookie == "" {
		return nil, nil
	}
	return &sess, nil
}

func (s *SharedJSONStore) Save(sess SharedSession) error {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()
	return s.file.write(sess)
}

func (s *SharedJSONStore) Clear() error {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()
	return s.file.remove()
}

// SelectionJSONStore keeps API-mode selections in api_mode_selections.json
// as a map of Telegram id to selection.
type SelectionJSONStore struct {
	file jsonFile
}

func NewSelectionJSONStore(dataDir string) *SelectionJSONStore {
	return &SelectionJSONStore{file: jsonFile{path: filepath.Join(dataDir, SelectionsFileName)}}
}

func (s *SelectionJSONStore) Get(telegramID int64) (*Selection, error) {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	all := map[string]Selection{}
	if _, err := s.file.read(&all); err != nil {
		return nil, err
	}
	sel, ok := all[sessionKey(telegramID)]
	if !ok {
		return nil, nil
	}
	return &sel, nil
}

func (s *SelectionJSONStore) Save(telegramID int64, sel Selection) error {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	all := map[string]Selection{}
	if _, err := s.file.read(&all); err != nil {
		return err
	}
	all[sessionKey(telegramID)] = sel
	return s.file.write(all)
}
