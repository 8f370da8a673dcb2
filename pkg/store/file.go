package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wallet-engine/pkg/types"
)

const (
	DefaultFileName = ".wallet-engine.json"
)

// FileStore keeps everything in one JSON document rewritten on each change
type FileStore struct {
	filePath string
	mu       sync.RWMutex
	data     fileData
}

// fileData represents the JSON structure for storage
type fileData struct {
	Records map[string]*types.TransactionRecord `json:"records"`
	Tokens  map[string]*types.Token             `json:"tokens"`
	Wallets map[string]*types.Wallet            `json:"wallets"`
}

// NewFileStore opens the store at filePath, defaulting to the home directory
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultFileName)
	}

	s := &FileStore{filePath: filePath}
	s.data.init()

	// a missing file is created on first save
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}
	return s, nil
}

func (d *fileData) init() {
	if d.Records == nil {
		d.Records = make(map[string]*types.TransactionRecord)
	}
	if d.Tokens == nil {
		d.Tokens = make(map[string]*types.Token)
	}
	if d.Wallets == nil {
		d.Wallets = make(map[string]*types.Wallet)
	}
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to unmarshal store: %w", err)
	}
	data.init()
	s.data = data
	return nil
}

// save writes the document; callers hold the write lock
func (s *FileStore) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, raw, 0600); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (s *FileStore) UpdateRecord(ctx context.Context, key types.RecordKey, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey(key)
	var existing *types.TransactionRecord
	if rec, ok := s.data.Records[k]; ok {
		cp := *rec
		existing = &cp
	}
	next, err := fn(existing)
	if err != nil || next == nil {
		return err
	}

	prev, had := s.data.Records[k]
	s.data.Records[k] = next
	if err := s.save(); err != nil {
		if had {
			s.data.Records[k] = prev
		} else {
			delete(s.data.Records, k)
		}
		return err
	}
	return nil
}

func (s *FileStore) GetRecord(ctx context.Context, key types.RecordKey) (*types.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data.Records[recordKey(key)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *FileStore) ListRecords(ctx context.Context, f RecordFilter) ([]*types.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.TransactionRecord, 0, len(s.data.Records))
	for _, rec := range s.data.Records {
		if f.match(rec) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return sortRecords(out, f.Limit), nil
}

func (s *FileStore) GetToken(ctx context.Context, chain types.ChainID, address string) (*types.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data.Tokens[tokenKey(chain, address)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *FileStore) PutToken(ctx context.Context, t *types.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.data.Tokens[tokenKey(t.Chain, t.Address)] = &cp
	return s.save()
}

func (s *FileStore) GetWallet(ctx context.Context, id string) (*types.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.data.Wallets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *FileStore) PutWallet(ctx context.Context, w *types.Wallet) error {
	if w.ID == "" {
		return errors.New("wallet has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *w
	s.data.Wallets[w.ID] = &cp
	return s.save()
}

func (s *FileStore) ListWallets(ctx context.Context) ([]*types.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Wallet, 0, len(s.data.Wallets))
	for _, w := range s.data.Wallets {
		cp := *w
		out = append(out, &cp)
	}
	sortWallets(out)
	return out, nil
}

func (s *FileStore) Close() error {
	return nil
}
