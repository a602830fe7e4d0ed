package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/25x8/playvested/internal/models"
)

// MemoryRepository keeps the ledger in process memory. It backs ledgerd when
// no database is configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	players  map[string]models.Player
	accounts map[string]models.Account
	records  []models.Record
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		players:  make(map[string]models.Player),
		accounts: make(map[string]models.Account),
		now:      time.Now,
	}
}

func (r *MemoryRepository) InitDB(string) error {
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

func (r *MemoryRepository) CreatePlayer(_ context.Context, player models.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[player.ID]; ok {
		return errors.New("player already exists")
	}
	player.CreatedAt = r.now()
	r.players[player.ID] = player
	return nil
}

func (r *MemoryRepository) GetPlayer(_ context.Context, id string) (*models.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	player, ok := r.players[id]
	if !ok {
		return nil, nil
	}
	return &player, nil
}

func (r *MemoryRepository) CreateAccount(_ context.Context, account models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.Username]; ok {
		return errors.New("account already exists")
	}
	account.CreatedAt = r.now()
	r.accounts[account.Username] = account
	return nil
}

func (r *MemoryRepository) GetAccount(_ context.Context, username string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[username]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (r *MemoryRepository) LinkAccount(_ context.Context, username, playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[username]
	if !ok {
		return errors.New("account not found")
	}
	account.PlayerID = playerID
	r.accounts[username] = account
	return nil
}

func (r *MemoryRepository) IsLinked(_ context.Context, playerID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, account := range r.accounts {
		if account.PlayerID == playerID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) CreateRecord(_ context.Context, record models.Record) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[record.PlayerID]; !ok {
		return 0, ErrPlayerNotFound
	}
	record.ID = int64(len(r.records) + 1)
	record.RecordedAt = r.now()
	r.records = append(r.records, record)
	return record.ID, nil
}

func (r *MemoryRepository) SumRecords(_ context.Context, filter RecordFilter) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total float64
	for _, rec := range r.records {
		if filter.DevID != "" && rec.DevID != filter.DevID {
			continue
		}
		if filter.GameID != "" && rec.GameID != filter.GameID {
			continue
		}
		if filter.PlayerID != "" && rec.PlayerID != filter.PlayerID {
			continue
		}
		if !filter.Since.IsZero() && rec.RecordedAt.Before(filter.Since) {
			continue
		}
		total += rec.Amount
	}
	return total, nil
}
