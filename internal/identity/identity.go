package identity

import "sync"

// legacyUnset is what older hosts and the ledger send for an identifier that
// was never assigned. It is only recognised on input and never stored.
const legacyUnset = "000000000000000000000000"

// ID is an optional identifier. The zero value is unset.
type ID struct {
	value string
}

// Parse returns a set ID for s, or the zero ID if s is not a valid identifier.
func Parse(s string) ID {
	if !IsValid(s) {
		return ID{}
	}
	return ID{value: s}
}

func (id ID) Valid() bool {
	return id.value != ""
}

func (id ID) String() string {
	return id.value
}

// IsValid reports whether s can be used as an identifier.
func IsValid(s string) bool {
	return s != "" && s != legacyUnset
}

type Field int

const (
	Publisher Field = iota
	Application
	Player
)

func (f Field) String() string {
	switch f {
	case Publisher:
		return "publisher"
	case Application:
		return "application"
	case Player:
		return "player"
	default:
		return "unknown"
	}
}

// Identity is a point-in-time copy of the store.
type Identity struct {
	PublisherID   ID
	ApplicationID ID
	PlayerID      ID
	CharityName   string
}

// Store holds the identity chain of one session. Identifiers only ever move
// towards validity: an invalid value never replaces what is stored.
type Store struct {
	mu          sync.RWMutex
	ids         [3]ID
	charityName string
}

func NewStore() *Store {
	return &Store{}
}

// SetIfValid assigns s to field and reports whether it did.
func (s *Store) SetIfValid(field Field, value string) bool {
	id := Parse(value)
	if !id.Valid() || field < Publisher || field > Player {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[field] = id
	return true
}

// SetIfUnset assigns value to field only while field holds no identifier.
// It reports whether the assignment happened.
func (s *Store) SetIfUnset(field Field, value string) bool {
	id := Parse(value)
	if !id.Valid() || field < Publisher || field > Player {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[field].Valid() {
		return false
	}
	s.ids[field] = id
	return true
}

func (s *Store) Get(field Field) ID {
	if field < Publisher || field > Player {
		return ID{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids[field]
}

func (s *Store) SetCharity(name string) {
	s.mu.Lock()
	s.charityName = name
	s.mu.Unlock()
}

func (s *Store) ClearCharity() {
	s.SetCharity("")
}

func (s *Store) Charity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.charityName
}

func (s *Store) Snapshot() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Identity{
		PublisherID:   s.ids[Publisher],
		ApplicationID: s.ids[Application],
		PlayerID:      s.ids[Player],
		CharityName:   s.charityName,
	}
}
