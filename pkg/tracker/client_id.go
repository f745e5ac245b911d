package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// ClientIDCookie is the cookie holding the anonymous client identifier
	ClientIDCookie = "bp_client_id"
	// ClientIDRetention is how long a client identifier is kept
	ClientIDRetention = 365 * 24 * time.Hour
)

// IDStore persists the client identifier. Load returns "" when nothing is
// stored.
type IDStore interface {
	Load() (string, error)
	Save(id string) error
}

// CookieStore keeps the identifier in a cookie jar scoped to the API origin,
// so the same jar sends it along with tracking requests
type CookieStore struct {
	jar    http.CookieJar
	origin *url.URL
	now    func() time.Time
}

// NewCookieStore binds a jar to the API origin
func NewCookieStore(jar http.CookieJar, origin string) (*CookieStore, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie origin: %w", err)
	}
	return &CookieStore{jar: jar, origin: u, now: time.Now}, nil
}

func (s *CookieStore) Load() (string, error) {
	for _, c := range s.jar.Cookies(s.origin) {
		if c.Name == ClientIDCookie && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", nil
}

func (s *CookieStore) Save(id string) error {
	s.jar.SetCookies(s.origin, []*http.Cookie{{
		Name:     ClientIDCookie,
		Value:    id,
		Path:     "/",
		Expires:  s.now().Add(ClientIDRetention),
		SameSite: http.SameSiteLaxMode,
	}})
	return nil
}

// FileStore keeps the identifier in a small JSON document on disk
type FileStore struct {
	path string
}

// NewFileStore stores the identifier at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileState struct {
	ClientID  string    `json:"client_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *FileStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read client id file: %w", err)
	}
	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return "", fmt.Errorf("failed to decode client id file: %w", err)
	}
	if st.CreatedAt.IsZero() || time.Since(st.CreatedAt) < ClientIDRetention {
		return st.ClientID, nil
	}
	return "", nil
}

func (s *FileStore) Save(id string) error {
	data, err := json.Marshal(fileState{ClientID: id, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create client id dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write client id file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// ClientIDResolver returns a stable anonymous identifier. Stores are tried in
// order; the first hit wins and is copied to the stores that missed. With no
// hit a new UUID is written to every store.
type ClientIDResolver struct {
	stores []IDStore
	log    *zap.Logger

	mu     sync.Mutex
	cached string
}

// NewClientIDResolver creates a resolver over the given stores, most
// preferred first
func NewClientIDResolver(log *zap.Logger, stores ...IDStore) *ClientIDResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &ClientIDResolver{stores: stores, log: log}
}

// GetOrCreate never fails to produce an identifier. Store errors are logged
// and the identifier is still returned.
func (r *ClientIDResolver) GetOrCreate() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != "" {
		return r.cached
	}

	id := ""
	missed := make([]IDStore, 0, len(r.stores))
	for _, s := range r.stores {
		v, err := s.Load()
		if err != nil {
			r.log.Warn("Failed to load client id", zap.Error(err))
		}
		if v != "" {
			id = v
			break
		}
		missed = append(missed, s)
	}

	if id == "" {
		id = uuid.NewString()
		missed = r.stores
	}

	for _, s := range missed {
		if err := s.Save(id); err != nil {
			r.log.Warn("Failed to persist client id", zap.Error(err))
		}
	}

	r.cached = id
	return id
}
