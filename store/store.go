package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	usersFile     = "users.json"
	recordsFile   = "records.json"
	communityFile = "community.json"
)

// DB persists application state as JSON documents under a data directory,
// one file per collection. Writes go through a temp file and rename so a
// crash never leaves a half-written document. Concurrent writers are
// serialized by the mutex; the last writer wins.
type DB struct {
	mu  sync.Mutex
	dir string
}

// Open prepares the data directory and seeds the collection files that do
// not exist yet.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "uploads"), 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	db := &DB{dir: dir}
	seeds := []struct {
		name string
		doc  any
	}{
		{usersFile, usersDoc{Users: map[string]*User{}}},
		{recordsFile, recordsDoc{Records: map[string][]*Record{}}},
		{communityFile, communityDoc{Posts: []*Post{}}},
	}
	for _, s := range seeds {
		path := filepath.Join(dir, s.name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := db.Save(s.name, s.doc); err != nil {
				return nil, err
			}
		}
	}
	return db, nil
}

// Dir returns the data directory root.
func (db *DB) Dir() string { return db.dir }

// UploadDir returns the directory serving /uploads.
func (db *DB) UploadDir() string { return filepath.Join(db.dir, "uploads") }

// Load reads one collection file into v. A missing file is not an error;
// v is left untouched.
func (db *DB) Load(name string, v any) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	raw, err := os.ReadFile(filepath.Join(db.dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Save writes one collection file atomically.
func (db *DB) Save(name string, v any) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(db.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

type usersDoc struct {
	Users map[string]*User `json:"users"`
}

type recordsDoc struct {
	Records map[string][]*Record `json:"records"`
}

type communityDoc struct {
	Posts []*Post `json:"posts"`
}

// LoadUsers returns the username -> account map.
func (db *DB) LoadUsers() (map[string]*User, error) {
	doc := usersDoc{Users: map[string]*User{}}
	if err := db.Load(usersFile, &doc); err != nil {
		return nil, err
	}
	if doc.Users == nil {
		doc.Users = map[string]*User{}
	}
	return doc.Users, nil
}

func (db *DB) SaveUsers(users map[string]*User) error {
	return db.Save(usersFile, usersDoc{Users: users})
}

// LoadRecords returns the username -> health records map.
func (db *DB) LoadRecords() (map[string][]*Record, error) {
	doc := recordsDoc{Records: map[string][]*Record{}}
	if err := db.Load(recordsFile, &doc); err != nil {
		return nil, err
	}
	if doc.Records == nil {
		doc.Records = map[string][]*Record{}
	}
	return doc.Records, nil
}

func (db *DB) SaveRecords(records map[string][]*Record) error {
	return db.Save(recordsFile, recordsDoc{Records: records})
}

// LoadPosts returns all community posts in insertion order.
func (db *DB) LoadPosts() ([]*Post, error) {
	doc := communityDoc{}
	if err := db.Load(communityFile, &doc); err != nil {
		return nil, err
	}
	return doc.Posts, nil
}

func (db *DB) SavePosts(posts []*Post) error {
	return db.Save(communityFile, communityDoc{Posts: posts})
}
