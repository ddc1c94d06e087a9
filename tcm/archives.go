package tcm

import (
	"strconv"
	"time"

	"medai-backend/store"
)

const archivesFile = "tcm_archives.json"

// Diagnosis is one saved exam result inside an archive.
type Diagnosis struct {
	ID            string `json:"id"`
	Mode          string `json:"mode"`
	Result        any    `json:"result"`
	ImageFilename string `json:"image_filename,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// Archive is a patient health archive holding TCM diagnosis history.
type Archive struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Gender         string       `json:"gender"`
	Age            any          `json:"age"`
	Contact        string       `json:"contact"`
	CreatedAt      string       `json:"created_at"`
	UpdatedAt      string       `json:"updated_at"`
	DiagnosisCount int          `json:"diagnosis_count"`
	Diagnoses      []*Diagnosis `json:"diagnoses"`
}

// Archives wraps the flat-file archive list.
type Archives struct {
	db *store.DB
}

func NewArchives(db *store.DB) *Archives {
	return &Archives{db: db}
}

func (a *Archives) load() ([]*Archive, error) {
	var list []*Archive
	if err := a.db.Load(archivesFile, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (a *Archives) List() ([]*Archive, error) {
	list, err := a.load()
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Archive{}
	}
	return list, nil
}

func newArchiveID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// Create appends a new archive and returns it.
func (a *Archives) Create(name, gender string, age any, contact string) (*Archive, error) {
	list, err := a.load()
	if err != nil {
		return nil, err
	}
	now := store.NowISO()
	archive := &Archive{
		ID:        newArchiveID(),
		Name:      name,
		Gender:    gender,
		Age:       age,
		Contact:   contact,
		CreatedAt: now,
		UpdatedAt: now,
		Diagnoses: []*Diagnosis{},
	}
	list = append(list, archive)
	if err := a.db.Save(archivesFile, list); err != nil {
		return nil, err
	}
	return archive, nil
}

// Get returns the archive with the given id, or nil when absent.
func (a *Archives) Get(id string) (*Archive, error) {
	list, err := a.load()
	if err != nil {
		return nil, err
	}
	for _, ar := range list {
		if ar.ID == id {
			return ar, nil
		}
	}
	return nil, nil
}

// AppendDiagnosis records one exam result on an archive. Unknown archive
// ids are ignored, matching the tolerant write path of the data layer.
func (a *Archives) AppendDiagnosis(archiveID, mode string, result any, imageFilename string) error {
	list, err := a.load()
	if err != nil {
		return err
	}
	for _, ar := range list {
		if ar.ID != archiveID {
			continue
		}
		ar.Diagnoses = append(ar.Diagnoses, &Diagnosis{
			ID:            newArchiveID(),
			Mode:          mode,
			Result:        result,
			ImageFilename: imageFilename,
			CreatedAt:     store.NowISO(),
		})
		ar.DiagnosisCount = len(ar.Diagnoses)
		ar.UpdatedAt = store.NowISO()
		return a.db.Save(archivesFile, list)
	}
	return nil
}
