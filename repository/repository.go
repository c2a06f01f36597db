package repository

import (
	"encoding/json"
	"errors"
	"sort"

	"dag-stitch/db"
	"dag-stitch/models"
)

var ErrNotFound = errors.New("record not found")

const (
	stitchPrefix     = "stitch:"
	checkpointPrefix = "checkpoint:"
)

// It abstracts the storage layer from the business logic
type StitchRepositoryInterface interface {
	PutStitch(rec *models.StitchRecord) error
	GetStitch(id string) (*models.StitchRecord, error)
	GetAllStitches() ([]*models.StitchRecord, error)
	PutCheckpoint(cp *models.Checkpoint) error
	GetLatestCheckpoint() (*models.Checkpoint, error)
}

// StitchRepository implements the StitchRepositoryInterface using LevelDB as the storage backend
type StitchRepository struct {
	db *db.LevelDB
}

// NewStitchRepository creates and returns a new StitchRepository instance
func NewStitchRepository(db *db.LevelDB) *StitchRepository {
	return &StitchRepository{db: db}
}

// PutStitch stores or replaces a stitch journal entry
func (r *StitchRepository) PutStitch(rec *models.StitchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.db.Put([]byte(stitchPrefix+rec.ID), data)
}

// GetStitch retrieves a stitch journal entry by its ID
func (r *StitchRepository) GetStitch(id string) (*models.StitchRecord, error) {
	data, err := r.db.Get([]byte(stitchPrefix + id))
	if db.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec models.StitchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetAllStitches retrieves every journal entry, oldest first
func (r *StitchRepository) GetAllStitches() ([]*models.StitchRecord, error) {
	iter := r.db.NewPrefixIterator([]byte(stitchPrefix))
	defer iter.Release()

	var recs []*models.StitchRecord
	for iter.Next() {
		var rec models.StitchRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt < recs[j].CreatedAt })
	return recs, nil
}

// Creates a new checkpoint by storing the current controller state
func (r *StitchRepository) PutCheckpoint(cp *models.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	key := []byte(checkpointPrefix + cp.ID)
	return r.db.Put(key, data)
}

// Retrieves the most recent checkpoint to restore the controller state. Returns nil when none exists.
func (r *StitchRepository) GetLatestCheckpoint() (*models.Checkpoint, error) {
	iter := r.db.NewPrefixIterator([]byte(checkpointPrefix))
	defer iter.Release()

	var latest *models.Checkpoint
	for iter.Next() {
		var cp models.Checkpoint
		if err := json.Unmarshal(iter.Value(), &cp); err != nil {
			return nil, err
		}
		if latest == nil || cp.Timestamp > latest.Timestamp {
			latest = &cp
		}
	}
	return latest, iter.Error()
}
