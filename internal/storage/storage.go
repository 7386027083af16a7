// Package storage provides a persistent audit log of served predictions
// using BoltDB. Each prediction is appended as a timestamped record keyed by
// strategy, supporting efficient time-range queries for later review of
// what the engine predicted and why.
//
// Trained models are deliberately not persisted: every process starts
// untrained and retrains from scratch.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"tunecast/internal/ensemble"
)

const predictionsBucket = "predictions"

// PredictionRecord is one served prediction with its audit trail.
type PredictionRecord struct {
	Ts         time.Time                      `json:"ts"`
	Method     string                         `json:"method"`
	FinalScore float64                        `json:"final_score"`
	Confidence float64                        `json:"confidence"`
	Reasoning  string                         `json:"reasoning"`
	Components []ensemble.PredictionComponent `json:"components"`
}

// Store provides persistent storage for prediction history using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New creates a storage instance rooted at dataPath. It initializes the
// BoltDB database and creates the predictions bucket.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "tunecast-history.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StorePrediction appends a served prediction to the history log. The key
// format is "method_timestamp" for efficient per-strategy range queries.
func (s *Store) StorePrediction(pred ensemble.EnsemblePrediction) error {
	record := PredictionRecord{
		Ts:         time.Now(),
		Method:     pred.Method,
		FinalScore: pred.FinalScore,
		Confidence: pred.Confidence,
		Reasoning:  pred.Reasoning,
		Components: pred.Components,
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal prediction record: %w", err)
		}

		key := fmt.Sprintf("%s_%d", record.Method, record.Ts.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// GetPredictions retrieves prediction records for one strategy within a time
// range, inclusive of both endpoints.
func (s *Store) GetPredictions(method string, start, end time.Time) ([]PredictionRecord, error) {
	var records []PredictionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		c := b.Cursor()

		prefix := []byte(method + "_")
		startKey := []byte(fmt.Sprintf("%s_%d", method, start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%s_%d", method, end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}

			var record PredictionRecord
			if err := json.Unmarshal(v, &record); err != nil {
				continue // skip malformed records
			}
			records = append(records, record)
		}

		return nil
	})

	return records, err
}
