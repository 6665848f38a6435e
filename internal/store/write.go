package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// TrackImport is one audio file discovered during ingestion.
type TrackImport struct {
	Path     string
	Duration float64
}

// CreateAlbum ensures an album row exists and returns its id.
func (s *Store) CreateAlbum(artist, name string) (int64, error) {
	row := s.db.QueryRow("SELECT id FROM Album WHERE artist = ? AND name = ?", artist, name)
	var id int64
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		res, err := s.db.Exec("INSERT INTO Album (artist, name) VALUES (?, ?)", artist, name)
		if err != nil {
			return 0, fmt.Errorf("inserting album %q - %q: %w", artist, name, err)
		}
		return res.LastInsertId()
	}
	if err != nil {
		return 0, fmt.Errorf("checking album %q - %q: %w", artist, name, err)
	}
	return id, nil
}

// SetScore records the ground-truth critic score for an album.
func (s *Store) SetScore(artist, name string, score float64) error {
	res, err := s.db.Exec("UPDATE Album SET score = ? WHERE artist = ? AND name = ?", score, artist, name)
	if err != nil {
		return fmt.Errorf("setting score for %q - %q: %w", artist, name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting score for %q - %q: %w", artist, name, err)
	}
	if n == 0 {
		return fmt.Errorf("no album %q - %q", artist, name)
	}
	return nil
}

// AddTracks inserts a batch of tracks for one album transactionally. Tracks
// already present (same album and path) are left untouched.
func (s *Store) AddTracks(albumID int64, tracks []TrackImport) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, track := range tracks {
		_, err := tx.Exec(
			"INSERT OR IGNORE INTO Track (album, path, duration) VALUES (?, ?, ?)",
			albumID, track.Path, track.Duration)
		if err != nil {
			return fmt.Errorf("inserting track %q: %w", track.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing tracks: %w", err)
	}
	return nil
}

// SaveEmbedding caches one track's embedding for the given model id.
func (s *Store) SaveEmbedding(trackID int64, model string, vector []float64) error {
	encoded, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encoding embedding for track %d: %w", trackID, err)
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO Embedding (track, model, dim, vector) VALUES (?, ?, ?, ?)",
		trackID, model, len(vector), string(encoded))
	if err != nil {
		return fmt.Errorf("saving embedding for track %d: %w", trackID, err)
	}
	return nil
}
