package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

type Album struct {
	ID     int64
	Artist string
	Name   string
	Score  *float64
}

type Track struct {
	ID       int64
	AlbumID  int64
	Path     string
	Duration float64
}

// Albums returns every album, scored or not, ordered by artist then name.
func (s *Store) Albums() ([]Album, error) {
	rows, err := s.db.Query("SELECT id, artist, name, score FROM Album ORDER BY artist, name")
	if err != nil {
		return nil, fmt.Errorf("listing albums: %w", err)
	}
	defer rows.Close()

	return scanAlbums(rows)
}

// ScoredAlbums returns the albums usable for training: those with a critic
// score and at least one registered track.
func (s *Store) ScoredAlbums() ([]Album, error) {
	rows, err := s.db.Query(`
	SELECT Album.id, Album.artist, Album.name, Album.score
	FROM Album
	WHERE Album.score IS NOT NULL
	AND EXISTS (SELECT 1 FROM Track WHERE Track.album = Album.id)
	ORDER BY Album.artist, Album.name`)
	if err != nil {
		return nil, fmt.Errorf("listing scored albums: %w", err)
	}
	defer rows.Close()

	return scanAlbums(rows)
}

func scanAlbums(rows *sql.Rows) ([]Album, error) {
	var albums []Album
	for rows.Next() {
		var a Album
		var score sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.Artist, &a.Name, &score); err != nil {
			return nil, fmt.Errorf("scanning album: %w", err)
		}
		if score.Valid {
			a.Score = &score.Float64
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// TracksForAlbum returns an album's tracks ordered by path.
func (s *Store) TracksForAlbum(albumID int64) ([]Track, error) {
	rows, err := s.db.Query(
		"SELECT id, album, path, duration FROM Track WHERE album = ? ORDER BY path", albumID)
	if err != nil {
		return nil, fmt.Errorf("listing tracks for album %d: %w", albumID, err)
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		var t Track
		var duration sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.AlbumID, &t.Path, &duration); err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		t.Duration = duration.Float64
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// CachedEmbedding looks up a previously extracted embedding for a track and
// model id. The second return is false on a cache miss.
func (s *Store) CachedEmbedding(trackID int64, model string) ([]float64, bool, error) {
	row := s.db.QueryRow(
		"SELECT vector FROM Embedding WHERE track = ? AND model = ?", trackID, model)
	var encoded string
	err := row.Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading embedding for track %d: %w", trackID, err)
	}

	var vector []float64
	if err := json.Unmarshal([]byte(encoded), &vector); err != nil {
		return nil, false, fmt.Errorf("decoding embedding for track %d: %w", trackID, err)
	}
	return vector, true, nil
}
