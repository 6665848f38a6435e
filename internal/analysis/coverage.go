package analysis

import (
	"database/sql"
	"fmt"
)

// AlbumCoverage is a scored album whose embedding cache is incomplete for the
// given model: Cached of Tracks have an entry.
type AlbumCoverage struct {
	Artist string
	Album  string
	Tracks int
	Cached int
}

// AlbumRef names an album without any evaluation data attached.
type AlbumRef struct {
	Artist string
	Album  string
}

// Gaps lists what keeps parts of the corpus out of training: albums with
// audio but no critic score, and scored albums whose tracks were never
// embedded with the current model.
type Gaps struct {
	UnscoredAlbums []AlbumRef
	PartialAlbums  []AlbumCoverage
}

func GetCoverageGaps(db *sql.DB, model string) (*Gaps, error) {
	gaps := &Gaps{}

	rows, err := db.Query(`
		SELECT artist, name FROM Album
		WHERE score IS NULL
		AND EXISTS (SELECT 1 FROM Track WHERE Track.album = Album.id)
		ORDER BY artist, name`)
	if err != nil {
		return nil, fmt.Errorf("listing unscored albums: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ref AlbumRef
		if err := rows.Scan(&ref.Artist, &ref.Album); err != nil {
			return nil, err
		}
		gaps.UnscoredAlbums = append(gaps.UnscoredAlbums, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	partial, err := db.Query(`
		SELECT a.artist, a.name, COUNT(t.id), COUNT(e.track)
		FROM Album a
		JOIN Track t ON t.album = a.id
		LEFT JOIN Embedding e ON e.track = t.id AND e.model = ?
		WHERE a.score IS NOT NULL
		GROUP BY a.id
		HAVING COUNT(e.track) < COUNT(t.id)
		ORDER BY a.artist, a.name`, model)
	if err != nil {
		return nil, fmt.Errorf("listing partially embedded albums: %w", err)
	}
	defer partial.Close()
	for partial.Next() {
		var c AlbumCoverage
		if err := partial.Scan(&c.Artist, &c.Album, &c.Tracks, &c.Cached); err != nil {
			return nil, err
		}
		gaps.PartialAlbums = append(gaps.PartialAlbums, c)
	}
	return gaps, partial.Err()
}
