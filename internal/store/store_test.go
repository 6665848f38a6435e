package store

import (
	"path/filepath"
	"reflect"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "critic.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAlbumIsIdempotent(t *testing.T) {
	s := testStore(t)

	first, err := s.CreateAlbum("Boards of Canada", "Geogaddi")
	if err != nil {
		t.Fatalf("CreateAlbum: %v", err)
	}
	second, err := s.CreateAlbum("Boards of Canada", "Geogaddi")
	if err != nil {
		t.Fatalf("CreateAlbum again: %v", err)
	}
	if first != second {
		t.Errorf("got ids %d and %d for the same album", first, second)
	}

	albums, err := s.Albums()
	if err != nil {
		t.Fatalf("Albums: %v", err)
	}
	if len(albums) != 1 {
		t.Errorf("got %d albums, want 1", len(albums))
	}
}

func TestSetScore(t *testing.T) {
	s := testStore(t)

	if _, err := s.CreateAlbum("Portishead", "Dummy"); err != nil {
		t.Fatalf("CreateAlbum: %v", err)
	}
	if err := s.SetScore("Portishead", "Dummy", 89); err != nil {
		t.Fatalf("SetScore: %v", err)
	}

	albums, err := s.Albums()
	if err != nil {
		t.Fatalf("Albums: %v", err)
	}
	if len(albums) != 1 || albums[0].Score == nil || *albums[0].Score != 89 {
		t.Errorf("got %+v, want one album scored 89", albums)
	}
}

func TestSetScoreUnknownAlbum(t *testing.T) {
	s := testStore(t)

	if err := s.SetScore("Nobody", "Nothing", 50); err == nil {
		t.Error("expected an error for an album that was never ingested")
	}
}

func TestScoredAlbumsRequiresScoreAndTracks(t *testing.T) {
	s := testStore(t)

	// Scored, with tracks: included.
	complete, err := s.CreateAlbum("Radiohead", "Kid A")
	if err != nil {
		t.Fatalf("CreateAlbum: %v", err)
	}
	if err := s.AddTracks(complete, []TrackImport{{Path: "/music/kid-a/01.mp3", Duration: 298}}); err != nil {
		t.Fatalf("AddTracks: %v", err)
	}
	if err := s.SetScore("Radiohead", "Kid A", 90); err != nil {
		t.Fatalf("SetScore: %v", err)
	}

	// Scored, no tracks: excluded.
	if _, err := s.CreateAlbum("Radiohead", "Amnesiac"); err != nil {
		t.Fatalf("CreateAlbum: %v", err)
	}
	if err := s.SetScore("Radiohead", "Amnesiac", 80); err != nil {
		t.Fatalf("SetScore: %v", err)
	}

	// Tracks, no score: excluded.
	unscored, err := s.CreateAlbum("Radiohead", "In Rainbows")
	if err != nil {
		t.Fatalf("CreateAlbum: %v", err)
	}
	if err := s.AddTracks(unscored, []TrackImport{{Path: "/music/in-rainbows/01.mp3", Duration: 240}}); err != nil {
		t.Fatalf("AddTracks: %v", err)
	}

	scored, err := s.ScoredAlbums()
	if err != nil {
		t.Fatalf("ScoredAlbums: %v", err)
	}
	if len(scored) != 1 || scored[0].Name != "Kid A" {
		t.Errorf("got %+v, want only Kid A", scored)
	}
}

func TestAddTracksSkipsDuplicates(t *testing.T) {
	s := testStore(t)

	albumID, err := s.CreateAlbum("Burial", "Untrue")
	if err != nil {
		t.Fatalf("CreateAlbum: %v", err)
	}

	tracks := []TrackImport{
		{Path: "/music/untrue/01.mp3", Duration: 46},
		{Path: "/music/untrue/02.mp3", Duration: 234},
	}
	if err := s.AddTracks(albumID, tracks); err != nil {
		t.Fatalf("AddTracks: %v", err)
	}
	// Re-importing the same directory must not duplicate rows.
	if err := s.AddTracks(albumID, tracks); err != nil {
		t.Fatalf("AddTracks again: %v", err)
	}

	got, err := s.TracksForAlbum(albumID)
	if err != nil {
		t.Fatalf("TracksForAlbum: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d tracks, want 2", len(got))
	}
	if got[0].Path != "/music/untrue/01.mp3" || got[1].Path != "/music/untrue/02.mp3" {
		t.Errorf("tracks out of path order: %+v", got)
	}
	if got[1].Duration != 234 {
		t.Errorf("duration %v, want 234", got[1].Duration)
	}
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	s := testStore(t)

	albumID, err := s.CreateAlbum("Aphex Twin", "Drukqs")
	if err != nil {
		t.Fatalf("CreateAlbum: %v", err)
	}
	if err := s.AddTracks(albumID, []TrackImport{{Path: "/music/drukqs/01.mp3", Duration: 122}}); err != nil {
		t.Fatalf("AddTracks: %v", err)
	}
	tracks, err := s.TracksForAlbum(albumID)
	if err != nil {
		t.Fatalf("TracksForAlbum: %v", err)
	}
	trackID := tracks[0].ID

	vector := []float64{0.25, -1.5, 3.0}
	if err := s.SaveEmbedding(trackID, "clap-htsat", vector); err != nil {
		t.Fatalf("SaveEmbedding: %v", err)
	}

	got, ok, err := s.CachedEmbedding(trackID, "clap-htsat")
	if err != nil {
		t.Fatalf("CachedEmbedding: %v", err)
	}
	if !ok {
		t.Fatal("cache miss after save")
	}
	if !reflect.DeepEqual(got, vector) {
		t.Errorf("got %v, want %v", got, vector)
	}

	// The cache is keyed by model id, so a different model misses.
	_, ok, err = s.CachedEmbedding(trackID, "other-model")
	if err != nil {
		t.Fatalf("CachedEmbedding other model: %v", err)
	}
	if ok {
		t.Error("unexpected hit for a model that never embedded the track")
	}
}

func TestSaveEmbeddingReplaces(t *testing.T) {
	s := testStore(t)

	albumID, err := s.CreateAlbum("Autechre", "Tri Repetae")
	if err != nil {
		t.Fatalf("CreateAlbum: %v", err)
	}
	if err := s.AddTracks(albumID, []TrackImport{{Path: "/music/tri-repetae/01.mp3", Duration: 400}}); err != nil {
		t.Fatalf("AddTracks: %v", err)
	}
	tracks, err := s.TracksForAlbum(albumID)
	if err != nil {
		t.Fatalf("TracksForAlbum: %v", err)
	}
	trackID := tracks[0].ID

	if err := s.SaveEmbedding(trackID, "clap-htsat", []float64{1, 2}); err != nil {
		t.Fatalf("SaveEmbedding: %v", err)
	}
	if err := s.SaveEmbedding(trackID, "clap-htsat", []float64{3, 4}); err != nil {
		t.Fatalf("SaveEmbedding again: %v", err)
	}

	got, ok, err := s.CachedEmbedding(trackID, "clap-htsat")
	if err != nil || !ok {
		t.Fatalf("CachedEmbedding: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, []float64{3, 4}) {
		t.Errorf("got %v, want the replacement vector", got)
	}
}
