package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/vladbelms/neural-critic/internal/critic"
	"github.com/vladbelms/neural-critic/internal/store"
)

func TestDiscoverAlbums(t *testing.T) {
	dir := t.TempDir()
	layout := []string{
		"Radiohead/Kid A/01 Everything in Its Right Place.mp3",
		"Radiohead/Kid A/02 Kid A.mp3",
		"Radiohead/Amnesiac/01 Packt.wav",
		"Burial/Untrue/01 Untitled.mp3",
		"Burial/Untrue/cover.jpg",
		"stray.mp3",
	}
	for _, rel := range layout {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	albums, err := discoverAlbums(dir)
	if err != nil {
		t.Fatalf("discoverAlbums: %v", err)
	}

	if len(albums) != 3 {
		t.Fatalf("got %d albums, want 3: %v", len(albums), albums)
	}
	kidA := albums[albumKey{artist: "Radiohead", album: "Kid A"}]
	if len(kidA) != 2 {
		t.Errorf("Kid A has %d tracks, want 2", len(kidA))
	}
	untrue := albums[albumKey{artist: "Burial", album: "Untrue"}]
	if len(untrue) != 1 {
		t.Errorf("Untrue has %d tracks, want 1 (cover art is not audio)", len(untrue))
	}
}

func TestDiscoverAlbumsEmpty(t *testing.T) {
	if _, err := discoverAlbums(t.TempDir()); err == nil {
		t.Error("expected an error for a directory with no audio")
	}
}

func TestImportScores(t *testing.T) {
	dir := t.TempDir()
	db, err := store.New(filepath.Join(dir, "critic.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer db.Close()

	for _, a := range [][2]string{{"Radiohead", "Kid A"}, {"Burial", "Untrue"}} {
		if _, err := db.CreateAlbum(a[0], a[1]); err != nil {
			t.Fatalf("CreateAlbum: %v", err)
		}
	}

	// The scraper's format: header line, "by " artist prefix, and rows for
	// albums that were never ingested.
	csvPath := filepath.Join(dir, "scores.csv")
	csv := "album,artist,score\n" +
		"Kid A,by Radiohead,90\n" +
		"Untrue,Burial,88.5\n" +
		"Nowhere,by Nobody,70\n"
	if err := os.WriteFile(csvPath, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := importScores(db, csvPath)
	if err != nil {
		t.Fatalf("importScores: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d scores, want 2", n)
	}

	scored, err := db.Albums()
	if err != nil {
		t.Fatalf("Albums: %v", err)
	}
	byName := make(map[string]float64)
	for _, a := range scored {
		if a.Score != nil {
			byName[a.Name] = *a.Score
		}
	}
	if byName["Kid A"] != 90 || byName["Untrue"] != 88.5 {
		t.Errorf("scores %v, want Kid A 90 and Untrue 88.5", byName)
	}
}

func TestCollectAudioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"02.mp3", "01.mp3", "03.wav", "cover.png", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "bonus"), 0o755); err != nil {
		t.Fatal(err)
	}

	paths, err := collectAudioFiles(dir)
	if err != nil {
		t.Fatalf("collectAudioFiles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "01.mp3"),
		filepath.Join(dir, "02.mp3"),
		filepath.Join(dir, "03.wav"),
	}
	if len(paths) != len(want) {
		t.Fatalf("got %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %s, want %s", i, paths[i], want[i])
		}
	}
}

func TestCollectAudioFilesEmpty(t *testing.T) {
	if _, err := collectAudioFiles(t.TempDir()); err == nil {
		t.Error("expected an error for a directory with no audio")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantKind   string
	}{
		{fmt.Errorf("x: %w", critic.ErrUnsupportedAudio), http.StatusUnprocessableEntity, "unsupported audio"},
		{fmt.Errorf("x: %w", critic.ErrInvalidInput), http.StatusBadRequest, "invalid input"},
		{fmt.Errorf("x: %w", critic.ErrDimensionMismatch), http.StatusInternalServerError, "dimension mismatch"},
		{fmt.Errorf("x: %w", critic.ErrConfigMismatch), http.StatusInternalServerError, "config mismatch"},
		{fmt.Errorf("x: %w", critic.ErrModelUnavailable), http.StatusServiceUnavailable, "model unavailable"},
		{fmt.Errorf("something else"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		status, kind := classifyError(tt.err)
		if status != tt.wantStatus || kind != tt.wantKind {
			t.Errorf("classifyError(%v) = %d %q, want %d %q", tt.err, status, kind, tt.wantStatus, tt.wantKind)
		}
	}
}
