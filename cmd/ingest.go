/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"encoding/csv"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vladbelms/neural-critic/internal/audio"
	"github.com/vladbelms/neural-critic/internal/store"
)

type IngestConfig struct {
	DbPath    string
	MusicDir  string
	ScoresCSV string
}

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <music-dir>",
	Short: "Registers local albums in the corpus database",
	Long: `Walks a directory laid out as artist/album/track.(mp3|wav) and records
every album and track in the corpus database. With --scores, also imports
ground-truth critic scores from a CSV of album,artist,score rows.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := IngestConfig{
			DbPath:    viper.GetString("database"),
			MusicDir:  args[0],
			ScoresCSV: viper.GetString("scores"),
		}

		if err := ingestCorpus(config); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	var scoresCSV string
	ingestCmd.Flags().StringVar(&scoresCSV, "scores", "", "CSV of album,artist,score rows to import")
	viper.BindPFlag("scores", ingestCmd.Flags().Lookup("scores"))
}

func ingestCorpus(config IngestConfig) error {
	db, err := store.New(config.DbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	albums, err := discoverAlbums(config.MusicDir)
	if err != nil {
		return err
	}

	nTracks := 0
	for key, tracks := range albums {
		albumID, err := db.CreateAlbum(key.artist, key.album)
		if err != nil {
			return err
		}
		if err := db.AddTracks(albumID, tracks); err != nil {
			return err
		}
		nTracks += len(tracks)
	}
	fmt.Printf("Registered %d albums (%d tracks)\n", len(albums), nTracks)

	if config.ScoresCSV != "" {
		n, err := importScores(db, config.ScoresCSV)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d critic scores\n", n)
	}

	return nil
}

type albumKey struct {
	artist string
	album  string
}

// discoverAlbums walks musicDir expecting artist/album/track files, the same
// layout the embedding extractor was originally pointed at.
func discoverAlbums(musicDir string) (map[albumKey][]store.TrackImport, error) {
	root, err := filepath.Abs(musicDir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", musicDir, err)
	}

	albums := make(map[albumKey][]store.TrackImport)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !audio.Supported(path) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) < 3 {
			fmt.Printf("Skipping %s: not under artist/album/\n", rel)
			return nil
		}

		key := albumKey{artist: parts[0], album: parts[1]}
		albums[key] = append(albums[key], store.TrackImport{Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", musicDir, err)
	}

	if len(albums) == 0 {
		return nil, fmt.Errorf("no audio files found under %s", musicDir)
	}
	return albums, nil
}

// importScores reads album,artist,score rows (the scraper's CSV format, with
// an optional header line) and attaches scores to registered albums.
func importScores(db *store.Store, csvPath string) (int, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("opening scores: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 3

	records, err := reader.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("reading scores: %w", err)
	}

	imported := 0
	for i, rec := range records {
		score, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			if i == 0 {
				// Header line.
				continue
			}
			fmt.Printf("Skipping row %d: bad score %q\n", i+1, rec[2])
			continue
		}

		album := strings.TrimSpace(rec[0])
		artist := strings.TrimSpace(strings.TrimPrefix(rec[1], "by "))
		if err := db.SetScore(artist, album, score); err != nil {
			fmt.Printf("Skipping row %d: %v\n", i+1, err)
			continue
		}
		imported++
	}
	return imported, nil
}
