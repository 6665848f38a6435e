// Package analysis builds evaluation reports for a trained scorer: how far
// predictions land from the ground-truth critic scores, broken down by the
// score bands critics themselves use.
package analysis

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	BandAcclaim   = "Universal Acclaim"
	BandFavorable = "Generally Favorable"
	BandMixed     = "Mixed or Average"
	BandNegative  = "Negative"

	ThresholdAcclaim   = 90
	ThresholdFavorable = 75
	ThresholdMixed     = 50
)

func determineBand(score float64) string {
	if score >= ThresholdAcclaim {
		return BandAcclaim
	}
	if score >= ThresholdFavorable {
		return BandFavorable
	}
	if score >= ThresholdMixed {
		return BandMixed
	}
	return BandNegative
}

// GenerateReport combines corpus counts from the database with the per-album
// evaluation rows into one report.
func GenerateReport(db *sql.DB, evals []AlbumEval, model, runID string) (*Report, error) {
	if len(evals) == 0 {
		return nil, fmt.Errorf("no evaluated albums")
	}

	totalAlbums, err := getTotalAlbums(db)
	if err != nil {
		return nil, fmt.Errorf("counting albums: %w", err)
	}
	scoredAlbums, err := getScoredAlbums(db)
	if err != nil {
		return nil, fmt.Errorf("counting scored albums: %w", err)
	}
	cachedTracks, err := getCachedTracks(db, model)
	if err != nil {
		return nil, fmt.Errorf("counting cached embeddings: %w", err)
	}

	report := &Report{
		Metadata: ReportMetadata{
			GeneratedDate: time.Now().Format("2006-01-02"),
			CorpusAlbums:  totalAlbums,
			ScoredAlbums:  scoredAlbums,
			CachedTracks:  cachedTracks,
			EmbedderModel: model,
			RunID:         runID,
		},
		Albums:  evals,
		Summary: summarize(evals, 5),
	}
	return report, nil
}

// summarize computes aggregate errors plus the worstN largest misses in each
// direction. Band statistics use the album's actual score, so the bands show
// where on the critic scale the model struggles.
func summarize(evals []AlbumEval, worstN int) Summary {
	s := Summary{Evaluated: len(evals)}

	var sumAbs, sumSq, sumResid float64
	bandAbs := make(map[string][]float64)
	for _, e := range evals {
		abs := math.Abs(e.Residual)
		sumAbs += abs
		sumSq += e.Residual * e.Residual
		sumResid += e.Residual

		band := determineBand(e.Actual)
		bandAbs[band] = append(bandAbs[band], abs)
	}

	n := float64(len(evals))
	s.MAE = sumAbs / n
	s.RMSE = math.Sqrt(sumSq / n)
	s.MeanResidual = sumResid / n

	for _, band := range []string{BandAcclaim, BandFavorable, BandMixed, BandNegative} {
		errs := bandAbs[band]
		if len(errs) == 0 {
			continue
		}
		sum := 0.0
		for _, e := range errs {
			sum += e
		}
		s.Bands = append(s.Bands, BandStat{
			Band:   band,
			Albums: len(errs),
			MAE:    sum / float64(len(errs)),
		})
	}

	over := make([]AlbumEval, 0, len(evals))
	under := make([]AlbumEval, 0, len(evals))
	for _, e := range evals {
		if e.Residual > 0 {
			over = append(over, e)
		} else if e.Residual < 0 {
			under = append(under, e)
		}
	}
	sort.Slice(over, func(i, j int) bool { return over[i].Residual > over[j].Residual })
	sort.Slice(under, func(i, j int) bool { return under[i].Residual < under[j].Residual })
	if len(over) > worstN {
		over = over[:worstN]
	}
	if len(under) > worstN {
		under = under[:worstN]
	}
	s.Overpredicted = over
	s.Underpredicted = under

	return s
}

// -- Helpers --

func getTotalAlbums(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM Album").Scan(&count)
	return count, err
}

func getScoredAlbums(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM Album WHERE score IS NOT NULL").Scan(&count)
	return count, err
}

func getCachedTracks(db *sql.DB, model string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM Embedding WHERE model = ?", model).Scan(&count)
	return count, err
}
