package analysis

// AlbumEval is one album's prediction against its ground-truth critic score.
type AlbumEval struct {
	Artist    string
	Album     string
	Actual    float64
	Predicted float64
	Residual  float64 // Predicted - Actual
}

type ReportMetadata struct {
	GeneratedDate string
	CorpusAlbums  int
	ScoredAlbums  int
	CachedTracks  int
	EmbedderModel string
	RunID         string
}

// BandStat is the prediction error within one critic score band.
type BandStat struct {
	Band   string
	Albums int
	MAE    float64
}

type Summary struct {
	Evaluated      int
	MAE            float64
	RMSE           float64
	MeanResidual   float64
	Bands          []BandStat
	Overpredicted  []AlbumEval
	Underpredicted []AlbumEval
}

type Report struct {
	Metadata ReportMetadata
	Albums   []AlbumEval
	Summary  Summary
}
