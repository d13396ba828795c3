package types

// MetadataRecord describes one submitted audio clip. The ingestion server
// writes the file/source/size fields at upload time; the extract-metadata
// stage fills in the audio properties. Fields are only ever added, never
// rewritten, so downstream stages can rely on what upload already recorded.
type MetadataRecord struct {
	File        string  `json:"file"`
	Source      string  `json:"source,omitempty"`
	Size        int64   `json:"size,omitempty"`
	Format      string  `json:"format,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	SampleRate  int     `json:"sample_rate,omitempty"`
	Channels    int     `json:"channels,omitempty"`
}

// EmotionScore is one class probability from the model backend.
type EmotionScore struct {
	Emotion string  `json:"emotion"`
	Score   float64 `json:"score"`
}

// Prediction is the structured output of one inference call. Scores are
// ranked highest first; Label duplicates Scores[0].Emotion for callers that
// only want the top class.
type Prediction struct {
	Label        string         `json:"label"`
	Scores       []EmotionScore `json:"scores"`
	ModelVersion string         `json:"model_version,omitempty"`
	ContentHash  string         `json:"content_hash,omitempty"`
	Timestamp    string         `json:"timestamp,omitempty"`
}

// ResultEntry is one element of the results log: a prediction keyed by the
// submission identifier that produced it.
type ResultEntry struct {
	File   string     `json:"file"`
	Result Prediction `json:"result"`
}

// EvalReport is the output of the evaluate stage: historical predictions
// scored against the labeled reference set.
type EvalReport struct {
	Total        int            `json:"total"`
	Matched      int            `json:"matched"`
	Accuracy     float64        `json:"accuracy"`
	ByEmotion    map[string]int `json:"by_emotion"`
	GeneratedAt  string         `json:"generated_at"`
	ModelVersion string         `json:"model_version,omitempty"`
}
