package ragdex

import "time"

// Record is the stored metadata of one chunk.
type Record struct {
	Title   string
	Source  string
	ChunkID int
	Text    string
}

// Hit is a single search result, highest score first.
type Hit struct {
	Score float32
	Record
}

// BuildRequest selects the corpus and the target pair of one build.
type BuildRequest struct {
	// Dir holds the Markdown corpus.
	Dir string
	// Extensions default to ".md".
	Extensions []string
	// JSONFile is an optional array of structured records. A missing file is skipped.
	JSONFile string
	// JSONFields lists "key:Label" pairs in render order. Empty uses the built-in order.
	JSONFields []string
	IndexPath  string
	MetaPath   string
	// Model is recorded in the build history.
	Model string
}

// BuildResult summarizes a committed build.
type BuildResult struct {
	BuildID   string
	Documents int
	Chunks    int
	Dimension int
	Duration  time.Duration
}

// BuildRecord is one entry of a target's build history.
type BuildRecord struct {
	ID         string
	Status     string // "running", "succeeded", "failed"
	Model      string
	Documents  int
	Chunks     int
	Dimension  int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Stats describes an opened index.
type Stats struct {
	Vectors   int
	Records   int
	Dimension int
	LoadedAt  time.Time
}
