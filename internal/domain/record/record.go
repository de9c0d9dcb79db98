package record

// Record is the persisted metadata of one chunk. The Nth record belongs to the Nth vector.
type Record struct {
	Title   string `json:"title"`
	Source  string `json:"source"`
	ChunkID int    `json:"chunk_id"`
	Text    string `json:"text"`
}

// Hit is a resolved search result.
type Hit struct {
	Score float32
	Record
}

// Records extracts the records of hits in order.
func Records(hits []Hit) []Record {
	out := make([]Record, len(hits))
	for i, h := range hits {
		out[i] = h.Record
	}
	return out
}
