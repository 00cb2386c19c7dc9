package tournament

import "github.com/hoanghai1803/paperfeed/internal/models"

// DefaultMergeThreshold is the largest trailing batch that gets folded into
// its predecessor instead of being ranked on its own.
const DefaultMergeThreshold = 4

// Partition splits papers into contiguous batches of batchSize, preserving
// input order. When more than one batch exists and the last one holds
// mergeThreshold papers or fewer, it is merged into the second-to-last batch.
// An empty input yields no batches. Each returned batch is a fresh slice so
// callers may append to one without touching its neighbours or the input.
func Partition(papers []models.Paper, batchSize, mergeThreshold int) [][]models.Paper {
	if len(papers) == 0 {
		return nil
	}
	if batchSize < 1 || len(papers) <= batchSize {
		return [][]models.Paper{clonePapers(papers)}
	}

	batches := make([][]models.Paper, 0, len(papers)/batchSize+1)
	for start := 0; start < len(papers); start += batchSize {
		end := min(start+batchSize, len(papers))
		batches = append(batches, clonePapers(papers[start:end]))
	}

	if n := len(batches); n > 1 && len(batches[n-1]) <= mergeThreshold {
		batches[n-2] = append(batches[n-2], batches[n-1]...)
		batches = batches[:n-1]
	}

	return batches
}

func clonePapers(papers []models.Paper) []models.Paper {
	out := make([]models.Paper, len(papers))
	copy(out, papers)
	return out
}
