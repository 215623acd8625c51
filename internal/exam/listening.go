package exam

import "github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"

// ListeningBlockSize is how many questions share one stretch of audio.
const ListeningBlockSize = 8

// Each listening pool's audio file covers both parts back to back; part 2
// starts at a fixed offset into the recording.
var listeningPartOffsets = map[int]int{
	1: 825,
	2: 744,
}

// BlockBounds returns the half-open [start, end) range of the block holding
// the given question index. Starts are always multiples of the block size;
// only the final block may be partial.
func BlockBounds(index, total int) (start, end int) {
	start = (index / ListeningBlockSize) * ListeningBlockSize
	end = start + ListeningBlockSize
	if end > total {
		end = total
	}
	return start, end
}

// BlockAudioStart returns the playback offset in seconds for the block
// beginning at start. The first block plays from the top; later blocks jump
// to the pool's part-2 offset.
func BlockAudioStart(pool, start int) int {
	if start == 0 {
		return 0
	}
	return listeningPartOffsets[pool]
}

// ListeningBlock is the payload for one audio block: the questions to show
// plus where in the recording the client should seek.
type ListeningBlock struct {
	BlockStart    int               `json:"block_start"`
	BlockEnd      int               `json:"block_end"`
	Total         int               `json:"total_questions"`
	IsFinal       bool              `json:"is_final_block"`
	AudioURL      string            `json:"audio_url"`
	AudioStartSec int               `json:"audio_start_seconds"`
	Questions     []models.Question `json:"questions"`
}
