package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUploadResultMerge(t *testing.T) {
	t.Parallel()

	var total UploadResult
	total.Merge(UploadResult{
		SuccessCount:  2,
		JSONData:      map[string]Recipe{"k1": {Title: "One"}, "k2": {Title: "Two"}},
		NewRecipeKeys: []string{"k1", "k2"},
		ReturnMessage: "first",
	})
	total.Merge(UploadResult{
		SuccessCount:  1,
		FailCount:     1,
		JSONData:      map[string]Recipe{"k2": {Title: "Two again"}},
		NewRecipeKeys: []string{"k2"},
		Errors:        []UploadError{{File: 3, Title: "bad", Reason: "unreadable"}},
	})

	assert.Equal(t, 3, total.SuccessCount)
	assert.Equal(t, 1, total.FailCount)
	assert.Equal(t, "Two again", total.JSONData["k2"].Title)
	assert.Equal(t, []string{"k1", "k2", "k2"}, total.NewRecipeKeys)
	assert.Len(t, total.Errors, 1)
	assert.Equal(t, "first", total.ReturnMessage)
}

func TestUploadJobCloneIsDeep(t *testing.T) {
	t.Parallel()

	job := UploadJob{
		ID:        "j",
		Files:     []UploadFile{{Data: "aGk=", Type: FileTypeImage}},
		Result:    &UploadResult{NewRecipeKeys: []string{"k"}},
		ChunkInfo: &ChunkInfo{CurrentChunk: 1, TotalChunks: 2},
	}
	clone := job.Clone()
	clone.Files[0].Data = "changed"
	clone.Result.NewRecipeKeys[0] = "changed"
	clone.ChunkInfo.CurrentChunk = 2

	assert.Equal(t, "aGk=", job.Files[0].Data)
	assert.Equal(t, "k", job.Result.NewRecipeKeys[0])
	assert.Equal(t, 1, job.ChunkInfo.CurrentChunk)
}

func TestJobStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, JobPending.Terminal())
	assert.False(t, JobProcessing.Terminal())
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobError.Terminal())
}

func TestDetectFileType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FileTypePDF, DetectFileType("card.PDF", nil))
	assert.Equal(t, FileTypePDF, DetectFileType("scan", []byte("%PDF-1.5 ...")))
	assert.Equal(t, FileTypeImage, DetectFileType("photo.jpg", []byte{0xff, 0xd8}))
}
