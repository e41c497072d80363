package domain

import (
	"bytes"
	"path/filepath"
	"strings"
	"time"
)

// FileType tells the backend how to decode an uploaded payload.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypePDF   FileType = "pdf"
)

// UploadFile is a single base64 payload queued for OCR.
type UploadFile struct {
	Data string   `json:"data"`
	Type FileType `json:"type"`
	// URI points back at the origin of the payload (picker URI, local path).
	URI string `json:"uri,omitempty"`
}

// JobStatus enumerates upload job lifecycle states.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobError      JobStatus = "error"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// Progress counts files processed so far. Total is fixed at creation.
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// UploadError describes a failed file or batch.
type UploadError struct {
	File   int    `json:"file"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// ChunkInfo is passthrough metadata for uploads split by the caller.
type ChunkInfo struct {
	CurrentChunk int `json:"currentChunk"`
	TotalChunks  int `json:"totalChunks"`
}

// UploadResult is the backend outcome for one batch, or the aggregate of a job.
type UploadResult struct {
	ReturnMessage string            `json:"returnMessage"`
	SuccessCount  int               `json:"successCount"`
	FailCount     int               `json:"failCount"`
	JSONData      map[string]Recipe `json:"jsonData"`
	NewRecipeKeys []string          `json:"newRecipeKeys"`
	Errors        []UploadError     `json:"errors"`
	JobID         string            `json:"jobId"`
}

// Merge folds a batch result into r. Later batches win on key collisions.
func (r *UploadResult) Merge(batch UploadResult) {
	r.SuccessCount += batch.SuccessCount
	r.FailCount += batch.FailCount
	if r.JSONData == nil {
		r.JSONData = make(map[string]Recipe, len(batch.JSONData))
	}
	for key, recipe := range batch.JSONData {
		r.JSONData[key] = recipe
	}
	r.NewRecipeKeys = append(r.NewRecipeKeys, batch.NewRecipeKeys...)
	r.Errors = append(r.Errors, batch.Errors...)
	if batch.ReturnMessage != "" {
		r.ReturnMessage = batch.ReturnMessage
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r UploadResult) Clone() UploadResult {
	out := r
	if r.JSONData != nil {
		out.JSONData = make(map[string]Recipe, len(r.JSONData))
		for key, recipe := range r.JSONData {
			out.JSONData[key] = recipe.Clone()
		}
	}
	out.NewRecipeKeys = append([]string(nil), r.NewRecipeKeys...)
	out.Errors = append([]UploadError(nil), r.Errors...)
	return out
}

// UploadJob groups the files of one user upload.
type UploadJob struct {
	ID        string        `json:"id"`
	Files     []UploadFile  `json:"files"`
	Status    JobStatus     `json:"status"`
	Progress  Progress      `json:"progress"`
	Errors    []UploadError `json:"errors"`
	Result    *UploadResult `json:"result,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	ChunkInfo *ChunkInfo    `json:"chunkInfo,omitempty"`
}

// Clone returns a deep copy of the job.
func (j UploadJob) Clone() UploadJob {
	out := j
	out.Files = append([]UploadFile(nil), j.Files...)
	out.Errors = append([]UploadError(nil), j.Errors...)
	if j.Result != nil {
		res := j.Result.Clone()
		out.Result = &res
	}
	if j.ChunkInfo != nil {
		ci := *j.ChunkInfo
		out.ChunkInfo = &ci
	}
	return out
}

// Submission is the backend answer to a batch upload. Accepted means the
// backend deferred processing and the status endpoint must be polled.
type Submission struct {
	Result   *UploadResult
	Accepted bool
}

// Backend-side processing states reported by the status endpoint.
const (
	RemoteProcessing = "processing"
	RemoteCompleted  = "completed"
	RemoteError      = "error"
)

// StatusReport is the body of the upload status endpoint.
type StatusReport struct {
	Status        string            `json:"status"`
	SuccessCount  int               `json:"successCount"`
	FailCount     int               `json:"failCount"`
	JSONData      map[string]Recipe `json:"jsonData"`
	NewRecipeKeys []string          `json:"newRecipeKeys"`
	Errors        []UploadError     `json:"errors"`
	Error         string            `json:"error,omitempty"`
}

// Result converts a completed report into an UploadResult.
func (s StatusReport) Result(jobID string) UploadResult {
	return UploadResult{
		SuccessCount:  s.SuccessCount,
		FailCount:     s.FailCount,
		JSONData:      s.JSONData,
		NewRecipeKeys: s.NewRecipeKeys,
		Errors:        s.Errors,
		JobID:         jobID,
	}
}

// DetectFileType treats .pdf files and %PDF payloads as PDFs, anything else
// as an image.
func DetectFileType(name string, data []byte) FileType {
	if strings.EqualFold(filepath.Ext(name), ".pdf") || bytes.HasPrefix(data, []byte("%PDF")) {
		return FileTypePDF
	}
	return FileTypeImage
}
