package models

import (
	"context"
	"time"
)

// TextToSpeechRequest is the body accepted by the text-to-audio tool,
// either as JSON or as form fields.
type TextToSpeechRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
	TLD  string `json:"tld"`
	Slow bool   `json:"slow"`
}

// Job is one unit of work handed to an engine pool. Run does the external
// call and returns the path of the artifact it produced.
type Job struct {
	ID         string
	Engine     string
	FromFormat string
	ToFormat   string
	Run        func(ctx context.Context) (string, error)
	Ctx        context.Context
	ResultChan chan JobResult
}

type JobResult struct {
	Success bool
	Error   error
	Path    string
}

// StagedFile is a file living in one of the staging directories.
type StagedFile struct {
	Name    string
	Path    string
	Ext     string
	ModTime time.Time
}

// Envelope is the JSON body of every tool response.
type Envelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Filename  string `json:"filename,omitempty"`
	URL       string `json:"url,omitempty"`
	ZipURL    string `json:"zip_url,omitempty"`
	StreamURL string `json:"stream_url,omitempty"`
	Method    string `json:"method,omitempty"`
	Model     string `json:"model,omitempty"`
	Pages     int    `json:"pages,omitempty"`
}
