package chat

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrNoFileSelected = errors.New("no file selected")

const (
	NoFilePrompt       = "Please select a PDF first"
	UploadFailedStatus = "❌ Upload failed"
)

type UploadPhase int

const (
	UploadIdle UploadPhase = iota
	Uploading
	UploadSucceeded
	UploadFailed
)

func (p UploadPhase) String() string {
	switch p {
	case Uploading:
		return "uploading"
	case UploadSucceeded:
		return "succeeded"
	case UploadFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Upload tracks the selected PDF and the outcome of the last upload.
// Status is overwritten on every outcome and never cleared.
type Upload struct {
	Selected string
	Status   string
	Phase    UploadPhase
}

func (u *Upload) Select(path string) {
	u.Selected = strings.TrimSpace(path)
}

// SelectedName is the base name of the selected file, or "" if none.
func (u *Upload) SelectedName() string {
	if u.Selected == "" {
		return ""
	}
	return filepath.Base(u.Selected)
}

// Begin moves to Uploading and returns the file to send. Without a
// selection nothing changes and ErrNoFileSelected is returned.
func (u *Upload) Begin() (string, error) {
	if u.Selected == "" {
		return "", ErrNoFileSelected
	}
	u.Phase = Uploading
	return u.Selected, nil
}

func (u *Upload) Succeed(file string, chunks int) {
	u.Phase = UploadSucceeded
	u.Status = SuccessStatus(file, chunks)
}

func (u *Upload) Fail() {
	u.Phase = UploadFailed
	u.Status = UploadFailedStatus
}

func SuccessStatus(file string, chunks int) string {
	return fmt.Sprintf("✅ %s uploaded (%d chunks)", file, chunks)
}
