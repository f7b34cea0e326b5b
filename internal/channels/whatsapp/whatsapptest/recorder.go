// Package whatsapptest provides an in-memory WhatsApp channel for tests.
package whatsapptest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wolfman30/diagnostico-bot/internal/messaging"
)

// Message kinds recorded by Recorder.
const (
	KindText     = "text"
	KindButtons  = "buttons"
	KindList     = "list"
	KindTemplate = "template"
	KindLocation = "location"
	KindContact  = "contact"
)

// Sent is one recorded outbound message.
type Sent struct {
	Kind     string
	To       string
	Body     string
	Buttons  []messaging.Button
	List     messaging.List
	Template messaging.Template
	Location messaging.Location
	Contact  messaging.Contact
}

// ButtonIDs returns the ids of recorded reply buttons.
func (s Sent) ButtonIDs() []string {
	ids := make([]string, 0, len(s.Buttons))
	for _, b := range s.Buttons {
		ids = append(ids, b.ID)
	}
	return ids
}

// Recorder implements messaging.Messenger and a media downloader.
type Recorder struct {
	mu         sync.Mutex
	sent       []Sent
	read       []string
	downloads  []string
	sendErr    map[string]error
	mediaErr   map[string]error
	mediaDir   string
	downloaded []string
}

var _ messaging.Messenger = (*Recorder)(nil)

// New returns a Recorder. When mediaDir is non-empty DownloadMedia writes a
// small file there for each media id so callers can exercise cleanup.
func New(mediaDir string) *Recorder {
	return &Recorder{
		sendErr:  make(map[string]error),
		mediaErr: make(map[string]error),
		mediaDir: mediaDir,
	}
}

// FailKind makes every send of kind return err.
func (r *Recorder) FailKind(kind string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendErr[kind] = err
}

// FailMedia makes DownloadMedia(mediaID) return err.
func (r *Recorder) FailMedia(mediaID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mediaErr[mediaID] = err
}

func (r *Recorder) record(s Sent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sendErr[s.Kind]; err != nil {
		return err
	}
	r.sent = append(r.sent, s)
	return nil
}

func (r *Recorder) SendText(_ context.Context, to, body string) error {
	return r.record(Sent{Kind: KindText, To: to, Body: body})
}

func (r *Recorder) SendButtons(_ context.Context, to, body string, buttons []messaging.Button) error {
	if err := messaging.ValidateButtons(buttons); err != nil {
		return err
	}
	return r.record(Sent{Kind: KindButtons, To: to, Body: body, Buttons: append([]messaging.Button(nil), buttons...)})
}

func (r *Recorder) SendList(_ context.Context, to string, list messaging.List) error {
	return r.record(Sent{Kind: KindList, To: to, Body: list.Body, List: list})
}

func (r *Recorder) SendTemplate(_ context.Context, to string, tmpl messaging.Template) error {
	return r.record(Sent{Kind: KindTemplate, To: to, Template: tmpl})
}

func (r *Recorder) SendLocation(_ context.Context, to string, loc messaging.Location) error {
	return r.record(Sent{Kind: KindLocation, To: to, Location: loc})
}

func (r *Recorder) SendContact(_ context.Context, to string, contact messaging.Contact) error {
	return r.record(Sent{Kind: KindContact, To: to, Contact: contact})
}

func (r *Recorder) MarkRead(_ context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.read = append(r.read, messageID)
	return nil
}

// DownloadMedia returns a local path for mediaID.
func (r *Recorder) DownloadMedia(_ context.Context, mediaID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads = append(r.downloads, mediaID)
	if err := r.mediaErr[mediaID]; err != nil {
		return "", err
	}
	if mediaID == "" {
		return "", errors.New("whatsapptest: media id required")
	}
	if r.mediaDir == "" {
		return filepath.Join(os.TempDir(), "whatsapptest-"+mediaID+".jpg"), nil
	}
	path := filepath.Join(r.mediaDir, mediaID+".jpg")
	if err := os.WriteFile(path, []byte("\xff\xd8\xff"+mediaID), 0o600); err != nil {
		return "", fmt.Errorf("whatsapptest: write media: %w", err)
	}
	r.downloaded = append(r.downloaded, path)
	return path, nil
}

// Sent returns a copy of everything sent so far.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// SentTo returns the messages addressed to one user.
func (r *Recorder) SentTo(to string) []Sent {
	var out []Sent
	for _, s := range r.Sent() {
		if s.To == to {
			out = append(out, s)
		}
	}
	return out
}

// Texts returns the bodies of text messages addressed to one user.
func (r *Recorder) Texts(to string) []string {
	var out []string
	for _, s := range r.SentTo(to) {
		if s.Kind == KindText {
			out = append(out, s.Body)
		}
	}
	return out
}

// Kinds returns the kinds of messages addressed to one user in send order.
func (r *Recorder) Kinds(to string) []string {
	var out []string
	for _, s := range r.SentTo(to) {
		out = append(out, s.Kind)
	}
	return out
}

// Read returns the message ids that were marked read.
func (r *Recorder) Read() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.read...)
}

// Downloads returns the media ids requested so far.
func (r *Recorder) Downloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.downloads...)
}

// DownloadedFiles returns the paths written under the media directory.
func (r *Recorder) DownloadedFiles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.downloaded...)
}

// Reset discards everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
	r.read = nil
	r.downloads = nil
	r.downloaded = nil
}
