// Package telegram is the chat ingress: it reads links from allow-listed
// Telegram users and hands them to the dispatcher.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/cwygoda/catchbot/internal/domain"
	"github.com/cwygoda/catchbot/internal/ingest"
)

const helpText = `Send me a YouTube link and I will download its audio.

You can also send:
- a .txt file with one link per line
- a .zip chat export containing _chat.txt

Commands:
/alive - check that I am online
/help - show this message`

// FileFetcher downloads a chat attachment to a local file and returns its
// path. The caller removes the file.
type FileFetcher interface {
	Fetch(ctx context.Context, fileID, name string) (string, error)
}

// AllowList is the set of usernames, "@"-prefixed, allowed to talk to the bot.
type AllowList map[string]bool

// NewAllowList builds an AllowList from usernames with or without "@".
func NewAllowList(names []string) AllowList {
	a := make(AllowList, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !strings.HasPrefix(n, "@") {
			n = "@" + n
		}
		a[n] = true
	}
	return a
}

// Allows reports whether user may use the bot.
func (a AllowList) Allows(user *tgbotapi.User) bool {
	if user == nil || user.UserName == "" {
		return false
	}
	return a["@"+user.UserName]
}

// Handler turns one chat message into reply texts.
type Handler struct {
	dispatcher *domain.Dispatcher
	allow      AllowList
	files      FileFetcher
	workDir    string
	now        func() time.Time
}

// NewHandler creates a handler. workDir holds extracted archives.
func NewHandler(dispatcher *domain.Dispatcher, allow AllowList, files FileFetcher, workDir string) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		allow:      allow,
		files:      files,
		workDir:    workDir,
		now:        time.Now,
	}
}

// Handle processes msg and returns the replies to send, in order. Messages
// from users outside the allow-list get no reply.
func (h *Handler) Handle(ctx context.Context, msg *tgbotapi.Message) []string {
	if msg == nil {
		return nil
	}
	if !h.allow.Allows(msg.From) {
		log.Debug().Str("user", userName(msg.From)).Msg("ignoring message from unknown user")
		return nil
	}

	switch {
	case msg.IsCommand():
		return h.command(msg)
	case msg.Document != nil:
		return h.document(ctx, msg.Document)
	case msg.Text != "":
		return []string{h.text(ctx, msg.Text)}
	}
	return nil
}

func (h *Handler) command(msg *tgbotapi.Message) []string {
	switch msg.Command() {
	case "alive":
		return []string{fmt.Sprintf("Hi %s, I'm online!", mention(msg.From))}
	case "help", "start":
		return []string{helpText}
	}
	return []string{fmt.Sprintf("Unknown command /%s, see /help.", msg.Command())}
}

func (h *Handler) text(ctx context.Context, text string) string {
	log.Info().Str("text", text).Msg("parsing message")

	link, err := h.dispatcher.Dispatch(ctx, text)
	switch {
	case errors.Is(err, domain.ErrNoLink):
		return fmt.Sprintf("\"%s\" is not a YouTube link.", text)
	case err != nil:
		log.Warn().Err(err).Str("link", link.String()).Msg("link not queued")
		return fmt.Sprintf("\"%s\" could not be queued for downloading, please try again later.", link.String())
	}
	log.Info().Str("link", link.String()).Msg("link queued")
	return "The video will be submitted for downloading promptly."
}

type documentKind int

const (
	docUnsupported documentKind = iota
	docText
	docArchive
)

func classify(doc *tgbotapi.Document) documentKind {
	ext := strings.ToLower(filepath.Ext(doc.FileName))
	switch {
	case ext == ".txt" || strings.HasPrefix(doc.MimeType, "text/plain"):
		return docText
	case ext == ".zip" || doc.MimeType == "application/zip":
		return docArchive
	}
	return docUnsupported
}

func (h *Handler) document(ctx context.Context, doc *tgbotapi.Document) []string {
	kind := classify(doc)
	if kind == docUnsupported {
		return []string{fmt.Sprintf("\"%s\" is an unsupported file, send a .txt or .zip file.", doc.FileName)}
	}

	log.Info().Str("file", doc.FileName).Msg("opening file")
	path, err := h.files.Fetch(ctx, doc.FileID, doc.FileName)
	if err != nil {
		log.Error().Err(err).Str("file", doc.FileName).Msg("attachment download failed")
		return []string{fmt.Sprintf("\"%s\" could not be downloaded, please try again later.", doc.FileName)}
	}
	defer os.Remove(path)

	if kind == docArchive {
		textPath, cleanup, err := ingest.ExtractArchive(path, h.workDir, h.now())
		defer cleanup()
		if err != nil {
			log.Warn().Err(err).Str("file", doc.FileName).Msg("archive rejected")
			if errors.Is(err, ingest.ErrMissingExport) {
				return []string{fmt.Sprintf("\"%s\" did not contain the expected export file %s.", doc.FileName, ingest.ExportFile)}
			}
			if errors.Is(err, ingest.ErrExportTooLarge) {
				return []string{fmt.Sprintf("\"%s\" contains a chat export that is too large to process.", doc.FileName)}
			}
			return []string{fmt.Sprintf("\"%s\" could not be opened as a zip archive.", doc.FileName)}
		}
		path = textPath
	}

	text, err := ingest.ReadText(path)
	if err != nil {
		log.Warn().Err(err).Str("file", doc.FileName).Msg("file unreadable")
		return []string{fmt.Sprintf("\"%s\" could not be read, only UTF-8 text is supported.", doc.FileName)}
	}

	return BatchReplies(h.dispatcher.DispatchBatch(ctx, text))
}

// BatchReplies renders a batch report as chat replies: one per problem line
// followed by a summary.
func BatchReplies(report domain.BatchReport) []string {
	replies := make([]string, 0, len(report.Unmatched)+len(report.Unqueued)+1)
	for _, line := range report.Unmatched {
		replies = append(replies, fmt.Sprintf("\"%s\" does not contain a YouTube url. It can't be processed.", line))
	}
	for _, link := range report.Unqueued {
		replies = append(replies, fmt.Sprintf("\"%s\" could not be queued for downloading.", link.String()))
	}
	return append(replies, Summary(report))
}

// Summary is the closing line of a batch reply.
func Summary(report domain.BatchReport) string {
	if report.AllQueued() {
		return "All urls in the file can be processed and those will be downloaded soon."
	}
	return fmt.Sprintf("%d/%d urls in the file can be processed and those will be downloaded soon.", report.Queued(), report.Total)
}

func mention(user *tgbotapi.User) string {
	if user.UserName != "" {
		return "@" + user.UserName
	}
	return user.FirstName
}

func userName(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	return user.UserName
}
