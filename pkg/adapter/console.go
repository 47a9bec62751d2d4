package adapter

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/adforge/copybot/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Console is a Slack stand-in that prints bot output and serves local files as uploads.
// It keeps every message so thread history works.
type Console struct {
	w      io.Writer
	mu     sync.Mutex
	seq    int
	bot    string
	thread map[string][]model.HistoryMessage
	files  map[string]*model.FileDescriptor
}

var _ Slack = (*Console)(nil)

func NewConsole(w io.Writer, botUserID string) *Console {
	return &Console{
		w:      w,
		bot:    botUserID,
		thread: make(map[string][]model.HistoryMessage),
		files:  make(map[string]*model.FileDescriptor),
	}
}

// NextTS returns a new message timestamp
func (c *Console) NextTS() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextTS()
}

func (c *Console) nextTS() string {
	c.seq++
	return fmt.Sprintf("%d.%06d", 1700000000+c.seq, c.seq)
}

// Record stores a user message so it appears in thread history
func (c *Console) Record(channelID, threadTS, userID, ts, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	root := threadTS
	if root == "" {
		root = ts
	}
	c.thread[channelID+":"+root] = append(c.thread[channelID+":"+root], model.HistoryMessage{UserID: userID, Text: text, Timestamp: ts})
}

// AddFile registers a local file as a shared upload and returns its descriptor
func (c *Console) AddFile(path, mimeType string) (*model.FileDescriptor, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to stat file", goerr.V("path", path))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := fmt.Sprintf("F%04d", len(c.files)+1)
	fd := &model.FileDescriptor{ID: id, Name: st.Name(), MIMEType: mimeType, URL: path, Size: int(st.Size())}
	c.files[id] = fd
	return fd, nil
}

func (c *Console) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.nextTS()
	root := threadTS
	if root == "" {
		root = ts
	}
	c.thread[channelID+":"+root] = append(c.thread[channelID+":"+root], model.HistoryMessage{UserID: c.bot, Text: text, IsBot: true, Timestamp: ts})

	where := "top-level"
	if threadTS != "" {
		where = "thread " + threadTS
	}
	fmt.Fprintf(c.w, "\n[bot %s, %s]\n%s\n", ts, where, text)
	return ts, nil
}

func (c *Console) UpdateMessage(ctx context.Context, channelID, ts, text string) error {
	fmt.Fprintf(c.w, "[bot edit %s] %s\n", ts, text)
	return nil
}

func (c *Console) PinMessage(ctx context.Context, channelID, ts string) error {
	fmt.Fprintf(c.w, "[pinned %s]\n", ts)
	return nil
}

func (c *Console) UploadFile(ctx context.Context, channelID, threadTS string, file *model.FileUpload) error {
	fmt.Fprintf(c.w, "[file %s in thread %s]\n%s\n", file.Name, threadTS, strings.TrimSpace(string(file.Content)))
	return nil
}

func (c *Console) GetFileInfo(ctx context.Context, fileID string) (*model.FileDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fd, ok := c.files[fileID]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "file not found", goerr.V("file_id", fileID))
	}
	cp := *fd
	return &cp, nil
}

func (c *Console) DownloadFile(ctx context.Context, url string, w io.Writer) error {
	f, err := os.Open(url)
	if err != nil {
		return goerr.Wrap(err, "failed to open file", goerr.V("path", url))
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return goerr.Wrap(err, "failed to read file", goerr.V("path", url))
	}
	return nil
}

func (c *Console) ThreadHistory(ctx context.Context, channelID, threadTS string, limit int) ([]model.HistoryMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.thread[channelID+":"+threadTS]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]model.HistoryMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}
