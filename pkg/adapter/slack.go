package adapter

import (
	"bytes"
	"context"
	"io"

	"github.com/adforge/copybot/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"
)

// Slack is the chat platform client. An empty threadTS posts top-level.
type Slack interface {
	PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error)
	UpdateMessage(ctx context.Context, channelID, ts, text string) error
	PinMessage(ctx context.Context, channelID, ts string) error
	UploadFile(ctx context.Context, channelID, threadTS string, file *model.FileUpload) error
	GetFileInfo(ctx context.Context, fileID string) (*model.FileDescriptor, error)
	DownloadFile(ctx context.Context, url string, w io.Writer) error
	ThreadHistory(ctx context.Context, channelID, threadTS string, limit int) ([]model.HistoryMessage, error)
}

const (
	historyPageSize = 200
	historyMaxPages = 10
)

type slackClient struct {
	api     *slack.Client
	apiOpts []slack.Option
	limiter *rate.Limiter
}

type SlackOption func(*slackClient)

// WithSlackRateLimit bounds outgoing Web API calls per second
func WithSlackRateLimit(perSecond float64, burst int) SlackOption {
	return func(c *slackClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithSlackAPIURL points the client at another Web API endpoint. The URL must end with "/".
func WithSlackAPIURL(url string) SlackOption {
	return func(c *slackClient) {
		c.apiOpts = append(c.apiOpts, slack.OptionAPIURL(url))
	}
}

// NewSlack creates a Slack Web API client
func NewSlack(botToken string, opts ...SlackOption) Slack {
	c := &slackClient{
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.api = slack.New(botToken, c.apiOpts...)
	return c
}

func (c *slackClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return goerr.Wrap(err, "slack rate limiter aborted")
	}
	return nil
}

func (c *slackClient) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, ts, err := c.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", goerr.Wrap(err, "failed to post message",
			goerr.V("channel_id", channelID), goerr.V("thread_ts", threadTS))
	}
	return ts, nil
}

func (c *slackClient) UpdateMessage(ctx context.Context, channelID, ts, text string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, _, _, err := c.api.UpdateMessageContext(ctx, channelID, ts, slack.MsgOptionText(text, false)); err != nil {
		return goerr.Wrap(err, "failed to update message", goerr.V("channel_id", channelID), goerr.V("ts", ts))
	}
	return nil
}

func (c *slackClient) PinMessage(ctx context.Context, channelID, ts string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if err := c.api.AddPinContext(ctx, channelID, slack.NewRefToMessage(channelID, ts)); err != nil {
		return goerr.Wrap(err, "failed to pin message", goerr.V("channel_id", channelID), goerr.V("ts", ts))
	}
	return nil
}

func (c *slackClient) UploadFile(ctx context.Context, channelID, threadTS string, file *model.FileUpload) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := c.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Reader:          bytes.NewReader(file.Content),
		FileSize:        len(file.Content),
		Filename:        file.Name,
		Title:           file.Title,
		Channel:         channelID,
		ThreadTimestamp: threadTS,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to upload file", goerr.V("channel_id", channelID), goerr.V("name", file.Name))
	}
	return nil
}

func (c *slackClient) GetFileInfo(ctx context.Context, fileID string) (*model.FileDescriptor, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	f, _, _, err := c.api.GetFileInfoContext(ctx, fileID, 0, 0)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get file info", goerr.V("file_id", fileID))
	}

	url := f.URLPrivateDownload
	if url == "" {
		url = f.URLPrivate
	}
	return &model.FileDescriptor{
		ID:       f.ID,
		Name:     f.Name,
		MIMEType: f.Mimetype,
		URL:      url,
		Size:     f.Size,
	}, nil
}

func (c *slackClient) DownloadFile(ctx context.Context, url string, w io.Writer) error {
	if err := c.api.GetFileContext(ctx, url, w); err != nil {
		return goerr.Wrap(err, "failed to download file", goerr.V("url", url))
	}
	return nil
}

// ThreadHistory returns the latest limit messages of a thread, oldest first.
// conversations.replies pages from the thread root, so every page is read and only
// the tail is kept.
func (c *slackClient) ThreadHistory(ctx context.Context, channelID, threadTS string, limit int) ([]model.HistoryMessage, error) {
	var history []model.HistoryMessage
	cursor := ""
	for page := 0; page < historyMaxPages; page++ {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		msgs, hasMore, next, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: threadTS,
			Cursor:    cursor,
			Limit:     historyPageSize,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get thread history",
				goerr.V("channel_id", channelID), goerr.V("thread_ts", threadTS), goerr.V("page", page))
		}

		for _, m := range msgs {
			history = append(history, model.HistoryMessage{
				UserID:    m.User,
				Text:      m.Text,
				IsBot:     m.BotID != "",
				Timestamp: m.Timestamp,
			})
		}
		if limit > 0 && len(history) > limit {
			history = append([]model.HistoryMessage(nil), history[len(history)-limit:]...)
		}
		if !hasMore || next == "" {
			break
		}
		cursor = next
	}
	return history, nil
}
