package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golden-drift/internal/shared/model"
)

// Transcript 一次回放得到的完整对话
type Transcript struct {
	GoldenTestID string            `json:"golden_test_id"`
	ResultID     string            `json:"result_id"`
	Responses    []string          `json:"responses"`
	Metrics      *model.RunMetrics `json:"metrics,omitempty"`
	CapturedAt   time.Time         `json:"captured_at"`
}

// TranscriptArchive 回放对话归档
type TranscriptArchive interface {
	// ArchiveTranscript 保存对话并返回对象 key
	ArchiveTranscript(ctx context.Context, t *Transcript) (string, error)
	// LoadTranscript 按 key 读取对话，不存在时返回 ErrObjectNotFound
	LoadTranscript(ctx context.Context, key string) (*Transcript, error)
}

// TranscriptKey 对象 key：transcripts/{goldenTestID}/{resultID}.json
func TranscriptKey(goldenTestID, resultID string) string {
	return fmt.Sprintf("transcripts/%s/%s.json", goldenTestID, sanitizeKeyPart(resultID))
}

func sanitizeKeyPart(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(s)
}

// ArchiveTranscript 以 JSON 形式上传对话
func (c *Client) ArchiveTranscript(ctx context.Context, t *Transcript) (string, error) {
	key := TranscriptKey(t.GoldenTestID, t.ResultID)
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	if err := c.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// LoadTranscript 下载并解析对话
func (c *Client) LoadTranscript(ctx context.Context, key string) (*Transcript, error) {
	rc, err := c.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var t Transcript
	if err := json.NewDecoder(rc).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", key, err)
	}
	return &t, nil
}

var _ TranscriptArchive = (*Client)(nil)
