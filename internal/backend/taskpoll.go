package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/moodloop/moodloop/internal/clipstore"
)

// TaskBackend talks to an asynchronous generation service: submit returns a
// task id, status is polled at a fixed interval, and the finished clip is
// downloaded once the task reports success.
type TaskBackend struct {
	apiURL string
	apiKey string
	store  *clipstore.Store
	poller Poller
	http   *http.Client
}

// NewTaskBackend creates a backend for a submit/poll/fetch API.
func NewTaskBackend(apiURL, apiKey string, store *clipstore.Store, poller Poller) *TaskBackend {
	return &TaskBackend{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		store:  store,
		poller: poller,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

type submitRequest struct {
	Prompt       string `json:"prompt"`
	Duration     int    `json:"audio_duration"`
	Instrumental bool   `json:"instrumental"`
	AudioFormat  string `json:"audio_format"`
}

type submitResponse struct {
	Data struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
	Code  int    `json:"code"`
	Error string `json:"error"`
}

type queryResponse struct {
	Data []taskResult `json:"data"`
	Code int          `json:"code"`
}

type taskResult struct {
	TaskID string `json:"task_id"`
	Status int    `json:"status"` // 0=running, 1=success, 2=failed
	Result string `json:"result"` // download URL or path of the finished clip
	Error  string `json:"error"`
}

// Generate submits the task, polls until a terminal state, then downloads
// and stores the finished clip.
func (b *TaskBackend) Generate(ctx context.Context, req Request) (clipstore.Handle, error) {
	taskID, err := b.submit(ctx, req)
	if err != nil {
		return clipstore.Handle{}, err
	}

	task := NewTask(taskID)
	log.Debug("generation task submitted", "task", taskID, "interval", b.poller.Interval, "max_wait", b.poller.MaxWait)

	resultRef, err := b.poller.Run(ctx, task, func(ctx context.Context) (Status, error) {
		return b.queryStatus(ctx, taskID)
	})
	if err != nil {
		return clipstore.Handle{}, err
	}

	data, err := download(ctx, b.http, b.resolveURL(resultRef))
	if err != nil {
		return clipstore.Handle{}, err
	}

	return b.store.Save(data, req.Format)
}

// submit registers the generation job and returns its upstream task id.
func (b *TaskBackend) submit(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(submitRequest{
		Prompt:       req.Prompt,
		Duration:     req.Duration,
		Instrumental: req.Instrumental,
		AudioFormat:  req.Format,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := b.do(ctx, http.MethodPost, "/release_task", body)
	if err != nil {
		return "", fmt.Errorf("submit task: %w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", classifyStatus(resp.StatusCode)
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if result.Code != 200 {
		return "", fmt.Errorf("%w: submit code %d: %s", ErrUpstream, result.Code, result.Error)
	}
	if result.Data.TaskID == "" {
		return "", fmt.Errorf("%w: submit returned no task id", ErrInvalidResponse)
	}
	return result.Data.TaskID, nil
}

// queryStatus issues exactly one status fetch for the poller.
func (b *TaskBackend) queryStatus(ctx context.Context, taskID string) (Status, error) {
	body, _ := json.Marshal(map[string][]string{"task_id_list": {taskID}})

	resp, err := b.do(ctx, http.MethodPost, "/query_result", body)
	if err != nil {
		return Status{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Status{}, classifyStatus(resp.StatusCode)
	}

	var result queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(result.Data) == 0 {
		// Task not visible yet; treat as still running.
		return Status{}, nil
	}

	task := result.Data[0]
	switch task.Status {
	case 1:
		if task.Result == "" {
			return Status{}, fmt.Errorf("%w: success with no result", ErrInvalidResponse)
		}
		return Status{Done: true, Result: task.Result}, nil
	case 2:
		return Status{Failed: true, FailureMsg: task.Error}, nil
	default:
		return Status{}, nil
	}
}

func (b *TaskBackend) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
	return b.http.Do(req)
}

func (b *TaskBackend) resolveURL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return b.apiURL + ref
}
