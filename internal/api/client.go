package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/transcribe-client/internal/config"
	"github.com/lexiqai/transcribe-client/internal/domain"
	"github.com/lexiqai/transcribe-client/internal/observability"
)

// Client speaks the transcription service HTTP contract
type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	uploadClient *http.Client
	logger       zerolog.Logger
}

// RegisterRequest is the JSON body of POST /api/auth/register
type RegisterRequest struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ProgressFunc receives the number of request body bytes written so far
type ProgressFunc func(sent, total int64)

// NewClient creates a client from configuration
func NewClient(cfg *config.Config) (*Client, error) {
	return New(cfg.APIBaseURL, cfg.RequestTimeoutDuration(), cfg.UploadTimeoutDuration())
}

// New creates a client for baseURL with explicit timeouts
func New(baseURL string, requestTimeout, uploadTimeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	return &Client{
		baseURL:      u,
		httpClient:   &http.Client{Timeout: requestTimeout},
		uploadClient: &http.Client{Timeout: uploadTimeout},
		logger:       observability.WithComponent("api"),
	}, nil
}

// Login exchanges credentials for an access token using a form-encoded body
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := c.newRequest(ctx, http.MethodPost, "/api/auth/token", "", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out tokenResponse
	if err := c.do(c.httpClient, req, "login", &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &Error{StatusCode: http.StatusOK, Err: errors.New("token response missing access_token")}
	}
	return out.AccessToken, nil
}

// Me fetches the profile of the token's owner
func (c *Client) Me(ctx context.Context, token string) (domain.User, error) {
	var user domain.User
	req, err := c.newRequest(ctx, http.MethodGet, "/api/users/me", token, nil)
	if err != nil {
		return user, err
	}
	err = c.do(c.httpClient, req, "fetch_profile", &user)
	return user, err
}

// Register creates an account; it does not authenticate
func (c *Client) Register(ctx context.Context, in RegisterRequest) (domain.User, error) {
	var user domain.User
	body, err := json.Marshal(in)
	if err != nil {
		return user, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/auth/register", "", bytes.NewReader(body))
	if err != nil {
		return user, err
	}
	req.Header.Set("Content-Type", "application/json")

	err = c.do(c.httpClient, req, "register", &user)
	return user, err
}

// ListTranscriptions returns the caller's jobs in server order
func (c *Client) ListTranscriptions(ctx context.Context, token string) ([]domain.Transcription, error) {
	var jobs []domain.Transcription
	req, err := c.newRequest(ctx, http.MethodGet, "/api/transcriptions", token, nil)
	if err != nil {
		return nil, err
	}
	if err := c.do(c.httpClient, req, "list_jobs", &jobs); err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []domain.Transcription{}
	}
	return jobs, nil
}

// GetTranscription fetches one job
func (c *Client) GetTranscription(ctx context.Context, token string, id int) (domain.Transcription, error) {
	var job domain.Transcription
	req, err := c.newRequest(ctx, http.MethodGet, jobPath(id), token, nil)
	if err != nil {
		return job, err
	}
	err = c.do(c.httpClient, req, "get_job", &job)
	return job, err
}

// GetResult fetches the output of a completed job
func (c *Client) GetResult(ctx context.Context, token string, id int) (domain.TranscriptionResult, error) {
	var result domain.TranscriptionResult
	req, err := c.newRequest(ctx, http.MethodGet, jobPath(id)+"/result", token, nil)
	if err != nil {
		return result, err
	}
	err = c.do(c.httpClient, req, "get_result", &result)
	return result, err
}

// DeleteTranscription removes a job
func (c *Client) DeleteTranscription(ctx context.Context, token string, id int) error {
	req, err := c.newRequest(ctx, http.MethodDelete, jobPath(id), token, nil)
	if err != nil {
		return err
	}
	return c.do(c.httpClient, req, "delete_job", nil)
}

// CreateTranscription submits audio plus metadata as multipart/form-data.
// progress is called from the transport goroutine as the body is written.
func (c *Client) CreateTranscription(
	ctx context.Context,
	token string,
	resource *domain.AudioResource,
	meta domain.UploadMetadata,
	progress ProgressFunc,
) (domain.Transcription, error) {
	var job domain.Transcription

	body, contentType, err := encodeUpload(resource, meta)
	if err != nil {
		return job, err
	}

	total := int64(body.Len())
	var reader io.Reader = body
	if progress != nil {
		reader = &progressReader{r: body, total: total, onProgress: progress}
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/transcriptions", token, reader)
	if err != nil {
		return job, err
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)

	err = c.do(c.uploadClient, req, "create_job", &job)
	if err == nil {
		observability.RecordUploadBytes(total)
	}
	return job, err
}

// Ping checks that the service answers its health endpoint
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return err
	}
	return c.do(c.httpClient, req, "health", nil)
}

func encodeUpload(resource *domain.AudioResource, meta domain.UploadMetadata) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	// CreateFormFile would force application/octet-stream; the service
	// checks the declared type, so the part header is written by hand.
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(resource.Filename)))
	h.Set("Content-Type", resource.MimeType)
	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := fw.Write(resource.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}

	fields := [][2]string{
		{"title", meta.Title},
		{"language_code", meta.LanguageCode},
		{"is_public", strconv.FormatBool(meta.IsPublic)},
	}
	if meta.VocabularyID != nil {
		fields = append(fields, [2]string{"custom_vocabulary_id", strconv.Itoa(*meta.VocabularyID)})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return body, mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func jobPath(id int) string {
	return "/api/transcriptions/" + strconv.Itoa(id)
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(hc *http.Client, req *http.Request, operation string, out interface{}) error {
	timer := observability.StartRequest(operation)

	resp, err := hc.Do(req)
	if err != nil {
		timer.End(false)
		c.logger.Debug().Err(err).Str("operation", operation).Msg("request failed")
		return &Error{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		timer.End(false)
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &Error{StatusCode: resp.StatusCode, Detail: parseDetail(raw)}
		c.logger.Debug().
			Str("operation", operation).
			Int("status", resp.StatusCode).
			Str("detail", apiErr.Detail).
			Msg("service returned error")
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		timer.End(true)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		timer.End(false)
		return &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	timer.End(true)
	return nil
}

// progressReader reports cumulative bytes handed to the transport
type progressReader struct {
	r          io.Reader
	sent       int64
	total      int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.onProgress(p.sent, p.total)
	}
	return n, err
}
