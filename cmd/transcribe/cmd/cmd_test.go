package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/transcribe-client/internal/audio"
	"github.com/lexiqai/transcribe-client/internal/config"
	"github.com/lexiqai/transcribe-client/internal/domain"
	"github.com/lexiqai/transcribe-client/internal/upload"
)

type fakeService struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []string
	upload   map[string]string
}

func newFakeService(t *testing.T) *fakeService {
	f := &fakeService{}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/token", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		r.ParseForm()
		if r.PostForm.Get("username") != "alice" || r.PostForm.Get("password") != "correct-horse" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Invalid credentials"}`))
			return
		}
		w.Write([]byte(`{"access_token":"tok-alice","token_type":"bearer"}`))
	})
	mux.HandleFunc("/api/users/me", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.Header.Get("Authorization") != "Bearer tok-alice" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Could not validate credentials"}`))
			return
		}
		w.Write([]byte(`{"id":1,"username":"alice","email":"alice@example.com","is_active":true,"subscription_tier":"free","created_at":"2024-01-02T03:04:05"}`))
	})
	mux.HandleFunc("/api/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.Method == http.MethodPost {
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			f.mu.Lock()
			f.upload = map[string]string{
				"title":         r.FormValue("title"),
				"language_code": r.FormValue("language_code"),
				"is_public":     r.FormValue("is_public"),
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":9,"title":"` + r.FormValue("title") + `","status":"pending","language_code":"en-US","created_at":"2024-03-01T10:00:00"}`))
			return
		}
		w.Write([]byte(`[
			{"id":2,"title":"Standup","status":"completed","language_code":"en-US","file_size_bytes":2048,"duration_seconds":65,"created_at":"2024-03-01T10:00:00"},
			{"id":1,"title":"Interview","status":"processing","language_code":"en-US","created_at":"2024-02-01T10:00:00"}
		]`))
	})
	mux.HandleFunc("/api/transcriptions/1", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(`{"id":1,"title":"Interview","status":"processing","language_code":"en-US"}`))
	})
	mux.HandleFunc("/api/transcriptions/2/result", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.Write([]byte(`{"text":"hello world","language_code":"en-US","segments":[{"speaker_id":"A","start_time":0,"end_time":61.5,"text":"hello world"}]}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeService) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
}

func (f *fakeService) saw(req string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == req {
			return true
		}
	}
	return false
}

// env points the client at the fake service with a private token file.
func env(t *testing.T, f *fakeService) string {
	t.Helper()
	tokenFile := filepath.Join(t.TempDir(), "token")
	t.Setenv("TRANSCRIBE_API_URL", f.server.URL)
	t.Setenv("TOKEN_FILE", tokenFile)
	t.Setenv("LOG_LEVEL", "error")
	return tokenFile
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func login(t *testing.T) {
	t.Helper()
	_, err := run(t, "", "login", "-u", "alice", "-p", "correct-horse")
	require.NoError(t, err)
}

func TestLogin_PersistsTokenForLaterCommands(t *testing.T) {
	f := newFakeService(t)
	tokenFile := env(t, f)

	out, err := run(t, "", "login", "-u", "alice", "-p", "correct-horse")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as alice")

	data, err := os.ReadFile(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, "tok-alice", strings.TrimSpace(string(data)))

	out, err = run(t, "", "whoami", "-o", "json")
	require.NoError(t, err)
	var user domain.User
	require.NoError(t, json.Unmarshal([]byte(out), &user))
	assert.Equal(t, "alice", user.Username)
}

func TestLogin_PromptsForPassword(t *testing.T) {
	f := newFakeService(t)
	env(t, f)

	out, err := run(t, "correct-horse\n", "login", "-u", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as alice")
}

func TestLogin_InvalidCredentialsShowsServerDetail(t *testing.T) {
	f := newFakeService(t)
	tokenFile := env(t, f)

	_, err := run(t, "", "login", "-u", "alice", "-p", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", userMessage(err))

	_, statErr := os.Stat(tokenFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWhoami_WithoutLoginSuggestsLogin(t *testing.T) {
	f := newFakeService(t)
	env(t, f)

	_, err := run(t, "", "whoami")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAuth))
	assert.Contains(t, userMessage(err), "transcribe login")
	assert.False(t, f.saw("GET /api/users/me"))
}

func TestLogout_RemovesToken(t *testing.T) {
	f := newFakeService(t)
	tokenFile := env(t, f)
	login(t)

	out, err := run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, statErr := os.Stat(tokenFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRegister_ShortPasswordNeverCallsService(t *testing.T) {
	f := newFakeService(t)
	env(t, f)

	_, err := run(t, "", "register", "-u", "bob", "-e", "bob@example.com", "-p", "short", "--confirm-password", "short")
	require.Error(t, err)
	assert.Equal(t, "Password must be at least 8 characters long", userMessage(err))
	assert.False(t, f.saw("POST /api/auth/register"))
}

func TestJobsList_TableAndFilter(t *testing.T) {
	f := newFakeService(t)
	env(t, f)
	login(t)

	out, err := run(t, "", "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Standup")
	assert.Contains(t, out, "Interview")
	assert.Contains(t, out, "2.0 kB")
	assert.Contains(t, out, "1:05")

	out, err = run(t, "", "jobs", "list", "--status", "completed", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "title: Standup")
	assert.NotContains(t, out, "Interview")
}

func TestJobsResult_PrintsSegments(t *testing.T) {
	f := newFakeService(t)
	env(t, f)
	login(t)

	out, err := run(t, "", "jobs", "result", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "[00:00 - 01:01]")
	assert.Contains(t, out, "hello world")
}

func TestJobsDelete_ConfirmationDeclined(t *testing.T) {
	f := newFakeService(t)
	env(t, f)
	login(t)

	out, err := run(t, "n\n", "jobs", "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted")
	assert.False(t, f.saw("DELETE /api/transcriptions/1"))

	out, err = run(t, "", "jobs", "delete", "1", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted transcription 1")
	assert.True(t, f.saw("DELETE /api/transcriptions/1"))
}

func TestJobsGet_InvalidID(t *testing.T) {
	f := newFakeService(t)
	env(t, f)

	_, err := run(t, "", "jobs", "get", "abc")
	assert.EqualError(t, err, `invalid job id "abc"`)
}

func TestUpload_DefaultsTitleFromFileName(t *testing.T) {
	f := newFakeService(t)
	env(t, f)
	login(t)

	wavData, err := audio.EncodeWAV(audio.SamplesToPCM16(make([]int16, 1600)), audio.DefaultFormat)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "team sync.wav")
	require.NoError(t, os.WriteFile(path, wavData, 0o644))

	out, err := run(t, "", "upload", path, "--public", "-o", "json")
	require.NoError(t, err)

	var job domain.Transcription
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, 9, job.ID)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "team sync", f.upload["title"])
	assert.Equal(t, "en-US", f.upload["language_code"])
	assert.Equal(t, "true", f.upload["is_public"])
}

func TestUpload_RejectsUnsupportedFileLocally(t *testing.T) {
	f := newFakeService(t)
	env(t, f)
	login(t)

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("just some text"), 0o644))

	_, err := run(t, "", "upload", path)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.False(t, f.saw("POST /api/transcriptions"))
}

func TestUpload_HelpListsOnlyAcceptedFormats(t *testing.T) {
	out, err := run(t, "", "upload", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "WAV, MP3, M4A, FLAC and OGG")
	assert.NotContains(t, out, "WebM")

	for _, mime := range []string{"audio/wav", "audio/mp3", "audio/m4a", "audio/flac", "audio/ogg"} {
		assert.True(t, upload.IsAllowedType(mime), mime)
	}
	assert.False(t, upload.IsAllowedType("audio/webm"))
}

func TestUnknownOutputFormat(t *testing.T) {
	f := newFakeService(t)
	env(t, f)

	_, err := run(t, "", "jobs", "list", "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestServeMux_Endpoints(t *testing.T) {
	f := newFakeService(t)
	env(t, f)
	login(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	a, err := newApp(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(newServeMux(a))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = a.jobs.List(context.Background())
	require.NoError(t, err)

	resp, err = http.Get(srv.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	var view struct {
		Jobs struct {
			Jobs []domain.Transcription `json:"jobs"`
		} `json:"jobs"`
		LastSeq int64 `json:"lastSeq"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Len(t, view.Jobs.Jobs, 2)
	assert.Positive(t, view.LastSeq)
}
