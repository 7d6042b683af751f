package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/dvloznov/artho/internal/domain"
	"github.com/dvloznov/artho/internal/logger"
)

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Transactions: domain.DemoTransactions(time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)),
		Accounts:     domain.DefaultAccounts(),
		LastUpdated:  time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC),
	}
}

func TestEncodeDecode(t *testing.T) {
	snap := sampleSnapshot()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, snap))
	assert.Contains(t, buf.String(), `"lastUpdated":"2024-01-11T09:00:00.000Z"`)

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, snap.Transactions, got.Transactions)
	assert.Equal(t, snap.Accounts, got.Accounts)
	assert.True(t, got.LastUpdated.Equal(snap.LastUpdated))
}

func TestDecode_BrowserDocument(t *testing.T) {
	doc := `{"transactions":[{"id":"a","amount":120,"category":"Food","date":"2024-01-10T10:00:00.000Z","type":"expense","source":"CASH","note":"Coffee","rawInput":"coffee 120"}],"lastUpdated":"2024-01-11T09:00:00.000Z"}`

	got, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, got.Transactions, 1)
	assert.Equal(t, "coffee 120", got.Transactions[0].RawInput)
	assert.Nil(t, got.Accounts, "older documents carry no accounts")
}

func TestDecode_Invalid(t *testing.T) {
	for _, doc := range []string{
		`not json`,
		`{"transactions":[]}`,
		`{"transactions":[],"lastUpdated":"yesterday"}`,
		`[1,2,3]`,
	} {
		_, err := Decode(strings.NewReader(doc))
		assert.Error(t, err, doc)
	}
}

type staticTokens struct {
	token string
	ok    bool
}

func (s staticTokens) Valid(context.Context) (string, bool) { return s.token, s.ok }

// fakeDrive implements the handful of Drive v3 endpoints the backend uses.
type fakeDrive struct {
	mu      sync.Mutex
	folders map[string]string // name -> id
	files   map[string][]byte // id -> content
	names   map[string]string // id -> name
	parents map[string]string // id -> folder id
	nextID  int
	fail    bool
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		folders: map[string]string{},
		files:   map[string][]byte{},
		names:   map[string]string{},
		parents: map[string]string{},
	}
}

func (f *fakeDrive) id() string {
	f.nextID++
	return "id" + string(rune('0'+f.nextID))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		http.Error(w, `{"error":{"code":403,"message":"access denied"}}`, http.StatusForbidden)
		return
	}

	path := r.URL.Path
	switch {
	case strings.Contains(path, "/upload/") && r.Method == http.MethodPost:
		meta, content := readMultipart(r)
		id := f.id()
		f.files[id] = content
		f.names[id] = meta["name"].(string)
		if parents, ok := meta["parents"].([]interface{}); ok && len(parents) > 0 {
			f.parents[id] = parents[0].(string)
		}
		writeJSON(w, map[string]string{"id": id})
	case strings.Contains(path, "/upload/") && r.Method == http.MethodPatch:
		id := path[strings.LastIndex(path, "/")+1:]
		_, content := readMultipart(r)
		f.files[id] = content
		writeJSON(w, map[string]string{"id": id})
	case r.Method == http.MethodGet && r.URL.Query().Get("alt") == "media":
		id := path[strings.LastIndex(path, "/")+1:]
		content, ok := f.files[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(content)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/files"):
		q := r.URL.Query().Get("q")
		files := []map[string]string{}
		if strings.Contains(q, "mimeType") {
			for name, id := range f.folders {
				if strings.Contains(q, "'"+name+"'") {
					files = append(files, map[string]string{"id": id})
				}
			}
		} else {
			for id, name := range f.names {
				if strings.Contains(q, "'"+f.parents[id]+"' in parents") && strings.Contains(q, "'"+name+"'") {
					files = append(files, map[string]string{"id": id})
				}
			}
		}
		writeJSON(w, map[string]interface{}{"files": files})
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/files"):
		var meta map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&meta)
		id := f.id()
		f.folders[meta["name"].(string)] = id
		writeJSON(w, map[string]string{"id": id})
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusBadRequest)
	}
}

func readMultipart(r *http.Request) (map[string]interface{}, []byte) {
	meta := map[string]interface{}{}
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return meta, nil
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	part, err := mr.NextPart()
	if err != nil {
		return meta, nil
	}
	_ = json.NewDecoder(part).Decode(&meta)

	part, err = mr.NextPart()
	if err != nil {
		return meta, nil
	}
	content, _ := io.ReadAll(part)
	return meta, content
}

func newTestDrive(t *testing.T, fake *fakeDrive, tokens TokenProvider) *Drive {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewDrive(tokens, "Artho_Vault_Backups", "artho_backup_v1.json", logger.Nop(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Artho_Vault_Backups", "Artho_Vault_Backups"},
		{"Rahim's backups", `Rahim\'s backups`},
		{`C:\vault`, `C:\\vault`},
		{`a\'b`, `a\\\'b`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, quote(tt.in))
		})
	}
}

func TestDrive_NoRemoteCopy(t *testing.T) {
	d := newTestDrive(t, newFakeDrive(), staticTokens{token: "tok", ok: true})

	snap, err := d.Download(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestDrive_UploadThenDownload(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDrive()
	d := newTestDrive(t, fake, staticTokens{token: "tok", ok: true})

	first := sampleSnapshot()
	require.NoError(t, d.Upload(ctx, first))
	assert.Len(t, fake.folders, 1)
	assert.Len(t, fake.files, 1)

	second := first
	second.Transactions = first.Transactions[:3]
	second.LastUpdated = first.LastUpdated.Add(time.Hour)
	require.NoError(t, d.Upload(ctx, second))
	assert.Len(t, fake.files, 1, "second push updates the same file")

	got, err := d.Download(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Transactions, 3)
	assert.True(t, got.LastUpdated.Equal(second.LastUpdated))
}

func TestDrive_NoToken(t *testing.T) {
	d := newTestDrive(t, newFakeDrive(), staticTokens{})

	_, err := d.Download(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
	assert.ErrorIs(t, d.Upload(context.Background(), sampleSnapshot()), ErrNoToken)
}

func TestDrive_ServerError(t *testing.T) {
	fake := newFakeDrive()
	fake.fail = true
	d := newTestDrive(t, fake, staticTokens{token: "tok", ok: true})

	_, err := d.Download(context.Background())
	assert.Error(t, err)
	assert.Error(t, d.Upload(context.Background(), sampleSnapshot()))
}
