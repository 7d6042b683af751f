package remote

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dvloznov/artho/internal/domain"
)

const folderMimeType = "application/vnd.google-apps.folder"

// TokenProvider hands out the stored user access token.
type TokenProvider interface {
	Valid(ctx context.Context) (string, bool)
}

// Drive keeps the backup document as a file inside a dedicated folder of the
// user's Google Drive, created lazily on first push.
type Drive struct {
	tokens TokenProvider
	folder string
	file   string
	log    zerolog.Logger
	opts   []option.ClientOption
}

// NewDrive creates a Drive backend. Extra client options are appended after
// the token source.
func NewDrive(tokens TokenProvider, folder, file string, log zerolog.Logger, opts ...option.ClientOption) *Drive {
	return &Drive{tokens: tokens, folder: folder, file: file, log: log, opts: opts}
}

// service builds a client authenticated with the current stored token.
func (d *Drive) service(ctx context.Context) (*drive.Service, error) {
	token, ok := d.tokens.Valid(ctx)
	if !ok {
		return nil, ErrNoToken
	}
	opts := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})),
	}, d.opts...)

	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return srv, nil
}

// queryEscaper escapes string literals in Drive search queries.
var queryEscaper = strings.NewReplacer(`\`, `\\`, "'", `\'`)

func quote(s string) string {
	return queryEscaper.Replace(s)
}

// folderID finds the backup folder, creating it when create is set.
// It returns "" when the folder does not exist and create is false.
func (d *Drive) folderID(ctx context.Context, srv *drive.Service, create bool) (string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", quote(d.folder), folderMimeType)
	list, err := srv.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("listing folders: %w", err)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}
	if !create {
		return "", nil
	}

	f, err := srv.Files.Create(&drive.File{Name: d.folder, MimeType: folderMimeType}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating folder: %w", err)
	}
	d.log.Info().Str("folder", d.folder).Str("folder_id", f.Id).Msg("Created backup folder")
	return f.Id, nil
}

func (d *Drive) fileID(ctx context.Context, srv *drive.Service, folderID string) (string, error) {
	q := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false", quote(folderID), quote(d.file))
	list, err := srv.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("listing backup file: %w", err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

// Download fetches the backup file. No folder or no file means no remote copy.
func (d *Drive) Download(ctx context.Context) (*domain.Snapshot, error) {
	srv, err := d.service(ctx)
	if err != nil {
		return nil, fmt.Errorf("Download: %w", err)
	}
	folderID, err := d.folderID(ctx, srv, false)
	if err != nil {
		return nil, fmt.Errorf("Download: %w", err)
	}
	if folderID == "" {
		return nil, nil
	}
	fileID, err := d.fileID(ctx, srv, folderID)
	if err != nil {
		return nil, fmt.Errorf("Download: %w", err)
	}
	if fileID == "" {
		return nil, nil
	}

	resp, err := srv.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("Download: fetching %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Download: fetching %s: status %d", fileID, resp.StatusCode)
	}

	snap, err := Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("Download: %w", err)
	}
	return snap, nil
}

// Upload updates the backup file in place, or creates it inside the folder.
func (d *Drive) Upload(ctx context.Context, snap domain.Snapshot) error {
	var body bytes.Buffer
	if err := Encode(&body, snap); err != nil {
		return fmt.Errorf("Upload: %w", err)
	}

	srv, err := d.service(ctx)
	if err != nil {
		return fmt.Errorf("Upload: %w", err)
	}
	folderID, err := d.folderID(ctx, srv, true)
	if err != nil {
		return fmt.Errorf("Upload: %w", err)
	}
	fileID, err := d.fileID(ctx, srv, folderID)
	if err != nil {
		return fmt.Errorf("Upload: %w", err)
	}

	media := googleapi.ContentType("application/json")
	if fileID == "" {
		meta := &drive.File{Name: d.file, MimeType: "application/json", Parents: []string{folderID}}
		f, err := srv.Files.Create(meta).Media(&body, media).Fields("id").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("Upload: creating backup file: %w", err)
		}
		fileID = f.Id
	} else {
		if _, err := srv.Files.Update(fileID, &drive.File{}).Media(&body, media).Fields("id").Context(ctx).Do(); err != nil {
			return fmt.Errorf("Upload: updating %s: %w", fileID, err)
		}
	}

	d.log.Info().Str("file_id", fileID).Int("transactions", len(snap.Transactions)).Msg("Uploaded backup")
	return nil
}
