package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/gophbell/internal/client/api"
	"github.com/dmitrijs2005/gophbell/internal/client/models"
	"github.com/dmitrijs2005/gophbell/internal/common"
	"github.com/dmitrijs2005/gophbell/internal/logging"
	"github.com/dmitrijs2005/gophbell/internal/validate"
	"github.com/google/uuid"
)

// MaxAvatarSize caps avatar uploads.
const MaxAvatarSize = 5 << 20

var avatarExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// ProfileService manages the signed-in user's profile.
//
// Contract:
//   - Load: fetch the auth user and its profiles row, cache the merge.
//   - Current: the cached profile, without network access.
//   - Update: validate and apply a partial edit; the cache follows on success.
//   - UploadAvatar: store an image and point the profile at its public URL.
type ProfileService interface {
	Load(ctx context.Context) (models.Profile, error)
	Current(ctx context.Context) (models.Profile, bool, error)
	Update(ctx context.Context, upd models.ProfileUpdate) (models.Profile, error)
	UploadAvatar(ctx context.Context, r io.Reader, size int64, contentType string) (models.Profile, error)
}

// ObjectStore uploads a file and returns its public URL;
// *storage.S3Store implements it.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// profileRow is the profiles table row.
type profileRow struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type profileService struct {
	api      Doer
	sessions SessionStore
	objects  ObjectStore
	v        *validate.Validator
	log      logging.Logger
}

// NewProfileService builds a ProfileService. objects may be nil, in which
// case UploadAvatar fails with common.ErrUnavailable.
func NewProfileService(c Doer, sessions SessionStore, objects ObjectStore, log logging.Logger) ProfileService {
	if log == nil {
		log = logging.Nop()
	}
	return &profileService{api: c, sessions: sessions, objects: objects, v: validate.New(), log: log}
}

func (p *profileService) Load(ctx context.Context) (models.Profile, error) {
	var u User
	if _, err := p.api.Do(ctx, api.Request{Method: http.MethodGet, Path: "/auth/v1/user"}, &u); err != nil {
		return models.Profile{}, fmt.Errorf("load user: %w", err)
	}

	prof := models.Profile{
		ID:            u.ID,
		Email:         u.Email,
		Phone:         u.Phone,
		EmailVerified: u.EmailConfirmedAt != nil,
		PhoneVerified: u.PhoneConfirmedAt != nil,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}

	var rows []profileRow
	_, err := p.api.Do(ctx, api.Request{
		Method: http.MethodGet,
		Path:   "/rest/v1/profiles",
		Query:  url.Values{"select": {"*"}, "id": {"eq." + u.ID}},
	}, &rows)
	if err != nil {
		return models.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	if len(rows) > 0 {
		mergeRow(&prof, rows[0])
	} else {
		p.log.Warn(ctx, "profile row missing", "user_id", u.ID)
	}

	if err := p.sessions.SaveProfile(ctx, prof); err != nil {
		return models.Profile{}, fmt.Errorf("cache profile: %w", err)
	}
	return prof, nil
}

func (p *profileService) Current(ctx context.Context) (models.Profile, bool, error) {
	var prof models.Profile
	ok, err := p.sessions.Profile(ctx, &prof)
	if err != nil || !ok {
		return models.Profile{}, false, err
	}
	return prof, true, nil
}

func (p *profileService) Update(ctx context.Context, upd models.ProfileUpdate) (models.Profile, error) {
	if err := p.v.Struct(upd); err != nil {
		return models.Profile{}, err
	}

	prof, err := p.currentOrLoad(ctx)
	if err != nil {
		return models.Profile{}, err
	}
	if upd.Empty() {
		return prof, nil
	}

	var rows []profileRow
	_, err = p.api.Do(ctx, api.Request{
		Method: http.MethodPatch,
		Path:   "/rest/v1/profiles",
		Query:  url.Values{"id": {"eq." + prof.ID}},
		Body:   upd,
		Header: http.Header{"Prefer": {"return=representation"}},
	}, &rows)
	if err != nil {
		return models.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	if len(rows) == 0 {
		return models.Profile{}, fmt.Errorf("update profile %s: %w", prof.ID, common.ErrNotFound)
	}

	mergeRow(&prof, rows[0])
	if err := p.sessions.SaveProfile(ctx, prof); err != nil {
		return models.Profile{}, fmt.Errorf("cache profile: %w", err)
	}
	p.log.Info(ctx, "profile updated", "user_id", prof.ID)
	return prof, nil
}

// UploadAvatar stores the image under "<user id>/<random>.<ext>" and saves
// its URL on the profile. When contentType is empty it is sniffed from the
// first bytes.
func (p *profileService) UploadAvatar(ctx context.Context, r io.Reader, size int64, contentType string) (models.Profile, error) {
	if p.objects == nil {
		return models.Profile{}, fmt.Errorf("avatar upload: %w: object storage not configured", common.ErrUnavailable)
	}

	br := bufio.NewReader(r)
	if contentType == "" {
		head, _ := br.Peek(512)
		contentType = http.DetectContentType(head)
	}

	ext, ok := avatarExtensions[contentType]
	switch {
	case !ok:
		return models.Profile{}, &common.ValidationError{Fields: map[string]string{"avatar": "must be a JPEG, PNG, WebP or GIF image"}}
	case size <= 0:
		return models.Profile{}, &common.ValidationError{Fields: map[string]string{"avatar": "is empty"}}
	case size > MaxAvatarSize:
		return models.Profile{}, &common.ValidationError{Fields: map[string]string{"avatar": "must be at most 5 MB"}}
	}

	prof, err := p.currentOrLoad(ctx)
	if err != nil {
		return models.Profile{}, err
	}

	key := fmt.Sprintf("%s/%s.%s", prof.ID, uuid.NewString(), ext)
	publicURL, err := p.objects.Put(ctx, key, br, size, contentType)
	if err != nil {
		return models.Profile{}, fmt.Errorf("avatar upload: %w", err)
	}
	p.log.Info(ctx, "avatar uploaded", "user_id", prof.ID, "key", key)

	return p.Update(ctx, models.ProfileUpdate{AvatarURL: &publicURL})
}

func (p *profileService) currentOrLoad(ctx context.Context) (models.Profile, error) {
	prof, ok, err := p.Current(ctx)
	if err != nil {
		return models.Profile{}, err
	}
	if ok && prof.ID != "" {
		return prof, nil
	}
	return p.Load(ctx)
}

func mergeRow(p *models.Profile, row profileRow) {
	p.FirstName = row.FirstName
	p.LastName = row.LastName
	if row.Phone != "" {
		p.Phone = row.Phone
	}
	p.AvatarURL = row.AvatarURL
	if !row.CreatedAt.IsZero() {
		p.CreatedAt = row.CreatedAt
	}
	if !row.UpdatedAt.IsZero() {
		p.UpdatedAt = row.UpdatedAt
	}
}
