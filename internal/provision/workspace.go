package provision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrWorkspaceUserNotFound is returned by a Directory lookup when no account
// uses the email. For provisioning this is the good case: the address is
// free.
var ErrWorkspaceUserNotFound = errors.New("workspace user not found")

// Directory is the minimal directory-management surface the workspace
// provisioner needs. The production implementation talks to the Google
// Workspace Admin SDK with delegated credentials.
type Directory interface {
	// GetUser checks whether an account exists for the email. Returns
	// ErrWorkspaceUserNotFound when it does not.
	GetUser(ctx context.Context, email string) error

	// InsertUser creates a new directory account.
	InsertUser(ctx context.Context, user *admin.User) error

	// DeleteUser removes a directory account.
	DeleteUser(ctx context.Context, email string) error
}

// Workspace provisions directory accounts for tenant administrators.
type Workspace struct {
	dir    Directory
	domain string
}

// NewWorkspace creates a workspace account provisioner for the domain.
func NewWorkspace(dir Directory, domain string) *Workspace {
	return &Workspace{dir: dir, domain: domain}
}

var workspaceSlugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugName(value string) string {
	slug := strings.Trim(workspaceSlugPattern.ReplaceAllString(strings.ToLower(value), "."), ".")
	if slug == "" {
		return "user"
	}
	return slug
}

// Provision creates a directory account for the tenant administrator and
// returns its email. Candidate addresses are probed starting from
// first.last@domain, appending 1, 2, ... until a free one is found; an
// existing account is never overwritten. The account is created with the
// given password and must change it at first login.
func (w *Workspace) Provision(ctx context.Context, firstName, lastName, password string) (string, error) {
	base := slugName(firstName) + "." + slugName(lastName)

	candidate := base
	var email string
	for attempt := 1; ; attempt++ {
		email = candidate + "@" + w.domain

		err := w.dir.GetUser(ctx, email)
		if errors.Is(err, ErrWorkspaceUserNotFound) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to check workspace account %s: %w", email, err)
		}

		candidate = fmt.Sprintf("%s%d", base, attempt)
	}

	user := &admin.User{
		PrimaryEmail: email,
		Name: &admin.UserName{
			GivenName:  firstName,
			FamilyName: lastName,
		},
		Password:                  password,
		ChangePasswordAtNextLogin: true,
	}

	if err := w.dir.InsertUser(ctx, user); err != nil {
		return "", fmt.Errorf("failed to create workspace account %s: %w", email, err)
	}

	log.Info().Str("email", email).Msg("Provisioned workspace account")
	return email, nil
}

// Deprovision removes a previously created account. Used as the compensating
// action when a later provisioning step fails.
func (w *Workspace) Deprovision(ctx context.Context, email string) error {
	if err := w.dir.DeleteUser(ctx, email); err != nil {
		return fmt.Errorf("failed to delete workspace account %s: %w", email, err)
	}

	log.Info().Str("email", email).Msg("Deprovisioned workspace account")
	return nil
}

// googleDirectory implements Directory against the Admin SDK.
type googleDirectory struct {
	svc *admin.Service
}

// NewGoogleDirectory builds a Directory backed by the Google Workspace Admin
// SDK. The service account credentials are exchanged for delegated-identity
// credentials impersonating subject, scoped to directory user management
// only.
func NewGoogleDirectory(ctx context.Context, credentialsFile, subject string) (Directory, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace credentials: %w", err)
	}

	cfg, err := google.JWTConfigFromJSON(data, admin.AdminDirectoryUserScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workspace credentials: %w", err)
	}
	cfg.Subject = subject

	svc, err := admin.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create directory service: %w", err)
	}

	return &googleDirectory{svc: svc}, nil
}

func (g *googleDirectory) GetUser(ctx context.Context, email string) error {
	_, err := g.svc.Users.Get(email).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return ErrWorkspaceUserNotFound
		}
		return err
	}
	return nil
}

func (g *googleDirectory) InsertUser(ctx context.Context, user *admin.User) error {
	_, err := g.svc.Users.Insert(user).Context(ctx).Do()
	return err
}

func (g *googleDirectory) DeleteUser(ctx context.Context, email string) error {
	return g.svc.Users.Delete(email).Context(ctx).Do()
}
