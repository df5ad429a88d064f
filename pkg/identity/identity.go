// Package identity derives the stable, filesystem-safe cluster identity from
// the repository and the developer's VCS configuration.
//
// Identity resolution is pure for fixed inputs: the same repository path,
// developer name, and email always yield the same cluster name, which keeps
// repeated provisioning idempotent and port derivation stable.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	giturls "github.com/chainguard-dev/git-urls"
	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"

	"github.com/kdev-sh/kdev/pkg/clustererr"
)

const (
	// maxClusterNameLength matches the cluster engine's name constraint.
	maxClusterNameLength = 63

	// hashLength is the width of the identity disambiguation hash.
	hashLength = 6

	// sentinelEmail stands in when no contact identifier is configured.
	// Hash-based disambiguation degrades gracefully rather than blocking.
	sentinelEmail = "unknown@example.com"

	originRemote = "origin"
	gitSuffix    = ".git"
)

// ClusterIdentity is the derived identity for one (repository, developer) pair.
type ClusterIdentity struct {
	// Repository is the normalized repository token.
	Repository string
	// Developer is the normalized developer token.
	Developer string
	// DeveloperName is the configured display name as-is.
	DeveloperName string
	// Email is the configured contact identifier (or the sentinel).
	Email string
	// Hash is the short hash of Email disambiguating colliding display names.
	Hash string
	// Shared indicates the identity is keyed by repository alone.
	Shared bool
}

// ClusterName returns the engine-safe cluster name for this identity.
func (id ClusterIdentity) ClusterName() string {
	name := id.Repository
	if !id.Shared {
		name = fmt.Sprintf("%s-%s-%s", id.Repository, id.Developer, id.Hash)
	}

	if len(name) > maxClusterNameLength {
		name = name[:maxClusterNameLength]
	}

	return strings.Trim(name, "-")
}

// Resolver derives cluster identities from a repository working tree.
type Resolver struct{}

// NewResolver constructs an identity resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve derives the identity for the working tree at path. The shared flag
// keys the identity by repository alone so multiple developers attach to the
// same cluster.
//
// A missing developer name is fatal (clustererr.ErrMissingDeveloperName); a
// missing email falls back to a deterministic sentinel.
func (r *Resolver) Resolve(path string, shared bool) (ClusterIdentity, error) {
	repo, openErr := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit: true,
	})

	repoToken, err := repositoryToken(repo, path)
	if err != nil {
		return ClusterIdentity{}, err
	}

	userCfg, err := loadUserConfig(repo, openErr)
	if err != nil {
		return ClusterIdentity{}, err
	}

	developerName := strings.TrimSpace(userCfg.User.Name)
	if developerName == "" {
		return ClusterIdentity{}, clustererr.ErrMissingDeveloperName
	}

	email := strings.TrimSpace(userCfg.User.Email)
	if email == "" {
		email = sentinelEmail
	}

	return ClusterIdentity{
		Repository:    repoToken,
		Developer:     normalizeToken(developerName),
		DeveloperName: developerName,
		Email:         email,
		Hash:          shortHash(email),
		Shared:        shared,
	}, nil
}

// repositoryToken derives the repository token from the origin remote URL,
// falling back to the directory basename when no remote is configured.
func repositoryToken(repo *git.Repository, path string) (string, error) {
	if repo != nil {
		remote, remoteErr := repo.Remote(originRemote)
		if remoteErr == nil && len(remote.Config().URLs) > 0 {
			token, parseErr := tokenFromRemoteURL(remote.Config().URLs[0])
			if parseErr == nil && token != "" {
				return token, nil
			}
		}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve repository path: %w", err)
	}

	return normalizeToken(filepath.Base(absPath)), nil
}

// tokenFromRemoteURL extracts the last path segment of a remote URL and
// strips the VCS suffix.
func tokenFromRemoteURL(rawURL string) (string, error) {
	parsed, err := giturls.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse remote url: %w", err)
	}

	segment := filepath.Base(strings.TrimSuffix(parsed.Path, "/"))
	segment = strings.TrimSuffix(segment, gitSuffix)

	return normalizeToken(segment), nil
}

// loadUserConfig returns the merged git configuration. When the repository
// opened, its scoped config merges system, global, and local values;
// otherwise the global config alone is used.
func loadUserConfig(repo *git.Repository, openErr error) (*gitconfig.Config, error) {
	if openErr == nil && repo != nil {
		cfg, err := repo.ConfigScoped(gitconfig.GlobalScope)
		if err != nil {
			return nil, fmt.Errorf("load repository git config: %w", err)
		}

		return cfg, nil
	}

	cfg, err := gitconfig.LoadConfig(gitconfig.GlobalScope)
	if err != nil {
		return nil, fmt.Errorf("load global git config: %w", err)
	}

	return cfg, nil
}

// normalizeToken lowercases the input and replaces every character outside
// [a-z0-9-] with a dash.
func normalizeToken(input string) string {
	lowered := strings.ToLower(input)

	var builder strings.Builder

	builder.Grow(len(lowered))

	for _, char := range lowered {
		switch {
		case char >= 'a' && char <= 'z',
			char >= '0' && char <= '9',
			char == '-':
			builder.WriteRune(char)
		default:
			builder.WriteRune('-')
		}
	}

	return strings.Trim(builder.String(), "-")
}

// shortHash returns the fixed-width hex hash of the contact identifier.
func shortHash(email string) string {
	sum := sha256.Sum256([]byte(email))

	return hex.EncodeToString(sum[:])[:hashLength]
}
