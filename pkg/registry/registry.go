// Package registry is the durable on-disk store of cluster metadata records,
// one JSON document per cluster under the registry directory.
//
// The registry is the sole source of truth for cluster metadata and is owned
// exclusively by the provisioning subsystem. Writes use the
// write-temp-then-rename discipline so readers never observe a half-written
// record.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/kdev-sh/kdev/pkg/clustererr"
)

const (
	recordExt  = ".json"
	filePerm   = 0o600
	dirPerm    = 0o755
	tmpPattern = ".record-*"
)

// ClusterRecord is the persisted metadata for one cluster, identified by Name.
// Records are never mutated in place; recreation is delete + create.
type ClusterRecord struct {
	Name             string    `json:"name"`
	Repository       string    `json:"repository"`
	Developer        string    `json:"developer"`
	Email            string    `json:"email"`
	LoadBalancerPort int       `json:"loadBalancerPort"`
	APIPort          int       `json:"apiPort"`
	KubeconfigPath   string    `json:"kubeconfigPath"`
	CreatedAt        time.Time `json:"createdAt"`
	EngineVersion    string    `json:"engineVersion"`
	Shared           bool      `json:"shared"`
}

// Registry stores one record file per cluster in a single directory.
type Registry struct {
	fsys afero.Afero
	dir  string
}

// NewRegistry constructs a registry over the given filesystem and directory.
// A nil filesystem defaults to the OS filesystem.
func NewRegistry(fsys afero.Fs, dir string) *Registry {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	return &Registry{fsys: afero.Afero{Fs: fsys}, dir: dir}
}

// Put serializes the record to a temp file in the registry directory and
// atomically renames it over {name}.json. A partially-written record is never
// visible under the final name.
func (r *Registry) Put(record *ClusterRecord) error {
	err := r.fsys.MkdirAll(r.dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record %q: %w", record.Name, err)
	}

	tmpFile, err := r.fsys.TempFile(r.dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("create temp record file: %w", err)
	}

	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()

	if writeErr != nil || closeErr != nil {
		_ = r.fsys.Remove(tmpPath)

		return fmt.Errorf("write temp record file: %w", errors.Join(writeErr, closeErr))
	}

	err = r.fsys.Rename(tmpPath, r.path(record.Name))
	if err != nil {
		_ = r.fsys.Remove(tmpPath)

		return fmt.Errorf("rename record %q into place: %w", record.Name, err)
	}

	return nil
}

// Get returns the record for name. Absent or unparsable records yield
// clustererr.NotFoundError; corruption never crashes the caller.
func (r *Registry) Get(name string) (*ClusterRecord, error) {
	data, err := r.fsys.ReadFile(r.path(name))
	if err != nil {
		return nil, &clustererr.NotFoundError{Name: name, Known: r.Names()}
	}

	var record ClusterRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		logrus.WithError(err).Warnf("registry record %q is corrupt, treating as absent", name)

		return nil, &clustererr.NotFoundError{Name: name, Known: r.Names()}
	}

	return &record, nil
}

// List enumerates all well-formed records sorted by name. Malformed files are
// skipped with a warning, never fatal.
func (r *Registry) List() ([]ClusterRecord, error) {
	entries, err := r.fsys.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("read registry directory: %w", err)
	}

	records := make([]ClusterRecord, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordExt) {
			continue
		}

		data, readErr := r.fsys.ReadFile(filepath.Join(r.dir, entry.Name()))
		if readErr != nil {
			logrus.WithError(readErr).Warnf("skipping unreadable registry file %q", entry.Name())

			continue
		}

		var record ClusterRecord

		decodeErr := json.Unmarshal(data, &record)
		if decodeErr != nil || record.Name == "" {
			logrus.Warnf("skipping corrupt registry file %q", entry.Name())

			continue
		}

		records = append(records, record)
	}

	slices.SortFunc(records, func(a, b ClusterRecord) int {
		return strings.Compare(a.Name, b.Name)
	})

	return records, nil
}

// Names returns the names of all well-formed records.
func (r *Registry) Names() []string {
	records, err := r.List()
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(records))
	for _, record := range records {
		names = append(names, record.Name)
	}

	return names
}

// Delete removes the record file. Deleting an absent record is not an error.
func (r *Registry) Delete(name string) error {
	err := r.fsys.Remove(r.path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete record %q: %w", name, err)
	}

	return nil
}

// ListOrphans returns records whose name is not present in liveNames.
func (r *Registry) ListOrphans(liveNames []string) ([]ClusterRecord, error) {
	records, err := r.List()
	if err != nil {
		return nil, err
	}

	orphans := make([]ClusterRecord, 0)

	for _, record := range records {
		if !slices.Contains(liveNames, record.Name) {
			orphans = append(orphans, record)
		}
	}

	return orphans, nil
}

func (r *Registry) path(name string) string {
	return filepath.Join(r.dir, name+recordExt)
}
