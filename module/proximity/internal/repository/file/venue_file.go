package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
	"github.com/lhakso/bar-tracker/module/proximity/internal/repository/database"
)

var _ database.VenueSource = (*VenueFile)(nil)

type venueDocument struct {
	Venues []domain.Venue `yaml:"venues"`
}

// VenueFile serves venues from a YAML document of the form
//
//	venues:
//	  - id: 1
//	    latitude: 38.0351
//	    longitude: -78.5001
type VenueFile struct {
	path string
	log  logrus.FieldLogger
}

func NewVenueFile(path string, log logrus.FieldLogger) *VenueFile {
	return &VenueFile{path: path, log: log}
}

func (f *VenueFile) FetchVenues(_ context.Context) ([]domain.Venue, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read venue file: %w", err)
	}

	var doc venueDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse venue file: %w", err)
	}
	return doc.Venues, nil
}

// Watch calls onChange whenever the venue file is written or replaced. The
// parent directory is watched so editors that swap files are picked up.
func (f *VenueFile) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch venue file: %w", err)
	}

	target := filepath.Clean(f.path)
	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					f.log.WithField("op", evt.Op.String()).Debug("venue file changed")
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.log.WithError(err).Warn("venue file watcher error")
			}
		}
	}()
	return nil
}
