package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/campusfeed/internal/domain/model"
)

// viewerFile is the YAML shape of a viewer.
type viewerFile struct {
	ViewerID        string             `yaml:"viewer_id"`
	FollowedClubIDs []string           `yaml:"followed_club_ids"`
	InterestScore   map[string]float64 `yaml:"interest_score"`
}

// state converts the file form into a ViewerState. Known category names are
// matched case-insensitively; unknown ones are kept verbatim. Two names for
// the same category are an error.
func (v viewerFile) state() (model.ViewerState, error) {
	interests, err := model.NormalizeInterests(v.InterestScore)
	if err != nil {
		return model.ViewerState{}, fmt.Errorf("viewer %q: %w", v.ViewerID, err)
	}
	return model.NewViewerState(v.ViewerID, v.FollowedClubIDs, interests), nil
}

// fixture is a YAML snapshot with optional viewers, used by rank and by
// serve to seed the in-memory store.
type fixture struct {
	Clubs   []model.Club  `yaml:"clubs"`
	Events  []model.Event `yaml:"events"`
	Posts   []model.Post  `yaml:"posts"`
	Viewers []viewerFile  `yaml:"viewers"`
}

func (f fixture) snapshot() model.Snapshot {
	events := make([]model.Event, len(f.Events))
	for i, e := range f.Events {
		e.Category = model.NormalizeCategory(string(e.Category))
		events[i] = e
	}
	return model.Snapshot{Posts: f.Posts, Clubs: f.Clubs, Events: events}
}

func (f fixture) viewers() ([]model.ViewerState, error) {
	out := make([]model.ViewerState, 0, len(f.Viewers))
	for _, v := range f.Viewers {
		s, err := v.state()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func readFixture(path string) (fixture, error) {
	var f fixture
	err := readYAML(path, &f)
	return f, err
}

func readViewer(path string) (model.ViewerState, error) {
	var v viewerFile
	if err := readYAML(path, &v); err != nil {
		return model.ViewerState{}, err
	}
	state, err := v.state()
	if err != nil {
		return model.ViewerState{}, fmt.Errorf("%s: %w", path, err)
	}
	return state, nil
}
