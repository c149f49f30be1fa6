package ingestion

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aiscope/aiscope/helper"
)

// FeedSource is one configured RSS/Atom feed
type FeedSource struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type sourcesFile struct {
	Sources []FeedSource `yaml:"sources"`
}

// LoadSources reads the feed source list from a YAML file.
// Every source needs a name and a URL.
func LoadSources(path string) ([]FeedSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, helper.NewError("read sources file", err)
	}

	var file sourcesFile
	err = yaml.Unmarshal(data, &file)
	if err != nil {
		return nil, helper.NewError("parse sources file", err)
	}

	for i, source := range file.Sources {
		if source.Name == "" {
			return nil, helper.NewError("validate sources file", fmt.Errorf("source %d has no name", i))
		}
		if source.URL == "" {
			return nil, helper.NewError("validate sources file", fmt.Errorf("source %q has no url", source.Name))
		}
	}

	return file.Sources, nil
}
