package importer

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
)

// areaFile is the YAML layout of the area directory. Either form may be
// used, or both:
//
//	regions:
//	  North: [Medford, Bend]
//	areas:
//	  - area: Eugene
//	    region: South
type areaFile struct {
	Regions map[string][]string    `yaml:"regions"`
	Areas   []model.AreaAssignment `yaml:"areas"`
}

// LoadAreas reads an area directory file.
func LoadAreas(path string) ([]model.AreaAssignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: read areas %s", path)
	}
	return ParseAreas(data)
}

// ParseAreas decodes an area directory. An area listed under two regions
// is an error. Output is sorted by area.
func ParseAreas(data []byte) ([]model.AreaAssignment, error) {
	var f areaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "importer: parse areas")
	}

	regionOf := make(map[string]string)
	add := func(area, region string) error {
		area, region = strings.TrimSpace(area), strings.TrimSpace(region)
		if area == "" || region == "" {
			return &resilience.ValidationError{Field: "area", Value: area + "/" + region, Msg: "area and region are required"}
		}
		if prev, ok := regionOf[area]; ok && prev != region {
			return &resilience.ValidationError{Field: "area", Value: area, Msg: "mapped to both " + prev + " and " + region}
		}
		regionOf[area] = region
		return nil
	}

	regions := make([]string, 0, len(f.Regions))
	for r := range f.Regions {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	for _, r := range regions {
		for _, a := range f.Regions[r] {
			if err := add(a, r); err != nil {
				return nil, err
			}
		}
	}
	for _, a := range f.Areas {
		if err := add(a.Area, a.Region); err != nil {
			return nil, err
		}
	}

	out := make([]model.AreaAssignment, 0, len(regionOf))
	for a, r := range regionOf {
		out = append(out, model.AreaAssignment{Area: a, Region: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Area < out[j].Area })
	return out, nil
}
