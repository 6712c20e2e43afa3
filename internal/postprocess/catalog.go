package postprocess

import (
	"fmt"
	"strings"
)

// Catalog is the ordered class list a model was trained on, plus the
// description shown for each class.
type Catalog struct {
	Labels       []string          `yaml:"labels" json:"labels"`
	Descriptions map[string]string `yaml:"descriptions" json:"descriptions"`
}

// DefaultCatalog returns the mango leaf disease classes in training order.
func DefaultCatalog() Catalog {
	return Catalog{
		Labels: []string{
			"Anthracnose", "Bacterial Canker", "Cutting Weevil", "Die Back",
			"Gall Midge", "Healthy", "Powdery Mildew", "Sooty Mould",
		},
		Descriptions: map[string]string{
			"Anthracnose":      "Dark, sunken spots on mango leaves; often caused by Colletotrichum fungi.",
			"Bacterial Canker": "Irregular, water-soaked lesions that dry and crack; often surrounded by yellow halos.",
			"Cutting Weevil":   "Mechanical damage from insect bites; usually sharp and uniform cuts.",
			"Die Back":         "High confidence detection of die back disease showing characteristic tip-to-base tissue death progression",
			"Gall Midge":       "Swollen or blistered areas caused by larval feeding; common in tender shoots.",
			"Healthy":          "No signs of fungal, bacterial or pest-related damage.",
			"Powdery Mildew":   "White powdery fungal spots on the surface of leaves and stems.",
			"Sooty Mould":      "Blackish fungal growth on leaves due to honeydew excreted by sap-sucking insects.",
		},
	}
}

// Validate rejects empty, blank or duplicated labels.
func (c Catalog) Validate() error {
	if len(c.Labels) == 0 {
		return fmt.Errorf("catalog has no labels")
	}
	seen := make(map[string]struct{}, len(c.Labels))
	for i, l := range c.Labels {
		if strings.TrimSpace(l) == "" {
			return fmt.Errorf("catalog label %d is blank", i)
		}
		if _, dup := seen[l]; dup {
			return fmt.Errorf("catalog label %q is duplicated", l)
		}
		seen[l] = struct{}{}
	}
	return nil
}

// Matches reports an error unless classes lists exactly the catalog labels in
// the same order.
func (c Catalog) Matches(classes []string) error {
	if len(classes) != len(c.Labels) {
		return fmt.Errorf("model has %d classes, catalog has %d", len(classes), len(c.Labels))
	}
	for i := range classes {
		if classes[i] != c.Labels[i] {
			return fmt.Errorf("class %d: model says %q, catalog says %q", i, classes[i], c.Labels[i])
		}
	}
	return nil
}

// Postprocess ranks scores against the catalog.
func (c Catalog) Postprocess(scores []float64) (*Prediction, error) {
	return Postprocess(scores, c.Labels, c.Descriptions)
}
