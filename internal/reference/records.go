package reference

import "strings"

// Drug is a formulary entry. Its category is the drug class.
type Drug struct {
	Entry             `yaml:",inline"`
	Indication        string `yaml:"indication" json:"indication"`
	Dose              string `yaml:"dose" json:"dose"`
	Contraindications string `yaml:"contraindications" json:"contraindications"`
	SideEffects       string `yaml:"side_effects" json:"sideEffects"`
	Interactions      string `yaml:"interactions" json:"interactions"`
	Monitoring        string `yaml:"monitoring" json:"monitoring"`
}

func (d Drug) SearchFields() []string {
	return []string{d.Group, d.Indication}
}

// LabValue is one analyte. Its category is the panel it belongs to.
type LabValue struct {
	Entry                `yaml:",inline"`
	Normal               string `yaml:"normal" json:"normal"`
	Low                  string `yaml:"low" json:"low"`
	High                 string `yaml:"high" json:"high"`
	Critical             string `yaml:"critical" json:"critical"`
	ClinicalSignificance string `yaml:"clinical_significance" json:"clinicalSignificance"`
}

func (l LabValue) SearchFields() []string {
	return []string{l.Group, l.Low, l.High}
}

// Presentation is one candidate diagnosis for a presenting complaint
type Presentation struct {
	Name     string `yaml:"name" json:"name"`
	Features string `yaml:"features" json:"features"`
	Tests    string `yaml:"tests" json:"tests"`
	Urgency  string `yaml:"urgency" json:"urgency"`
	Pearls   string `yaml:"pearls" json:"clinicalPearls"`
}

// Differential lists the presentations to consider for a complaint
type Differential struct {
	Entry         `yaml:",inline"`
	RedFlags      string         `yaml:"red_flags" json:"redFlags"`
	Presentations []Presentation `yaml:"presentations" json:"presentations"`
}

func (d Differential) SearchFields() []string {
	fields := []string{d.Group}
	for _, p := range d.Presentations {
		fields = append(fields, p.Name, p.Features)
	}
	return fields
}

// Protocol is an emergency management algorithm
type Protocol struct {
	Entry           `yaml:",inline"`
	Urgency         string   `yaml:"urgency" json:"urgency"`
	Steps           []string `yaml:"steps" json:"steps"`
	Drugs           []string `yaml:"drugs" json:"drugs"`
	Guideline       string   `yaml:"guideline" json:"ukGuideline"`
	CriticalActions []string `yaml:"critical_actions" json:"criticalActions"`
}

func (p Protocol) SearchFields() []string {
	return append([]string{p.Group, p.Guideline}, p.Steps...)
}

// GeneticSection is a headed list of facts about a condition
type GeneticSection struct {
	Heading string   `yaml:"heading" json:"heading"`
	Items   []string `yaml:"items" json:"items"`
}

// Genetic describes an inherited condition. Its category is the inheritance pattern.
type Genetic struct {
	Entry    `yaml:",inline"`
	Tags     []string         `yaml:"tags" json:"tags"`
	Sections []GeneticSection `yaml:"sections" json:"sections"`
	Pearls   string           `yaml:"pearls" json:"pearls"`
}

func (g Genetic) SearchFields() []string {
	return append([]string{g.Group, g.Pearls}, g.Tags...)
}

// Triad is a classic three-sign pattern
type Triad struct {
	Entry                `yaml:",inline"`
	Components           []string `yaml:"components" json:"components"`
	Condition            string   `yaml:"condition" json:"condition"`
	Mechanism            string   `yaml:"mechanism" json:"mechanism"`
	Urgency              string   `yaml:"urgency" json:"urgency"`
	ClinicalSignificance string   `yaml:"clinical_significance" json:"clinicalSignificance"`
}

func (t Triad) SearchFields() []string {
	return append([]string{t.Condition}, t.Components...)
}

// Mnemonic is a memory aid
type Mnemonic struct {
	Entry    `yaml:",inline"`
	Mnemonic string   `yaml:"mnemonic" json:"mnemonic"`
	Meaning  string   `yaml:"meaning" json:"meaning"`
	Usage    string   `yaml:"usage" json:"usage"`
	Details  []string `yaml:"details" json:"details"`
}

func (m Mnemonic) SearchFields() []string {
	return []string{m.Mnemonic, m.Meaning, m.Usage, m.Group}
}

// Vaccination is one vaccine in the national schedule. Its category is the age it is given at.
type Vaccination struct {
	Entry   `yaml:",inline"`
	Summary string `yaml:"summary" json:"summary"`
	Notes   string `yaml:"notes" json:"notes"`
}

func (v Vaccination) SearchFields() []string {
	return []string{v.Group, v.Summary}
}

// Emergency reports whether a triad needs immediate action
func (t Triad) Emergency() bool {
	return strings.EqualFold(t.Urgency, "emergency")
}
