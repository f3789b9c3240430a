package tunnelflight

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

type SkillStatus string

const (
	SkillNotPassed SkillStatus = "not_passed"
	SkillPending   SkillStatus = "pending"
	SkillPassed    SkillStatus = "passed"
)

// Skill is one of the static, dynamic or formation skill tracks.
type Skill struct {
	Name    string      `json:"name"`
	Raw     string      `json:"raw_value"`
	Pending bool        `json:"pending"`
	Level   int         `json:"level"`
	Status  SkillStatus `json:"status"`
}

type Skills struct {
	Level1        bool  `json:"level1"`
	Level1Pending bool  `json:"level1_pending"`
	Static        Skill `json:"static"`
	Dynamic       Skill `json:"dynamic"`
	Formation     Skill `json:"formation"`
}

// All returns the three skill tracks in a fixed order.
func (s Skills) All() []Skill {
	return []Skill{s.Static, s.Dynamic, s.Formation}
}

type rawSkills struct {
	Level1           *flexString `json:"level1"`
	Static           *flexString `json:"static"`
	Dynamic          *flexString `json:"dynamic"`
	Formation        *flexString `json:"formation"`
	Level1Pending    flexBool    `json:"level1Pending"`
	StaticPending    flexBool    `json:"staticPending"`
	DynamicPending   flexBool    `json:"dynamicPending"`
	FormationPending flexBool    `json:"formationPending"`
}

var levelRegex = regexp.MustCompile(`(?i)^level\s*(\d+)$`)

// decodeLevel maps "Yes" to 1 and "Level N" to N, anything else is 0.
func decodeLevel(raw string) int {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "yes") {
		return 1
	}
	match := levelRegex.FindStringSubmatch(raw)
	if match == nil {
		return 0
	}
	level, err := strconv.Atoi(match[1])
	if err != nil || level < 0 {
		return 0
	}
	return level
}

func newSkill(name string, raw *flexString, pending bool, level1 bool) Skill {
	value := "No"
	if raw != nil && *raw != "" {
		value = string(*raw)
	}
	skill := Skill{
		Name:    name,
		Raw:     value,
		Pending: pending,
		Level:   decodeLevel(value),
	}
	// level1 is a floor, it never lowers a higher level
	if level1 && skill.Level < 1 {
		skill.Level = 1
	}
	switch {
	case skill.Pending:
		skill.Status = SkillPending
	case skill.Level > 0:
		skill.Status = SkillPassed
	default:
		skill.Status = SkillNotPassed
	}
	return skill
}

func (r rawSkills) decode() Skills {
	level1 := r.Level1 != nil && string(*r.Level1) == "Yes"
	return Skills{
		Level1:        level1,
		Level1Pending: bool(r.Level1Pending),
		Static:        newSkill("static", r.Static, bool(r.StaticPending), level1),
		Dynamic:       newSkill("dynamic", r.Dynamic, bool(r.DynamicPending), level1),
		Formation:     newSkill("formation", r.Formation, bool(r.FormationPending), level1),
	}
}

// defaultSkills is what a profile carries when the skills endpoint failed.
func defaultSkills() Skills {
	return rawSkills{}.decode()
}

func parseSkills(data []byte) (Skills, error) {
	var raw rawSkills
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return Skills{}, err
	}
	return raw.decode(), nil
}
