package hipaa

import (
	"fmt"
	"strings"
)

// Level is an anonymization policy. Each level redacts everything the
// previous one does.
type Level int

const (
	LevelMinimal Level = iota + 1
	LevelModerate
	LevelAggressive
	LevelStatistical
)

var levelNames = map[Level]string{
	LevelMinimal:     "MINIMAL",
	LevelModerate:    "MODERATE",
	LevelAggressive:  "AGGRESSIVE",
	LevelStatistical: "STATISTICAL",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// ParseLevel accepts a level name in any case.
func ParseLevel(s string) (Level, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for l, name := range levelNames {
		if name == upper {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown anonymization level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid anonymization level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
