package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/club-registration/internal/models"
)

//go:embed default.yaml
var defaultCatalog []byte

// Validation errors
var (
	ErrEmptyCatalog    = errors.New("catalog has no clubs")
	ErrDuplicateGrade  = errors.New("grade listed more than once")
	ErrDuplicateClub   = errors.New("club listed more than once for a grade")
	ErrConflictingClub = errors.New("shared club has conflicting definitions")
	ErrInvalidClub     = errors.New("invalid club definition")
)

// Catalog is the immutable club configuration, indexed by grade and by id
type Catalog struct {
	grades  []models.Grade
	byGrade map[models.Grade][]models.Club
	byID    map[string]models.Club
	all     []models.Club
}

// New builds a catalog from clubs tagged with their grade.
// Grade order and per-grade club order follow the input.
func New(clubs ...models.Club) (*Catalog, error) {
	c := &Catalog{
		byGrade: make(map[models.Grade][]models.Club),
		byID:    make(map[string]models.Club),
	}

	for _, club := range clubs {
		if err := c.add(club); err != nil {
			return nil, err
		}
	}

	if len(c.all) == 0 {
		return nil, ErrEmptyCatalog
	}

	return c, nil
}

// MustNew is New for static definitions; it panics on invalid input
func MustNew(clubs ...models.Club) *Catalog {
	c, err := New(clubs...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) add(club models.Club) error {
	if club.ID == "" || club.Name == "" {
		return fmt.Errorf("%w: id and name are required (id=%q)", ErrInvalidClub, club.ID)
	}
	if club.Capacity < 0 {
		return fmt.Errorf("%w: negative capacity for %s", ErrInvalidClub, club.ID)
	}

	gradeClubs, seen := c.byGrade[club.Grade]
	if !seen {
		c.grades = append(c.grades, club.Grade)
	}
	for _, existing := range gradeClubs {
		if existing.ID == club.ID {
			return fmt.Errorf("%w: %s in grade %d", ErrDuplicateClub, club.ID, club.Grade)
		}
	}
	c.byGrade[club.Grade] = append(gradeClubs, club)

	if existing, ok := c.byID[club.ID]; ok {
		if existing.Name != club.Name || existing.Capacity != club.Capacity {
			return fmt.Errorf("%w: %s", ErrConflictingClub, club.ID)
		}
		return nil
	}

	c.byID[club.ID] = club
	c.all = append(c.all, club)
	return nil
}

// ClubsForGrade returns the ordered clubs offered to a grade.
// Unknown grades yield an empty slice.
func (c *Catalog) ClubsForGrade(grade models.Grade) []models.Club {
	clubs := c.byGrade[grade]
	result := make([]models.Club, len(clubs))
	copy(result, clubs)
	return result
}

// AllClubs returns every club once, deduplicated by id, in first-seen order
func (c *Catalog) AllClubs() []models.Club {
	result := make([]models.Club, len(c.all))
	copy(result, c.all)
	return result
}

// Get looks up a club by id regardless of grade
func (c *Catalog) Get(id string) (models.Club, bool) {
	club, ok := c.byID[id]
	return club, ok
}

// Grades returns the configured grades in file order
func (c *Catalog) Grades() []models.Grade {
	result := make([]models.Grade, len(c.grades))
	copy(result, c.grades)
	return result
}

// DisplayName returns the club name, or the id itself for unknown clubs
func (c *Catalog) DisplayName(id string) string {
	if club, ok := c.byID[id]; ok {
		return club.Name
	}
	return id
}

// Default returns the built-in catalog
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// LoadFromFile loads a catalog from a YAML file
func LoadFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, err
	}

	slog.Info("catalog loaded", "file", path, "grades", len(c.grades), "clubs", len(c.all))
	return c, nil
}

// Parse decodes a YAML catalog document
func Parse(data []byte) (*Catalog, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seenGrades := make(map[int]bool)
	var clubs []models.Club
	for _, g := range cf.Grades {
		if seenGrades[g.Grade] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateGrade, g.Grade)
		}
		seenGrades[g.Grade] = true

		for _, club := range g.Clubs {
			club.Grade = models.Grade(g.Grade)
			clubs = append(clubs, club)
		}
	}

	return New(clubs...)
}

// --- YAML file structs ---

// catalogFile represents the YAML structure of a catalog file
type catalogFile struct {
	Grades []gradeFile `yaml:"grades"`
}

// gradeFile lists the clubs offered to one grade
type gradeFile struct {
	Grade int           `yaml:"grade"`
	Clubs []models.Club `yaml:"clubs"`
}
