// Package catalog loads course definitions from *.course.yaml files and
// seeds them into the course repository.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skillforge/lms-backend/internal/domain/course"
	"github.com/skillforge/lms-backend/pkg/logger"
)

// FileSuffix marks course definition files.
const FileSuffix = ".course.yaml"

// courseFile is the on-disk layout of a course.
type courseFile struct {
	ID           string          `yaml:"id"`
	Title        string          `yaml:"title"`
	Description  string          `yaml:"description"`
	Category     string          `yaml:"category"`
	Level        course.Level    `yaml:"level"`
	InstructorID string          `yaml:"instructor_id"`
	Published    bool            `yaml:"published"`
	Modules      []course.Module `yaml:"modules"`
}

func (f courseFile) toCourse() *course.Course {
	return &course.Course{
		ID:           f.ID,
		Title:        f.Title,
		Description:  f.Description,
		Category:     f.Category,
		Level:        f.Level,
		InstructorID: f.InstructorID,
		IsPublished:  f.Published,
		Modules:      f.Modules,
	}
}

// Loader reads course definitions from a directory tree.
type Loader struct {
	rootDir   string
	log       *logger.Logger
	afterSave []func(context.Context, *course.Course) error
}

// AfterSave registers fn to run for every course Seed stores, e.g. to drop
// snapshots computed against the previous module list.
func (l *Loader) AfterSave(fn func(context.Context, *course.Course) error) *Loader {
	l.afterSave = append(l.afterSave, fn)
	return l
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{rootDir: dir, log: log.With(logger.Component("catalog"))}
}

// Load parses and validates every course file. Files that are not valid
// YAML are skipped with a warning; a file that parses but fails validation
// or repeats a course id aborts the load.
func (l *Loader) Load() ([]*course.Course, error) {
	byID := make(map[string]string)
	var courses []*course.Course

	err := filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, FileSuffix) {
			return nil
		}

		c, err := l.loadFile(path)
		if err != nil || c == nil {
			return err
		}

		if prev, dup := byID[c.ID]; dup {
			return fmt.Errorf("catalog: course %q defined in both %s and %s", c.ID, prev, path)
		}
		byID[c.ID] = path
		courses = append(courses, c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses, nil
}

func (l *Loader) loadFile(path string) (*course.Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f courseFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		l.log.Warn("skipping invalid course YAML", logger.String("path", path), logger.Err(err))
		return nil, nil
	}

	c := f.toCourse()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return c, nil
}

// Seed loads the catalog and upserts every course. It returns the number saved.
func (l *Loader) Seed(ctx context.Context, repo course.Repository) (int, error) {
	courses, err := l.Load()
	if err != nil {
		return 0, err
	}

	for _, c := range courses {
		if err := repo.Save(ctx, c); err != nil {
			return 0, fmt.Errorf("catalog: save %q: %w", c.ID, err)
		}
		for _, fn := range l.afterSave {
			if err := fn(ctx, c); err != nil {
				l.log.Warn("after-save hook failed", logger.String("course_id", c.ID), logger.Err(err))
			}
		}
	}

	l.log.Info("catalog seeded", logger.Int("courses", len(courses)), logger.String("dir", l.rootDir))
	return len(courses), nil
}
