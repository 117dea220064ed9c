package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/models"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
)

type trendStore interface {
	Students(ctx context.Context, gradeLevel *int) ([]models.TrendStudent, error)
	GPAHistory(ctx context.Context, studentIDs []string) ([]models.GPAEntry, error)
	SoftSkills(ctx context.Context, studentIDs []string) ([]models.SoftSkill, error)
}

// gpaEpsilon absorbs float noise around bucket edges and the drop threshold.
const gpaEpsilon = 1e-9

// ReportService computes the trend report and caches it per filter.
type ReportService struct {
	trends   trendStore
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewReportService constructs the report service. cache may be nil.
func NewReportService(trends trendStore, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{trends: trends, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Trends returns the report for filter and whether it was served from cache.
func (s *ReportService) Trends(ctx context.Context, filter models.TrendsFilter) (*models.TrendsReport, bool, error) {
	if filter.MinGPA != nil && filter.MaxGPA != nil && *filter.MinGPA > *filter.MaxGPA {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "min_gpa must not exceed max_gpa")
	}
	key := trendsCacheKey(filter)
	var cached models.TrendsReport
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	students, err := s.trends.Students(ctx, filter.GradeLevel)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	history, err := s.trends.GPAHistory(ctx, ids)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load gpa history")
	}
	skills, err := s.trends.SoftSkills(ctx, ids)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load soft skills")
	}

	report := BuildTrendsReport(students, history, skills, filter)
	s.cache.Set(ctx, key, report, s.cacheTTL)
	return &report, false, nil
}

// BuildTrendsReport aggregates the histogram, skill coverage and GPA drops.
func BuildTrendsReport(students []models.TrendStudent, history []models.GPAEntry, skills []models.SoftSkill, filter models.TrendsFilter) models.TrendsReport {
	byStudent := make(map[string][]models.GPAEntry, len(students))
	for _, entry := range history {
		byStudent[entry.StudentID] = append(byStudent[entry.StudentID], entry)
	}

	ranged := filter.MinGPA != nil || filter.MaxGPA != nil
	included := make(map[string]struct{}, len(students))
	counts := make(map[string]int, len(models.GPABuckets))
	drops := make([]models.GPADrop, 0)

	for _, st := range students {
		entries := byStudent[st.ID]
		sortChronologically(entries)
		if ranged {
			if len(entries) == 0 {
				continue
			}
			latest := entries[len(entries)-1].GPAValue
			if filter.MinGPA != nil && latest < *filter.MinGPA-gpaEpsilon {
				continue
			}
			if filter.MaxGPA != nil && latest > *filter.MaxGPA+gpaEpsilon {
				continue
			}
		}
		included[st.ID] = struct{}{}
		if len(entries) == 0 {
			continue
		}
		counts[bucketFor(entries[len(entries)-1].GPAValue)]++
		if drop, ok := detectDrop(st, entries); ok {
			drops = append(drops, drop)
		}
	}

	histogram := make([]models.HistogramBucket, 0, len(models.GPABuckets))
	for _, label := range models.GPABuckets {
		histogram = append(histogram, models.HistogramBucket{Range: label, Count: counts[label]})
	}

	skillCounts := map[string]int{}
	for _, skill := range skills {
		if _, ok := included[skill.StudentID]; !ok || skill.SkillName == "" {
			continue
		}
		skillCounts[skill.SkillName]++
	}
	coverage := make([]models.SkillCount, 0, len(skillCounts))
	for name, n := range skillCounts {
		coverage = append(coverage, models.SkillCount{SkillName: name, Count: n})
	}
	sort.Slice(coverage, func(i, j int) bool {
		if coverage[i].Count != coverage[j].Count {
			return coverage[i].Count > coverage[j].Count
		}
		return coverage[i].SkillName < coverage[j].SkillName
	})

	sort.SliceStable(drops, func(i, j int) bool {
		if drops[i].DropAmount != drops[j].DropAmount {
			return drops[i].DropAmount > drops[j].DropAmount
		}
		return drops[i].FullName < drops[j].FullName
	})

	return models.TrendsReport{
		TotalStudents:     len(included),
		GPAHistogram:      histogram,
		SoftSkillCoverage: coverage,
		GPADrops:          drops,
	}
}

// bucketFor places a GPA in the bucket whose upper bound it does not exceed.
func bucketFor(gpa float64) string {
	switch {
	case gpa <= 1.0+gpaEpsilon:
		return models.BucketLow
	case gpa <= 2.0+gpaEpsilon:
		return models.BucketLowMid
	case gpa <= 3.0+gpaEpsilon:
		return models.BucketHighMid
	default:
		return models.BucketHigh
	}
}

// detectDrop compares the last two chronological entries.
func detectDrop(st models.TrendStudent, entries []models.GPAEntry) (models.GPADrop, bool) {
	if len(entries) < 2 {
		return models.GPADrop{}, false
	}
	prev, latest := entries[len(entries)-2], entries[len(entries)-1]
	diff := prev.GPAValue - latest.GPAValue
	if diff <= models.GPADropThreshold+gpaEpsilon {
		return models.GPADrop{}, false
	}
	return models.GPADrop{
		StudentID:    st.ID,
		FullName:     st.FullName,
		GradeLevel:   st.GradeLevel,
		AcademicYear: st.AcademicYear,
		Status:       st.Status,
		PreviousTerm: prev.Label(),
		PreviousGPA:  prev.GPAValue,
		LatestTerm:   latest.Label(),
		LatestGPA:    latest.GPAValue,
		DropAmount:   math.Round(diff*100) / 100,
	}, true
}

func trendsCacheKey(filter models.TrendsFilter) string {
	grade := "all"
	if filter.GradeLevel != nil {
		grade = strconv.Itoa(*filter.GradeLevel)
	}
	return fmt.Sprintf("%sgrade=%s:min=%s:max=%s", TrendsCachePrefix, grade, floatKey(filter.MinGPA), floatKey(filter.MaxGPA))
}

func floatKey(v *float64) string {
	if v == nil {
		return "any"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
