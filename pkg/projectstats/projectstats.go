// Package projectstats assembles the project overview: age, activity, the
// files at HEAD by language and the latest measured size.
package projectstats

import (
	"path"
	"sort"
	"time"

	"github.com/src-d/enry/v2"

	"github.com/Sumatoshi-tech/loctrail/pkg/growth"
	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/ledger"
	"github.com/Sumatoshi-tech/loctrail/pkg/textutil"
)

const (
	subjectRunes = 40

	// OtherLanguage collects files enry cannot classify by name.
	OtherLanguage = "Other"
	// VendoredLanguage collects third-party files.
	VendoredLanguage = "Vendored"
)

// Language is the number of HEAD files of one language.
type Language struct {
	Name  string `json:"name"  yaml:"name"`
	Files int    `json:"files" yaml:"files"`
}

// Stats is the project overview.
type Stats struct {
	Name       string               `json:"name"        yaml:"name"`
	StartDate  history.Day          `json:"start_date"  yaml:"start_date"`
	AgeDays    int                  `json:"age_days"    yaml:"age_days"`
	Commits    int                  `json:"commits"     yaml:"commits"`
	Branch     string               `json:"branch"      yaml:"branch"`
	Files      int                  `json:"files"       yaml:"files"`
	Languages  []Language           `json:"languages"   yaml:"languages"`
	Subtrees   []growth.SubtreeSize `json:"subtrees"    yaml:"subtrees"`
	TotalCode  int                  `json:"total_code"  yaml:"total_code"`
	CodePerDay int                  `json:"code_per_day" yaml:"code_per_day"`
	LastCommit string               `json:"last_commit" yaml:"last_commit"`
}

// Input is what the overview is computed from.
type Input struct {
	Name string
	// Commits are oldest first.
	Commits []history.CommitInfo
	Head    history.HeadInfo
	// Table may be empty when nothing was collected yet.
	Table    ledger.Table
	Now      time.Time
	Location *time.Location
}

// Compute builds the overview.
func Compute(in Input) Stats {
	loc := in.Location
	if loc == nil {
		loc = time.Local
	}

	s := Stats{
		Name:      in.Name,
		Commits:   len(in.Commits),
		Branch:    in.Head.Branch,
		Files:     len(in.Head.Files),
		Languages: Languages(in.Head.Files),
	}

	if s.Branch == "" {
		s.Branch = "unknown"
	}

	if len(in.Commits) > 0 {
		s.StartDate = history.DayOf(in.Commits[0].AuthorTime, loc)
		s.AgeDays = max(0, s.StartDate.DaysUntil(history.DayOf(in.Now, loc)))
		s.LastCommit = textutil.Ellipsize(headSubject(in.Commits, in.Head.Ref), subjectRunes)
	}

	if latest, ok := in.Table.Latest(); ok {
		s.TotalCode = latest.TotalCode

		s.Subtrees = make([]growth.SubtreeSize, len(in.Table.Names))
		for i, name := range in.Table.Names {
			s.Subtrees[i] = growth.SubtreeSize{Name: name, Code: latest.Metrics[i].Code}
		}
	}

	if s.AgeDays > 0 {
		s.CodePerDay = s.TotalCode / s.AgeDays
	}

	return s
}

// headSubject returns the subject of the HEAD commit, or of the newest
// commit when HEAD is unknown.
func headSubject(commits []history.CommitInfo, head history.CommitRef) string {
	for i := len(commits) - 1; i >= 0; i-- {
		if commits[i].Ref == head {
			return commits[i].Subject
		}
	}

	return commits[len(commits)-1].Subject
}

// Languages classifies files by name and returns the counts, largest first.
func Languages(files []string) []Language {
	counts := make(map[string]int)

	for _, f := range files {
		counts[classify(f)]++
	}

	out := make([]Language, 0, len(counts))
	for name, n := range counts {
		out = append(out, Language{Name: name, Files: n})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Files != out[j].Files {
			return out[i].Files > out[j].Files
		}

		return out[i].Name < out[j].Name
	})

	return out
}

func classify(file string) string {
	if enry.IsVendor(file) {
		return VendoredLanguage
	}

	lang := enry.GetLanguage(path.Base(file), nil)
	if lang == "" {
		return OtherLanguage
	}

	return lang
}
