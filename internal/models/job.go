package models

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// CSVHeader is the column order of every output row.
var CSVHeader = []string{
	"Position", "Company_Name", "Vacancy_Link", "Experience_Needed", "Salary", "Location",
	"Posting_Time", "Openings", "Applicants", "Education", "Employment_Type", "Industry_Type",
	"Current_Date", "Current_Time", "Days_Ago", "Time_Taken",
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// JobPosting is one scraped vacancy. The first seven fields come from the
// listing page and identify the posting, the next five from its detail page.
type JobPosting struct {
	Position         string `json:"position"`
	CompanyName      string `json:"company_name"`
	VacancyLink      string `json:"vacancy_link"`
	ExperienceNeeded string `json:"experience_needed"`
	Salary           string `json:"salary"`
	Location         string `json:"location"`
	PostingTime      string `json:"posting_time"`

	Openings       string `json:"openings"`
	Applicants     string `json:"applicants"`
	Education      string `json:"education"`
	EmploymentType string `json:"employment_type"`
	IndustryType   string `json:"industry_type"`

	ScrapedAt time.Time     `json:"scraped_at"`
	DaysAgo   *int          `json:"days_ago,omitempty"`
	TimeTaken time.Duration `json:"time_taken"`
}

// Key is the dedup identity of a posting.
type Key struct {
	Position         string
	CompanyName      string
	VacancyLink      string
	ExperienceNeeded string
	Salary           string
	Location         string
	PostingTime      string
}

func (j *JobPosting) Key() Key {
	return Key{
		Position:         j.Position,
		CompanyName:      j.CompanyName,
		VacancyLink:      j.VacancyLink,
		ExperienceNeeded: j.ExperienceNeeded,
		Salary:           j.Salary,
		Location:         j.Location,
		PostingTime:      j.PostingTime,
	}
}

func (j *JobPosting) CurrentDate() string {
	return j.ScrapedAt.Format(dateLayout)
}

func (j *JobPosting) CurrentTime() string {
	return j.ScrapedAt.Format(timeLayout)
}

// DaysAgoString is empty when the posting time carried no day count.
func (j *JobPosting) DaysAgoString() string {
	if j.DaysAgo == nil {
		return ""
	}
	return strconv.Itoa(*j.DaysAgo)
}

// TimeTakenSeconds never reports a negative duration.
func (j *JobPosting) TimeTakenSeconds() float64 {
	if j.TimeTaken < 0 {
		return 0
	}
	return j.TimeTaken.Seconds()
}

// Row renders the posting in CSVHeader order.
func (j *JobPosting) Row() []string {
	return []string{
		j.Position,
		j.CompanyName,
		j.VacancyLink,
		j.ExperienceNeeded,
		j.Salary,
		j.Location,
		j.PostingTime,
		j.Openings,
		j.Applicants,
		j.Education,
		j.EmploymentType,
		j.IndustryType,
		j.CurrentDate(),
		j.CurrentTime(),
		j.DaysAgoString(),
		strconv.FormatFloat(j.TimeTakenSeconds(), 'f', -1, 64),
	}
}

// ParseDaysAgo reads the day count out of a posting time such as
// "3 Days Ago" or "30+ Days Ago". It returns nil unless the text mentions
// "day". "Today" counts as zero.
func ParseDaysAgo(postingTime string) *int {
	lower := strings.ToLower(strings.TrimSpace(postingTime))
	if !strings.Contains(lower, "day") {
		return nil
	}

	digits := strings.TrimLeftFunc(lower, func(r rune) bool { return !unicode.IsDigit(r) })
	end := strings.IndexFunc(digits, func(r rune) bool { return !unicode.IsDigit(r) })
	if end >= 0 {
		digits = digits[:end]
	}
	if n, err := strconv.Atoi(digits); err == nil {
		return &n
	}

	if strings.Contains(lower, "today") {
		zero := 0
		return &zero
	}
	return nil
}
