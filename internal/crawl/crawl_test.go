package crawl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AlfredBerg/rod-jobscraper/internal/browser/browsertest"
	"github.com/AlfredBerg/rod-jobscraper/internal/config"
	"github.com/AlfredBerg/rod-jobscraper/internal/models"
	"github.com/AlfredBerg/rod-jobscraper/internal/outputHandlers/csvfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const site = "https://jobs.example"

type card struct {
	id      string
	title   string
	company string
	salary  string
	posted  string
}

func (c card) link() string { return site + "/job/" + c.id }

var simpleSelectors = config.Selectors{
	Listing: config.ListingSelectors{
		Position:    `//*[@id="list"]/article[{index}]/a[@class="title"]`,
		Link:        `//*[@id="list"]/article[{index}]/a[@class="title"]`,
		CompanyName: `//*[@id="list"]/article[{index}]/span[@class="company"]`,
		Experience:  `//*[@id="list"]/article[{index}]/span[@class="exp"]`,
		Salary:      `//*[@id="list"]/article[{index}]/span[@class="salary"]`,
		Location:    `//*[@id="list"]/article[{index}]/span[@class="loc"]`,
		PostingTime: `//*[@id="list"]/article[{index}]/span[@class="posted"]`,
	},
	Detail: config.DetailSelectors{
		Openings:       `//*[@id="openings"]`,
		Applicants:     `//*[@id="applicants"]`,
		Education:      `//*[@id="education"]`,
		EmploymentType: `//*[@id="employment"]`,
		IndustryType:   `//*[@id="industry"]`,
	},
	Next: `//*[text() = "Next"]`,
}

func listingPage(cards []card, next string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="list">`)
	for _, c := range cards {
		b.WriteString(`<article>`)
		fmt.Fprintf(&b, `<a class="title" href="/job/%s">%s</a>`, c.id, c.title)
		fmt.Fprintf(&b, `<span class="company">%s</span>`, c.company)
		b.WriteString(`<span class="exp">2-5 Yrs</span>`)
		if c.salary != "" {
			fmt.Fprintf(&b, `<span class="salary">%s</span>`, c.salary)
		}
		b.WriteString(`<span class="loc">Bengaluru</span>`)
		fmt.Fprintf(&b, `<span class="posted">%s</span>`, c.posted)
		b.WriteString(`</article>`)
	}
	b.WriteString(`</div>`)
	if next != "" {
		fmt.Fprintf(&b, `<a href="%s">Next</a>`, next)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func detailPage(c card) string {
	return fmt.Sprintf(`<html><body>
		<span id="openings">2</span>
		<span id="applicants">100+</span>
		<span id="education">UG: B.Tech</span>
		<span id="employment">Full Time, Permanent</span>
		<span id="industry">IT Services for %s</span>
	</body></html>`, c.company)
}

func cardOf(n int) card {
	return card{
		id:      fmt.Sprint(n),
		title:   fmt.Sprintf("Go Developer %d", n),
		company: fmt.Sprintf("Company %d", n),
		salary:  "Not disclosed",
		posted:  fmt.Sprintf("%d Days Ago", n),
	}
}

// newSite serves pages[i] at /list?page=i+1 with Next links between them and
// a detail page for every card.
func newSite(pages ...[]card) *browsertest.Site {
	html := map[string]string{}
	for i, cards := range pages {
		next := ""
		if i+1 < len(pages) {
			next = fmt.Sprintf("/list?page=%d", i+2)
		}
		html[fmt.Sprintf("%s/list?page=%d", site, i+1)] = listingPage(cards, next)
		for _, c := range cards {
			html[c.link()] = detailPage(c)
		}
	}
	return browsertest.NewSite(html)
}

type recorder struct {
	jobs []models.JobPosting
	err  error
}

func (r *recorder) HandleJob(job *models.JobPosting) error {
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, *job)
	return nil
}

func newJob(s *browsertest.Site, out OutputHandler, count int) *Job {
	return &Job{
		Session:       s.Session(),
		Target:        site + "/list?page=1",
		Selectors:     simpleSelectors,
		OutputHandler: out,
		Count:         count,
		PageSize:      5,
		Now:           func() time.Time { return time.Date(2024, 5, 6, 10, 30, 0, 0, time.Local) },
	}
}

func TestCrawlDeduplicatesAcrossPages(t *testing.T) {
	s := newSite(
		[]card{cardOf(1), cardOf(2), cardOf(1), cardOf(3)},
		[]card{cardOf(2), cardOf(4), cardOf(5)},
	)
	out := &recorder{}

	stats, err := newJob(s, out, 4).Crawl(context.Background())
	require.NoError(t, err)

	require.Len(t, out.jobs, 4)
	seen := map[models.Key]bool{}
	for _, j := range out.jobs {
		assert.False(t, seen[j.Key()], "duplicate row for %s", j.VacancyLink)
		seen[j.Key()] = true
	}
	assert.Equal(t, []string{"Go Developer 1", "Go Developer 2", "Go Developer 3", "Go Developer 4"},
		[]string{out.jobs[0].Position, out.jobs[1].Position, out.jobs[2].Position, out.jobs[3].Position})

	assert.Equal(t, 4, stats.Written)
	assert.Equal(t, 2, stats.Duplicates)
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, 0, s.OpenTabs())
}

func TestCrawlFillsRecord(t *testing.T) {
	s := newSite([]card{cardOf(3)})
	out := &recorder{}

	_, err := newJob(s, out, 1).Crawl(context.Background())
	require.NoError(t, err)
	require.Len(t, out.jobs, 1)

	job := out.jobs[0]
	assert.Equal(t, "Go Developer 3", job.Position)
	assert.Equal(t, site+"/job/3", job.VacancyLink)
	assert.Equal(t, "Company 3", job.CompanyName)
	assert.Equal(t, "2-5 Yrs", job.ExperienceNeeded)
	assert.Equal(t, "Not disclosed", job.Salary)
	assert.Equal(t, "Bengaluru", job.Location)
	assert.Equal(t, "3 Days Ago", job.PostingTime)
	assert.Equal(t, "2", job.Openings)
	assert.Equal(t, "100+", job.Applicants)
	assert.Equal(t, "UG: B.Tech", job.Education)
	assert.Equal(t, "Full Time, Permanent", job.EmploymentType)
	assert.Equal(t, "IT Services for Company 3", job.IndustryType)
	assert.Equal(t, "2024-05-06", job.CurrentDate())
	assert.Equal(t, "10:30:00", job.CurrentTime())
	require.NotNil(t, job.DaysAgo)
	assert.Equal(t, 3, *job.DaysAgo)
	assert.GreaterOrEqual(t, job.TimeTaken, time.Duration(0))
}

func TestCrawlStopsWhenPaginationIsExhausted(t *testing.T) {
	s := newSite(
		[]card{cardOf(1), cardOf(2)},
		[]card{cardOf(3)},
	)
	out := &recorder{}

	stats, err := newJob(s, out, 10).Crawl(context.Background())
	require.NoError(t, err)

	assert.Len(t, out.jobs, 3)
	assert.Equal(t, 2, stats.Pages)
	// positions past the last card on each page are misses
	assert.Equal(t, 3+4, stats.ListingMisses)
}

func TestCrawlRespectsMaxPages(t *testing.T) {
	s := newSite(
		[]card{cardOf(1)},
		[]card{cardOf(2)},
		[]card{cardOf(3)},
	)
	out := &recorder{}
	job := newJob(s, out, 10)
	job.MaxPages = 2

	stats, err := job.Crawl(context.Background())
	require.NoError(t, err)
	assert.Len(t, out.jobs, 2)
	assert.Equal(t, 2, stats.Pages)
}

func TestCrawlSkipsUnreadableCards(t *testing.T) {
	broken := cardOf(2)
	broken.salary = ""
	s := newSite([]card{cardOf(1), broken, cardOf(3)})
	out := &recorder{}

	_, err := newJob(s, out, 5).Crawl(context.Background())
	require.NoError(t, err)

	require.Len(t, out.jobs, 2)
	assert.Equal(t, site+"/job/1", out.jobs[0].VacancyLink)
	assert.Equal(t, site+"/job/3", out.jobs[1].VacancyLink)
	assert.NotContains(t, s.Visits(), broken.link())
}

func TestCrawlDropsJobsWithBrokenDetailPage(t *testing.T) {
	missing := cardOf(2)
	partial := cardOf(3)
	pages := map[string]string{
		site + "/list?page=1": listingPage([]card{cardOf(1), missing, partial, cardOf(4)}, ""),
		cardOf(1).link():      detailPage(cardOf(1)),
		partial.link():        `<html><body><span id="openings">1</span></body></html>`,
		cardOf(4).link():      detailPage(cardOf(4)),
	}
	s := browsertest.NewSite(pages)
	out := &recorder{}

	stats, err := newJob(s, out, 5).Crawl(context.Background())
	require.NoError(t, err)

	require.Len(t, out.jobs, 2)
	assert.Equal(t, site+"/job/1", out.jobs[0].VacancyLink)
	assert.Equal(t, site+"/job/4", out.jobs[1].VacancyLink)
	assert.Equal(t, 2, stats.DetailFailures)
	assert.Equal(t, 0, s.OpenTabs())
}

func TestCrawlDaysAgoOnlyForDayPostings(t *testing.T) {
	hours := cardOf(1)
	hours.posted = "5 Hours Ago"
	today := cardOf(2)
	today.posted = "Today"
	days := cardOf(3)
	days.posted = "30+ Days Ago"
	s := newSite([]card{hours, today, days})
	out := &recorder{}

	_, err := newJob(s, out, 3).Crawl(context.Background())
	require.NoError(t, err)
	require.Len(t, out.jobs, 3)

	for _, j := range out.jobs {
		hasDay := strings.Contains(strings.ToLower(j.PostingTime), "day")
		assert.Equal(t, hasDay, j.DaysAgo != nil, j.PostingTime)
		assert.GreaterOrEqual(t, j.TimeTakenSeconds(), 0.0)
	}
	assert.Equal(t, 0, *out.jobs[1].DaysAgo)
	assert.Equal(t, 30, *out.jobs[2].DaysAgo)
}

func TestCrawlInitialNavigationFailure(t *testing.T) {
	s := browsertest.NewSite(map[string]string{})
	_, err := newJob(s, &recorder{}, 1).Crawl(context.Background())
	assert.Error(t, err)
}

func TestCrawlOutputFailureIsFatal(t *testing.T) {
	s := newSite([]card{cardOf(1), cardOf(2)})
	out := &recorder{err: errors.New("disk full")}

	stats, err := newJob(s, out, 2).Crawl(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, stats.Written)
}

func TestCrawlCancelled(t *testing.T) {
	s := newSite([]card{cardOf(1)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newJob(s, &recorder{}, 1).Crawl(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCrawlWritesUniqueCSVRows(t *testing.T) {
	s := newSite(
		[]card{cardOf(1), cardOf(1), cardOf(2)},
		[]card{cardOf(2), cardOf(3)},
	)
	path := filepath.Join(t.TempDir(), "jobs.csv")
	csvOut := &csvfile.CsvOutput{Path: path}
	require.NoError(t, csvOut.Init())
	rec := &recorder{}

	stats, err := newJob(s, Outputs{csvOut, rec}, 3).Crawl(context.Background())
	require.NoError(t, err)
	require.NoError(t, csvOut.Cleanup())

	rows, err := csvfile.CountRows(path)
	require.NoError(t, err)
	assert.Equal(t, 3, rows)
	assert.Equal(t, stats.Written, rows)
	assert.Len(t, rec.jobs, 3)
}

func TestOutputsCombinesErrors(t *testing.T) {
	ok := &recorder{}
	outs := Outputs{&recorder{err: errors.New("first")}, ok, &recorder{err: errors.New("second")}}

	err := outs.HandleJob(&models.JobPosting{Position: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
	assert.Len(t, ok.jobs, 1)
}

func TestCardXPath(t *testing.T) {
	assert.Equal(t, `//ul/li[7]/a`, cardXPath(`//ul/li[{index}]/a`, 7))
	assert.Equal(t, `//ul/li[1]/div[1]`, cardXPath(`//ul/li[{index}]/div[{index}]`, 1))
}

func naukriListing(cards []card) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="listContainer"><div>filters</div><div><div>`)
	for _, c := range cards {
		fmt.Fprintf(&b, `<div><div>
			<div><a href="/job-listings-%s">%s</a></div>
			<div><span><a>%s</a><a>reviews</a></span></div>
			<div><div>
				<span><span><span>3-6 Yrs</span></span></span>
				<span><span><span>%s</span></span></span>
				<span><span>Bengaluru</span></span>
			</div></div>
			<div>description</div>
			<div>tags</div>
			<div><span>%s</span><span>save</span></div>
		</div></div>`, c.id, c.title, c.company, c.salary, c.posted)
	}
	b.WriteString(`</div></div></div></body></html>`)
	return b.String()
}

const naukriDetail = `<html><body>
<section id="job_header"><div>title</div><div><div>
	<span>Posted: 1 day ago</span><span><span>5</span></span><span><span>240</span></span>
</div></div></section>
<div id="root"><div><main><div><div>
	<section>overview</section>
	<section><div>
		<div>role</div>
		<div>
			<div>Role: Backend</div>
			<div><span><a>Software Product</a></span></div>
			<div>Department</div>
			<div><span><span>Full Time, Permanent</span></span></div>
		</div>
		<div>
			<div>Education</div>
			<div><span>B.Tech/B.E. in Any Specialization</span></div>
		</div>
	</div></section>
</div></div></main></div></div>
</body></html>`

func TestCrawlDefaultSelectors(t *testing.T) {
	cards := []card{cardOf(1), cardOf(2)}
	s := browsertest.NewSite(map[string]string{
		site + "/list?page=1":    naukriListing(cards),
		site + "/job-listings-1": naukriDetail,
		site + "/job-listings-2": naukriDetail,
	})
	out := &recorder{}
	job := newJob(s, out, 2)
	job.Selectors = config.DefaultSelectors()

	_, err := job.Crawl(context.Background())
	require.NoError(t, err)
	require.Len(t, out.jobs, 2)

	got := out.jobs[1]
	assert.Equal(t, "Go Developer 2", got.Position)
	assert.Equal(t, site+"/job-listings-2", got.VacancyLink)
	assert.Equal(t, "Company 2", got.CompanyName)
	assert.Equal(t, "3-6 Yrs", got.ExperienceNeeded)
	assert.Equal(t, "Not disclosed", got.Salary)
	assert.Equal(t, "Bengaluru", got.Location)
	assert.Equal(t, "2 Days Ago", got.PostingTime)
	assert.Equal(t, "5", got.Openings)
	assert.Equal(t, "240", got.Applicants)
	assert.Equal(t, "B.Tech/B.E. in Any Specialization", got.Education)
	assert.Equal(t, "Full Time, Permanent", got.EmploymentType)
	assert.Equal(t, "Software Product", got.IndustryType)
}
