package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// IndexPlaceholder marks the card position in listing selectors.
const IndexPlaceholder = "{index}"

const EnvPrefix = "JOBSCRAPER"

type Config struct {
	Scraping  Scraping  `mapstructure:"scraping"`
	Selenium  Selenium  `mapstructure:"selenium"`
	FilePaths FilePaths `mapstructure:"file_paths"`
	Selectors Selectors `mapstructure:"selectors"`
	Log       Log       `mapstructure:"log"`
}

type Scraping struct {
	URL         string        `mapstructure:"url"`
	JobCount    int           `mapstructure:"job_count"`
	PageSize    int           `mapstructure:"page_size"`
	MaxPages    int           `mapstructure:"max_pages"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

// Selenium keeps its historical section name. ChromedriverPath points at the
// browser binary; empty lets rod find or download one.
type Selenium struct {
	ChromedriverPath string `mapstructure:"chromedriver_path"`
	Headless         bool   `mapstructure:"headless"`
	Trace            bool   `mapstructure:"trace"`
	BlockResources   bool   `mapstructure:"block_resources"`
}

type FilePaths struct {
	OutputCSV    string `mapstructure:"output_csv"`
	OutputSQLite string `mapstructure:"output_sqlite"`
}

type Selectors struct {
	Listing ListingSelectors `mapstructure:"listing"`
	Detail  DetailSelectors  `mapstructure:"detail"`
	Next    string           `mapstructure:"next"`
}

// ListingSelectors are XPath templates containing IndexPlaceholder.
type ListingSelectors struct {
	Position    string `mapstructure:"position"`
	Link        string `mapstructure:"link"`
	CompanyName string `mapstructure:"company_name"`
	Experience  string `mapstructure:"experience"`
	Salary      string `mapstructure:"salary"`
	Location    string `mapstructure:"location"`
	PostingTime string `mapstructure:"posting_time"`
}

type DetailSelectors struct {
	Openings       string `mapstructure:"openings"`
	Applicants     string `mapstructure:"applicants"`
	Education      string `mapstructure:"education"`
	EmploymentType string `mapstructure:"employment_type"`
	IndustryType   string `mapstructure:"industry_type"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

const (
	listCard      = `//*[@id="listContainer"]/div[2]/div/div[` + IndexPlaceholder + `]/div`
	jobHeader     = `//*[@id="job_header"]/div[2]/div[1]`
	jobDetailsRow = `//*[@id="root"]/div/main/div[1]/div[1]/section[2]/div[1]`
)

// DefaultSelectors match the search results and job pages of naukri.com.
func DefaultSelectors() Selectors {
	return Selectors{
		Listing: ListingSelectors{
			Position:    listCard + `/div[1]/a`,
			Link:        listCard + `/div[1]/a`,
			CompanyName: listCard + `/div[2]/span/a[1]`,
			Experience:  listCard + `/div[3]/div/span[1]/span/span`,
			Salary:      listCard + `/div[3]/div/span[2]/span/span`,
			Location:    listCard + `/div[3]/div/span[3]/span`,
			PostingTime: listCard + `/div[6]/span[1]`,
		},
		Detail: DetailSelectors{
			Openings:       jobHeader + `/span[2]/span`,
			Applicants:     jobHeader + `/span[3]/span`,
			Education:      jobDetailsRow + `/div[3]/div[2]/span`,
			EmploymentType: jobDetailsRow + `/div[2]/div[4]/span/span`,
			IndustryType:   jobDetailsRow + `/div[2]/div[2]/span/a`,
		},
		Next: `//*[text() = "Next"]`,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scraping.url", "")
	v.SetDefault("scraping.job_count", 0)
	v.SetDefault("scraping.page_size", 20)
	v.SetDefault("scraping.max_pages", 0)
	v.SetDefault("scraping.wait_timeout", 20*time.Second)

	v.SetDefault("selenium.chromedriver_path", "")
	v.SetDefault("selenium.headless", false)
	v.SetDefault("selenium.trace", false)
	v.SetDefault("selenium.block_resources", false)

	v.SetDefault("file_paths.output_csv", "")
	v.SetDefault("file_paths.output_sqlite", "")

	d := DefaultSelectors()
	v.SetDefault("selectors.listing.position", d.Listing.Position)
	v.SetDefault("selectors.listing.link", d.Listing.Link)
	v.SetDefault("selectors.listing.company_name", d.Listing.CompanyName)
	v.SetDefault("selectors.listing.experience", d.Listing.Experience)
	v.SetDefault("selectors.listing.salary", d.Listing.Salary)
	v.SetDefault("selectors.listing.location", d.Listing.Location)
	v.SetDefault("selectors.listing.posting_time", d.Listing.PostingTime)

	v.SetDefault("selectors.detail.openings", d.Detail.Openings)
	v.SetDefault("selectors.detail.applicants", d.Detail.Applicants)
	v.SetDefault("selectors.detail.education", d.Detail.Education)
	v.SetDefault("selectors.detail.employment_type", d.Detail.EmploymentType)
	v.SetDefault("selectors.detail.industry_type", d.Detail.IndustryType)
	v.SetDefault("selectors.next", d.Next)

	v.SetDefault("log.level", "info")
}

// Load reads the YAML file at path. Environment variables such as
// JOBSCRAPER_SCRAPING_JOB_COUNT override file values, and a .env file in the
// working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Scraping.URL == "" {
		errs = append(errs, errors.New("scraping.url is required"))
	} else if u, err := url.Parse(c.Scraping.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("scraping.url %q is not an absolute url", c.Scraping.URL))
	}
	if c.Scraping.JobCount <= 0 {
		errs = append(errs, errors.New("scraping.job_count must be positive"))
	}
	if c.Scraping.PageSize <= 0 {
		errs = append(errs, errors.New("scraping.page_size must be positive"))
	}
	if c.Scraping.MaxPages < 0 {
		errs = append(errs, errors.New("scraping.max_pages must not be negative"))
	}
	if c.Scraping.WaitTimeout <= 0 {
		errs = append(errs, errors.New("scraping.wait_timeout must be positive"))
	}
	if c.FilePaths.OutputCSV == "" {
		errs = append(errs, errors.New("file_paths.output_csv is required"))
	}

	listing := map[string]string{
		"position":     c.Selectors.Listing.Position,
		"link":         c.Selectors.Listing.Link,
		"company_name": c.Selectors.Listing.CompanyName,
		"experience":   c.Selectors.Listing.Experience,
		"salary":       c.Selectors.Listing.Salary,
		"location":     c.Selectors.Listing.Location,
		"posting_time": c.Selectors.Listing.PostingTime,
	}
	for name, sel := range listing {
		if !strings.Contains(sel, IndexPlaceholder) {
			errs = append(errs, fmt.Errorf("selectors.listing.%s must contain %s", name, IndexPlaceholder))
		}
	}

	detail := map[string]string{
		"openings":        c.Selectors.Detail.Openings,
		"applicants":      c.Selectors.Detail.Applicants,
		"education":       c.Selectors.Detail.Education,
		"employment_type": c.Selectors.Detail.EmploymentType,
		"industry_type":   c.Selectors.Detail.IndustryType,
	}
	for name, sel := range detail {
		if sel == "" {
			errs = append(errs, fmt.Errorf("selectors.detail.%s is required", name))
		}
	}
	if c.Selectors.Next == "" {
		errs = append(errs, errors.New("selectors.next is required"))
	}

	return multierr.Combine(errs...)
}
