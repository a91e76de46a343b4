package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Interval is the minimum number of minutes between scheduled runs.
type Interval int

// ExternalOnly marks a job that only runs through its trigger.
const ExternalOnly Interval = -1

func (i Interval) IsExternalOnly() bool {
	return i < 0
}

func (i Interval) MarshalJSON() ([]byte, error) {
	if i.IsExternalOnly() {
		return json.Marshal("-")
	}
	return json.Marshal(int(i))
}

func (i *Interval) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*i = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	parsed, err := ParseInterval(raw)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

func ParseInterval(raw string) (Interval, error) {
	raw = strings.TrimSpace(raw)
	if raw == "-" {
		return ExternalOnly, nil
	}
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid interval %q", raw)
	}
	return Interval(n), nil
}

type Job struct {
	ID               string   `json:"id" validate:"required,max=64"`
	UUID             string   `json:"uuid"`
	Label            string   `json:"label" validate:"required"`
	URL              string   `json:"url" validate:"required,url"`
	UserID           string   `json:"user_id"`
	Bundle           string   `json:"bundle" validate:"required"`
	Langcode         string   `json:"langcode"`
	SyncField        string   `json:"sync_field" validate:"required"`
	UniqueIDField    string   `json:"unique_id_field" validate:"required"`
	UpdatedField     string   `json:"updated_field"`
	ParentField      string   `json:"parent_field"`
	TextMap          string   `json:"text_map"`
	RichTextMap      string   `json:"rich_text_map"`
	RichTextMarkdown bool     `json:"rich_text_markdown"`
	ListMap          string   `json:"list_map"`
	ReferenceMap     string   `json:"reference_map"`
	ImageMap         string   `json:"image_map"`
	ImageRoot        string   `json:"image_root"`
	DateMap          string   `json:"date_map"`
	IntegerMap       string   `json:"integer_map"`
	GeoMap           string   `json:"geo_map"`
	Weight           int      `json:"weight"`
	Interval         Interval `json:"interval"`
	Active           bool     `json:"active"`
	Ctime            int64    `json:"ctime"`
	Mtime            int64    `json:"mtime"`
}

const DefaultParentField = "parent_id"

func (j *Job) ParentKey() string {
	if j.ParentField == "" {
		return DefaultParentField
	}
	return j.ParentField
}
