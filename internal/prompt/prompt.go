// Package prompt renders the fixed natural-language templates sent to the
// model. Rendering is deterministic: the same frame and request always
// produce the same string.
package prompt

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/KaramelBytes/vizloom/internal/dataset"
)

//go:embed templates
var templatesFS embed.FS

const (
	DetailBasic    = "basic"
	DetailExtended = "extended"
)

var sets = map[string]*template.Template{}

func init() {
	entries, err := templatesFS.ReadDir("templates")
	if err != nil {
		panic(err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sets[e.Name()] = template.Must(template.ParseFS(templatesFS, "templates/"+e.Name()+"/*.tmpl"))
	}
}

// Languages lists the template languages compiled into the binary.
func Languages() []string {
	out := make([]string, 0, len(sets))
	for k := range sets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Builder renders prompts in one language. The zero value renders English
// with the basic summary.
type Builder struct {
	Language string
	// Detail is DetailBasic or DetailExtended; extended appends the outlier
	// and correlation profile to the summary.
	Detail string
}

// New validates the language and detail level.
func New(language, detail string) (*Builder, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = "en"
	}
	if _, ok := sets[language]; !ok {
		return nil, fmt.Errorf("unsupported prompt language %q (available: %s)", language, strings.Join(Languages(), ", "))
	}
	switch detail {
	case "", DetailBasic, DetailExtended:
	default:
		return nil, fmt.Errorf("unsupported summary detail %q (use %s or %s)", detail, DetailBasic, DetailExtended)
	}
	return &Builder{Language: language, Detail: detail}, nil
}

type summary struct {
	Name     string
	Rows     int
	Columns  string
	DTypes   string
	Describe string
	Profile  string
	Request  string
}

func (b *Builder) summarize(df *dataset.Frame) summary {
	s := summary{
		Name:     df.Name,
		Rows:     df.Len(),
		Columns:  strings.Join(df.Columns(), ", "),
		DTypes:   strings.TrimRight(df.DTypesString(), "\n"),
		Describe: strings.TrimRight(df.Describe().String(), "\n"),
	}
	if b != nil && b.Detail == DetailExtended {
		s.Profile = strings.TrimRight(df.Profile(dataset.ProfileOptions{}).String(), "\n")
	}
	return s
}

func (b *Builder) render(name string, data summary) (string, error) {
	lang := "en"
	if b != nil && b.Language != "" {
		lang = b.Language
	}
	set, ok := sets[lang]
	if !ok {
		return "", fmt.Errorf("unsupported prompt language %q", lang)
	}
	var sb strings.Builder
	if err := set.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", strings.TrimSuffix(name, ".tmpl"), err)
	}
	return sb.String(), nil
}

// Overview renders only the dataset summary block.
func (b *Builder) Overview(df *dataset.Frame) (string, error) {
	return b.render("overview", b.summarize(df))
}

// Recommendations asks for trends, actions and unexpected relationships.
func (b *Builder) Recommendations(df *dataset.Frame) (string, error) {
	return b.render("recommendations.tmpl", b.summarize(df))
}

// Anomalies asks the model to spot, explain and handle anomalies.
func (b *Builder) Anomalies(df *dataset.Frame) (string, error) {
	return b.render("anomalies.tmpl", b.summarize(df))
}

// Visualization asks for Go chart code answering the user's request.
func (b *Builder) Visualization(df *dataset.Frame, request string) (string, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return "", fmt.Errorf("visualization request cannot be empty")
	}
	s := b.summarize(df)
	s.Request = request
	return b.render("visualization.tmpl", s)
}
