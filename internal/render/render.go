// Package render produces PlantUML component diagrams of architectures.
//
// Diagrams are advisory text only; nothing here invokes PlantUML.
// Rendered committed architectures are cached per project, version and
// content digest.
package render

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/HendryAvila/archpipe/internal/arch"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// DefaultCacheSize is the number of diagrams kept in memory.
const DefaultCacheSize = 256

const (
	colorAffected = "#LightGreen"
	colorRemoved  = "#Pink"
)

// Renderer turns architectures into PlantUML DSL.
type Renderer struct {
	tmpl  *template.Template
	cache *lru.Cache[string, string]
}

// NewRenderer parses the embedded templates and allocates the cache.
func NewRenderer(cacheSize int) (*Renderer, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing diagram templates: %w", err)
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating diagram cache: %w", err)
	}
	return &Renderer{tmpl: tmpl, cache: cache}, nil
}

type diagram struct {
	Name     string
	Title    string
	Services []serviceNode
	Changes  []string
}

type serviceNode struct {
	Label      string
	Alias      string
	Color      string
	Attributes []attribute
}

type attribute struct {
	Key, Value string
}

// Render returns the component diagram of a.
func (r *Renderer) Render(a arch.Architecture) (string, error) {
	key, err := cacheKey(a)
	if err != nil {
		return "", err
	}
	if out, ok := r.cache.Get(key); ok {
		return out, nil
	}

	out, err := r.execute(diagram{
		Name:     diagramName(a),
		Title:    fmt.Sprintf("%s architecture v%d", a.ProjectID, a.Version),
		Services: nodes(a.Services, nil),
	})
	if err != nil {
		return "", err
	}
	r.cache.Add(key, out)
	return out, nil
}

// RenderDiff returns the diagram of updated with every service touched by
// d highlighted. Items naming a service absent from updated are drawn as
// removed. The legend lists the diff items.
func (r *Renderer) RenderDiff(updated arch.Architecture, d arch.ArchitectureDiff) (string, error) {
	affected := make(map[string]bool, len(d.Items))
	changes := make([]string, 0, len(d.Items))
	for _, it := range d.Items {
		affected[it.AffectedService] = true
		changes = append(changes, fmt.Sprintf("%s [%s] %s", it.ID, it.AffectedService, it.Description))
	}

	services := nodes(updated.Services, affected)
	present := make(map[string]bool, len(updated.Services))
	for _, s := range updated.Services {
		present[s.Name] = true
	}
	removed := make([]string, 0)
	for name := range affected {
		if name != "" && !present[name] {
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	for _, name := range removed {
		services = append(services, serviceNode{
			Label: escapeLabel(name) + " (removed)",
			Alias: alias(name),
			Color: colorRemoved,
		})
	}

	return r.execute(diagram{
		Name:     diagramName(updated) + "-delta",
		Title:    fmt.Sprintf("Architecture delta %s v%d", updated.ProjectID, updated.Version),
		Services: services,
		Changes:  changes,
	})
}

// Len reports the number of cached diagrams.
func (r *Renderer) Len() int { return r.cache.Len() }

func (r *Renderer) execute(d diagram) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "architecture.puml.tmpl", d); err != nil {
		return "", fmt.Errorf("rendering diagram: %w", err)
	}
	return buf.String(), nil
}

func nodes(services []arch.ServiceDescriptor, affected map[string]bool) []serviceNode {
	out := make([]serviceNode, 0, len(services))
	for _, s := range services {
		n := serviceNode{Label: escapeLabel(s.Name), Alias: alias(s.Name)}
		if affected[s.Name] {
			n.Color = colorAffected
		}
		keys := make([]string, 0, len(s.Attributes))
		for k := range s.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			n.Attributes = append(n.Attributes, attribute{Key: escapeLabel(k), Value: escapeLabel(s.Attributes[k])})
		}
		out = append(out, n)
	}
	return out
}

// alias turns a service name into a PlantUML identifier.
func alias(name string) string {
	var b strings.Builder
	b.WriteString("svc_")
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// escapeLabel keeps a value on one line and out of PlantUML quoting.
func escapeLabel(s string) string {
	return strings.NewReplacer(`"`, `'`, "\n", " ", "\r", " ").Replace(s)
}

func diagramName(a arch.Architecture) string {
	return alias(a.ProjectID)[len("svc_"):] + "-v" + fmt.Sprint(a.Version)
}

func cacheKey(a arch.Architecture) (string, error) {
	raw, err := json.Marshal(a.Services)
	if err != nil {
		return "", fmt.Errorf("encoding services: %w", err)
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%s@%d#%s", a.ProjectID, a.Version, hex.EncodeToString(sum[:8])), nil
}
