package msgcat

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

// DefaultLocale answers any lookup the requested locale cannot.
const DefaultLocale = "en"

//go:embed messages.*.yaml
var defaultFiles embed.FS

// Catalog holds message templates per locale, loaded from embedded defaults
// and an optional override directory of messages.<locale>.yaml files.
// Values are rendered with text/template (missing keys cause errors).
type Catalog struct {
	mu   sync.RWMutex
	data map[string]map[string]string // locale → flattened dot-keys → template text
}

// New loads the embedded messages, then overrideDir when set.
func New(overrideDir string) (*Catalog, error) {
	base := &Catalog{data: make(map[string]map[string]string)}

	if err := base.loadEmbedded(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := base.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return base, nil
}

func (c *Catalog) loadEmbedded() error {
	names, err := fs.Glob(defaultFiles, "messages.*.yaml")
	if err != nil {
		return fmt.Errorf("list embedded messages: %w", err)
	}
	for _, name := range names {
		raw, err := fs.ReadFile(defaultFiles, name)
		if err != nil {
			return fmt.Errorf("read embedded messages: %w", err)
		}
		if err := c.applyYAML(localeOf(name), raw); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
	}
	return nil
}

// localeOf("messages.fr.yaml") == "fr"
func localeOf(name string) string {
	base := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(name), ".yaml"), ".yml")
	parts := strings.Split(base, ".")
	if len(parts) < 2 || parts[len(parts)-1] == "" {
		return DefaultLocale
	}
	return strings.ToLower(parts[len(parts)-1])
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read template dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		ext := strings.ToLower(filepath.Ext(n))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, n)
		}
	}
	sort.Strings(files)
	seen := make(map[string]string) // locale:key -> filename
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		flat, err := parseYAMLToFlat(b)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		loc := localeOf(name)
		for k := range flat {
			id := loc + ":" + k
			if prev, ok := seen[id]; ok {
				return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
			}
			seen[id] = name
		}
		c.merge(loc, flat)
	}
	return nil
}

func parseYAMLToFlat(b []byte) (map[string]string, error) {
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	flat := make(map[string]string)
	if err := flattenStrings(m, "", flat); err != nil {
		return nil, err
	}
	return flat, nil
}

func (c *Catalog) applyYAML(locale string, b []byte) error {
	flat, err := parseYAMLToFlat(b)
	if err != nil {
		return err
	}
	c.merge(locale, flat)
	return nil
}

func (c *Catalog) merge(locale string, flat map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.data[locale]
	if m == nil {
		m = make(map[string]string)
		c.data[locale] = m
	}
	for k, v := range flat {
		m[k] = v
	}
}

func flattenStrings(src any, prefix string, out map[string]string) error {
	switch v := src.(type) {
	case map[string]any:
		for k, vv := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flattenStrings(vv, key, out); err != nil {
				return err
			}
		}
		return nil
	case map[any]any: // tolerate legacy YAML decoders
		tmp := make(map[string]any)
		for kk, vv := range v {
			tmp[fmt.Sprint(kk)] = vv
		}
		return flattenStrings(tmp, prefix, out)
	case string:
		if prefix == "" {
			return errors.New("string value without key prefix")
		}
		out[prefix] = v
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported value at %s: %T", prefix, v)
	}
}

func (c *Catalog) Locales() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.data))
	for l := range c.data {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) lookup(locale, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key = strings.TrimSpace(key)
	for _, l := range []string{strings.ToLower(strings.TrimSpace(locale)), DefaultLocale} {
		if tpl, ok := c.data[l][key]; ok && strings.TrimSpace(tpl) != "" {
			return tpl, true
		}
	}
	return "", false
}

// Render executes the template stored under key. A key missing from locale
// is looked up in DefaultLocale; a key missing from both is an error, as is a
// template referencing a field data does not have.
func (c *Catalog) Render(locale, key string, data any) (string, error) {
	tpl, ok := c.lookup(locale, key)
	if !ok {
		return "", fmt.Errorf("template not found: %s", key)
	}
	t, err := template.New(key).Option("missingkey=error").Parse(tpl)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Text never fails. When rendering does, it returns key itself.
func (c *Catalog) Text(locale, key string) string {
	s, err := c.Render(locale, key, nil)
	if err != nil {
		return key
	}
	return s
}

// MatchLocale picks the best loaded locale for an Accept-Language header.
func (c *Catalog) MatchLocale(acceptLanguage string) string {
	best, bestQ := DefaultLocale, -1.0
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag, q := parseLanguage(part)
		if tag == "" || q <= bestQ {
			continue
		}
		c.mu.RLock()
		_, ok := c.data[tag]
		c.mu.RUnlock()
		if ok {
			best, bestQ = tag, q
		}
	}
	return best
}

// parseLanguage turns "fr-CH;q=0.9" into ("fr", 0.9).
func parseLanguage(part string) (string, float64) {
	fields := strings.Split(strings.TrimSpace(part), ";")
	tag := strings.ToLower(strings.TrimSpace(fields[0]))
	if i := strings.IndexByte(tag, '-'); i > 0 {
		tag = tag[:i]
	}
	q := 1.0
	for _, f := range fields[1:] {
		f = strings.TrimSpace(f)
		if v, ok := strings.CutPrefix(f, "q="); ok {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				q = parsed
			}
		}
	}
	if tag == "*" {
		return "", 0
	}
	return tag, q
}
