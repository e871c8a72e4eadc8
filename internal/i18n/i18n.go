// Package i18n holds the user-facing texts, keyed by dot-separated paths.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var embedded embed.FS

// Vars fills {name} placeholders in a text.
type Vars map[string]string

// Translator resolves texts by key. Unknown keys resolve to themselves.
type Translator interface {
	T(key string) string
	// Tf resolves key and substitutes {name} placeholders from vars.
	Tf(key string, vars Vars) string
	Lang() string
}

// catalog maps language to flattened key to text.
type catalog map[string]map[string]string

// Manager owns every loaded language.
type Manager struct {
	texts       catalog
	defaultLang string
}

// Load reads the embedded locales. When dir is set, its YAML files override embedded
// keys one by one; a dir without YAML files is a configuration error.
func Load(dir, defaultLang string) (*Manager, error) {
	locales, err := fs.Sub(embedded, "locales")
	if err != nil {
		return nil, err
	}

	texts := catalog{}
	if err := texts.readFS(locales); err != nil {
		return nil, err
	}
	if dir != "" {
		if err := texts.readFS(os.DirFS(dir)); err != nil {
			return nil, fmt.Errorf("i18n: overrides in %s: %w", dir, err)
		}
	}

	if defaultLang == "" {
		defaultLang = "ru"
	}
	if len(texts[defaultLang]) == 0 {
		return nil, fmt.Errorf("i18n: default language %q is missing", defaultLang)
	}

	return &Manager{texts: texts, defaultLang: defaultLang}, nil
}

// Translator returns the translator for lang, or for the default language when lang
// is empty or unknown.
func (m *Manager) Translator(lang string) Translator {
	if m == nil {
		return translator{}
	}

	lang = strings.ToLower(strings.TrimSpace(lang))
	if _, ok := m.texts[lang]; !ok {
		lang = m.defaultLang
	}

	return translator{
		lang:     lang,
		primary:  m.texts[lang],
		fallback: m.texts[m.defaultLang],
	}
}

type translator struct {
	lang     string
	primary  map[string]string
	fallback map[string]string
}

func (t translator) Lang() string { return t.lang }

func (t translator) T(key string) string {
	key = strings.TrimSpace(key)
	if text, ok := t.primary[key]; ok && text != "" {
		return text
	}
	if text, ok := t.fallback[key]; ok && text != "" {
		return text
	}
	return key
}

func (t translator) Tf(key string, vars Vars) string {
	text := t.T(key)
	for name, value := range vars {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text
}

// readFS merges every top-level .yaml/.yml file of fsys into c.
func (c catalog) readFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("i18n: read dir: %w", err)
	}

	var found int
	for _, entry := range entries {
		ext := strings.ToLower(path.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		found++

		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return fmt.Errorf("i18n: read %s: %w", entry.Name(), err)
		}
		if err := c.parse(data); err != nil {
			return fmt.Errorf("i18n: parse %s: %w", entry.Name(), err)
		}
	}

	if found == 0 {
		return fmt.Errorf("i18n: no yaml files found")
	}
	return nil
}

// parse reads a document whose top-level keys are languages and whose leaves are texts.
func (c catalog) parse(data []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if len(doc.Content) == 0 {
		return nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("top level must be a mapping of languages")
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		lang := strings.ToLower(strings.TrimSpace(root.Content[i].Value))
		if lang == "" {
			continue
		}
		if c[lang] == nil {
			c[lang] = make(map[string]string)
		}
		flatten("", root.Content[i+1], c[lang])
	}
	return nil
}

func flatten(prefix string, node *yaml.Node, out map[string]string) {
	switch node.Kind {
	case yaml.ScalarNode:
		if prefix != "" {
			out[prefix] = node.Value
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			if key == "" {
				continue
			}
			if prefix != "" {
				key = prefix + "." + key
			}
			flatten(key, node.Content[i+1], out)
		}
	}
}
