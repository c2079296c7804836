// Package catalog builds the transformer resource catalog from a curated
// seed file plus installed asset packs, and resolves free-form material
// tokens against it.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"idealcity/internal/safety"
)

// Entry is one resolvable resource.
type Entry struct {
	ResourceID string   `json:"resource_id"`
	Label      string   `json:"label"`
	Aliases    []string `json:"aliases,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	// Canonical commands emitted when this resource is planned. Clipped to
	// three by the planner.
	Commands []string `json:"commands,omitempty"`
	Source   string   `json:"source,omitempty"`
}

type Catalog struct {
	byID   map[string]Entry
	ids    []string
	digest string
}

// Load builds the catalog from the seed JSON and every asset pack under
// packsRoot. Either input may be absent; an empty catalog is still valid.
func Load(seedPath, packsRoot string) (*Catalog, error) {
	c := &Catalog{byID: map[string]Entry{}}

	if seedPath != "" {
		if err := c.loadSeed(seedPath); err != nil {
			return nil, err
		}
	}
	if packsRoot != "" {
		if err := c.loadPacks(packsRoot); err != nil {
			return nil, err
		}
	}

	c.ids = make([]string, 0, len(c.byID))
	for id := range c.byID {
		c.ids = append(c.ids, id)
	}
	sort.Strings(c.ids)

	h := sha256.New()
	for _, id := range c.ids {
		h.Write([]byte(id))
		h.Write([]byte{'\n'})
	}
	c.digest = hex.EncodeToString(h.Sum(nil))[:16]
	return c, nil
}

func (c *Catalog) Len() int       { return len(c.byID) }
func (c *Catalog) Digest() string { return c.digest }

func (c *Catalog) Get(id string) (Entry, bool) {
	e, ok := c.byID[id]
	return e, ok
}

func (c *Catalog) loadSeed(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("catalog seed: %w", err)
	}
	var seed []Entry
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("catalog seed: %w", err)
	}
	for _, e := range seed {
		if e.ResourceID == "" {
			continue
		}
		e.ResourceID = safety.SanitizeIdentifier(e.ResourceID)
		if e.Source == "" {
			e.Source = "seed"
		}
		c.upsert(e)
	}
	return nil
}

// loadPacks scans <packsRoot>/<pack>/assets/<ns>/{blockstates,models/block}
// for resource definitions, lang files for labels, and the pack manifest's
// entry points for canonical commands.
func (c *Catalog) loadPacks(root string) error {
	packs, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, pack := range packs {
		if !pack.IsDir() {
			continue
		}
		packDir := filepath.Join(root, pack.Name())
		labels := loadLangLabels(packDir)
		if err := c.scanAssets(packDir, pack.Name(), labels); err != nil {
			return err
		}
		if err := c.applyManifest(packDir, pack.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) scanAssets(packDir, packName string, labels map[string]string) error {
	assets := filepath.Join(packDir, "assets")
	namespaces, err := os.ReadDir(assets)
	if err != nil {
		return nil // pack without assets is fine
	}
	for _, nsEntry := range namespaces {
		if !nsEntry.IsDir() {
			continue
		}
		ns := nsEntry.Name()
		for _, sub := range []string{"blockstates", filepath.Join("models", "block")} {
			dir := filepath.Join(assets, ns, sub)
			files, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, f := range files {
				if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
					continue
				}
				name := strings.TrimSuffix(f.Name(), ".json")
				id := safety.SanitizeIdentifier(ns + ":" + name)
				e := Entry{
					ResourceID: id,
					Label:      labels[langKey(ns, name)],
					Source:     "pack:" + packName,
				}
				if e.Label == "" {
					e.Label = strings.ReplaceAll(name, "_", " ")
				}
				c.upsert(e)
			}
		}
	}
	return nil
}

type packManifest struct {
	ID          string `json:"id"`
	Namespace   string `json:"namespace"`
	EntryPoints []struct {
		Identifier string   `json:"identifier"`
		Commands   []string `json:"commands"`
		Tags       []string `json:"tags"`
	} `json:"entry_points"`
}

func (c *Catalog) applyManifest(packDir, packName string) error {
	raw, err := os.ReadFile(filepath.Join(packDir, "manifest.json"))
	if err != nil {
		return nil
	}
	var m packManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("pack %s manifest: %w", packName, err)
	}
	ns := m.Namespace
	if ns == "" {
		ns = m.ID
	}
	if ns == "" {
		ns = packName
	}
	for _, ep := range m.EntryPoints {
		if ep.Identifier == "" {
			continue
		}
		id := safety.SanitizeIdentifier(ns + ":" + ep.Identifier)
		e, ok := c.byID[id]
		if !ok {
			e = Entry{ResourceID: id, Label: strings.ReplaceAll(ep.Identifier, "_", " "), Source: "pack:" + packName}
		}
		for _, cmd := range ep.Commands {
			e.Commands = append(e.Commands, safety.SanitizeCommand(cmd))
		}
		e.Tags = append(e.Tags, ep.Tags...)
		c.upsert(e)
	}
	return nil
}

// upsert merges an entry into the catalog; later sources extend but do not
// overwrite labels from earlier ones.
func (c *Catalog) upsert(e Entry) {
	cur, ok := c.byID[e.ResourceID]
	if !ok {
		c.byID[e.ResourceID] = e
		return
	}
	if cur.Label == "" {
		cur.Label = e.Label
	}
	cur.Aliases = appendUnique(cur.Aliases, e.Aliases...)
	cur.Tags = appendUnique(cur.Tags, e.Tags...)
	cur.Commands = appendUnique(cur.Commands, e.Commands...)
	c.byID[e.ResourceID] = cur
}

// loadLangLabels merges every lang file of a pack. Key format follows the
// game convention "block.<ns>.<name>".
func loadLangLabels(packDir string) map[string]string {
	labels := map[string]string{}
	assets := filepath.Join(packDir, "assets")
	namespaces, err := os.ReadDir(assets)
	if err != nil {
		return labels
	}
	for _, nsEntry := range namespaces {
		if !nsEntry.IsDir() {
			continue
		}
		langDir := filepath.Join(assets, nsEntry.Name(), "lang")
		files, err := os.ReadDir(langDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(langDir, f.Name()))
			if err != nil {
				continue
			}
			var m map[string]string
			if err := json.Unmarshal(raw, &m); err != nil {
				continue
			}
			for k, v := range m {
				labels[k] = v
			}
		}
	}
	return labels
}

func langKey(ns, name string) string {
	return "block." + ns + "." + name
}

func appendUnique(dst []string, items ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range items {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}
