package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
	"github.com/Commandability/commandability-web-sub001/internal/domain/namespace"
	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

// fixture is seed data for the document and object stores.
//
//	documents:
//	  - path: users/u1
//	    data: {organizationName: Station 7}
//	reports:
//	  - owner: u1
//	    data: {title: Structure fire, createdAt: 2024-05-01T10:00:00Z}
//	    objects:
//	      report.pdf: "..."
//	objects:
//	  - key: users/u1/reports/r1/extra.txt
//	    content: "..."
type fixture struct {
	Documents []fixtureDocument `yaml:"documents"`
	Reports   []fixtureReport   `yaml:"reports"`
	Objects   []fixtureObject   `yaml:"objects"`
}

type fixtureDocument struct {
	Path string         `yaml:"path"`
	Data map[string]any `yaml:"data"`
}

// fixtureReport is a report record plus its stored objects. An empty ID
// gets a generated one.
type fixtureReport struct {
	Owner   string            `yaml:"owner"`
	ID      string            `yaml:"id"`
	Data    map[string]any    `yaml:"data"`
	Objects map[string]string `yaml:"objects"`
}

type fixtureObject struct {
	Key     string `yaml:"key"`
	Content string `yaml:"content"`
}

// fixtureStats counts what a fixture wrote.
type fixtureStats struct {
	Documents int
	Objects   int
}

func loadFixture(path string) (*fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()
	return parseFixture(f)
}

// parseFixture decodes a fixture, rejecting unknown fields.
func parseFixture(r io.Reader) (*fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var fx fixture
	if err := dec.Decode(&fx); err != nil {
		if errors.Is(err, io.EOF) {
			return &fx, nil
		}
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	for i, rep := range fx.Reports {
		if rep.Owner == "" {
			return nil, fmt.Errorf("reports[%d]: owner is required", i)
		}
		if strings.Contains(rep.Owner, "/") || strings.Contains(rep.ID, "/") {
			return nil, fmt.Errorf("reports[%d]: owner and id must not contain '/'", i)
		}
	}
	for i, o := range fx.Objects {
		if o.Key == "" || strings.HasPrefix(o.Key, "/") {
			return nil, fmt.Errorf("objects[%d]: invalid key %q", i, o.Key)
		}
	}
	return &fx, nil
}

// apply writes fx. newID generates ids for reports without one.
func (fx *fixture) apply(ctx context.Context, docs outbound.DocumentWriter, objects outbound.ObjectWriter, newID func() string) (fixtureStats, error) {
	if newID == nil {
		newID = uuid.NewString
	}
	var stats fixtureStats

	for _, d := range fx.Documents {
		ref, err := document.Parse(d.Path)
		if err != nil {
			return stats, fmt.Errorf("document %q: %w", d.Path, err)
		}
		if err := docs.Set(ctx, ref, normalizeData(d.Data)); err != nil {
			return stats, fmt.Errorf("document %q: %w", d.Path, err)
		}
		stats.Documents++
	}

	for _, r := range fx.Reports {
		id := r.ID
		if id == "" {
			id = newID()
		}
		ref, err := namespace.Report(r.Owner, id)
		if err != nil {
			return stats, fmt.Errorf("report %s/%s: %w", r.Owner, id, err)
		}
		if err := docs.Set(ctx, ref, normalizeData(r.Data)); err != nil {
			return stats, fmt.Errorf("report %s/%s: %w", r.Owner, id, err)
		}
		stats.Documents++

		prefix := namespace.ReportObjectPrefix(r.Owner, id)
		names := make([]string, 0, len(r.Objects))
		for name := range r.Objects {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := putString(ctx, objects, prefix+strings.TrimPrefix(name, "/"), r.Objects[name]); err != nil {
				return stats, err
			}
			stats.Objects++
		}
	}

	for _, o := range fx.Objects {
		if err := putString(ctx, objects, o.Key, o.Content); err != nil {
			return stats, err
		}
		stats.Objects++
	}
	return stats, nil
}

func putString(ctx context.Context, objects outbound.ObjectWriter, key, content string) error {
	if err := objects.PutObject(ctx, key, strings.NewReader(content), int64(len(content))); err != nil {
		return fmt.Errorf("object %q: %w", key, err)
	}
	return nil
}

// normalizeData converts YAML timestamps to RFC 3339 strings so every
// driver stores and orders them the same way.
func normalizeData(in map[string]any) document.Data {
	out := make(document.Data, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case map[string]any:
		return map[string]any(normalizeData(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	}
	return v
}
