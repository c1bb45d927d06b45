package schema

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/graphsql/internal/connector"
)

// Source lends a Connector for the duration of fn. *connector.Pool
// implements it.
type Source interface {
	With(ctx context.Context, fn func(connector.Connector) error) error
}

// Introspector fetches schema snapshots.
type Introspector struct {
	source      Source
	logger      *slog.Logger
	concurrency int
}

// IntrospectorOption configures an Introspector.
type IntrospectorOption func(*Introspector)

// WithIntrospectorLogger sets the logger.
func WithIntrospectorLogger(l *slog.Logger) IntrospectorOption {
	return func(i *Introspector) { i.logger = l }
}

// WithConcurrency bounds concurrent descriptor-set fetches.
func WithConcurrency(n int) IntrospectorOption {
	return func(i *Introspector) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// NewIntrospector creates an Introspector reading through source.
func NewIntrospector(source Source, opts ...IntrospectorOption) *Introspector {
	i := &Introspector{
		source:      source,
		logger:      slog.Default(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Snapshot fetches the current schema.
func (i *Introspector) Snapshot(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	snap := &Snapshot{}

	body, err := i.single(ctx, "GetSchema", map[string]any{})
	if err != nil {
		return nil, err
	}
	if err := decodeInto(body, snap); err != nil {
		return nil, &ConfigError{Code: ErrCodeInvalidSnapshot, Identifier: "GetSchema", Message: err.Error()}
	}

	sets, err := i.descriptorSets(ctx)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for idx := range sets {
		g.Go(func() error {
			desc, err := i.descriptorSchema(gctx, sets[idx].Name)
			if err != nil {
				return fmt.Errorf("descriptor set %q: %w", sets[idx].Name, err)
			}
			sets[idx].Descriptor = desc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	snap.DescriptorSets = sets
	snap.sortDescriptorSets()

	i.logger.Info("schema snapshot fetched",
		"entity_classes", len(snap.Entities.Classes),
		"connection_classes", len(snap.Connections.Classes),
		"descriptor_sets", len(snap.DescriptorSets),
		"elapsed", time.Since(start),
	)
	return snap, nil
}

func (i *Introspector) descriptorSets(ctx context.Context) ([]DescriptorSet, error) {
	body, err := i.single(ctx, "FindDescriptorSet", map[string]any{
		"results":    map[string]any{"all_properties": true},
		"counts":     true,
		"engines":    true,
		"dimensions": true,
		"metrics":    true,
	})
	if err != nil {
		return nil, err
	}
	raw, ok := body["entities"].([]any)
	if !ok {
		return nil, nil
	}

	sets := make([]DescriptorSet, 0, len(raw))
	for _, e := range raw {
		obj, ok := e.(map[string]any)
		if !ok {
			return nil, &ConfigError{Code: ErrCodeInvalidSnapshot, Identifier: "FindDescriptorSet", Message: fmt.Sprintf("entity is %T, want object", e)}
		}
		set, err := parseDescriptorSet(obj)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func parseDescriptorSet(obj map[string]any) (DescriptorSet, error) {
	name, _ := obj["_name"].(string)
	set := DescriptorSet{
		Name:       name,
		Properties: make(map[string]any),
	}
	if n, ok := number(obj["_count"]); ok {
		set.Count = int64(n)
	}
	if n, ok := number(obj["_dimensions"]); ok {
		set.Dimensions = int(n)
	}
	set.Metrics = stringList(obj["_metrics"])
	set.Engines = stringList(obj["_engines"])
	for k, v := range obj {
		if len(k) > 0 && k[0] != '_' {
			set.Properties[k] = v
		}
	}
	if name == "" {
		return set, &ConfigError{Code: ErrCodeInvalidSnapshot, Identifier: "FindDescriptorSet", Message: "descriptor set without _name"}
	}
	return set, nil
}

func (i *Introspector) descriptorSchema(ctx context.Context, set string) (Class, error) {
	commands := []map[string]any{
		{"FindDescriptor": map[string]any{"set": set, "_ref": 1}},
		{"GetSchema": map[string]any{"ref": 1}},
	}
	var resp *connector.Response
	err := i.source.With(ctx, func(c connector.Connector) error {
		var err error
		resp, err = c.Execute(ctx, commands, nil)
		return err
	})
	if err != nil {
		return Class{}, err
	}
	if err := checkResponse(resp, commands); err != nil {
		return Class{}, err
	}
	body, err := resp.Body(1, "GetSchema")
	if err != nil {
		return Class{}, err
	}

	var schema Snapshot
	if err := decodeInto(body, &schema); err != nil {
		return Class{}, &ConfigError{Code: ErrCodeInvalidSnapshot, Identifier: set, Message: err.Error()}
	}
	return schema.Entities.Classes["_Descriptor"], nil
}

func (i *Introspector) single(ctx context.Context, verb string, body map[string]any) (map[string]any, error) {
	commands := []map[string]any{{verb: body}}
	var resp *connector.Response
	err := i.source.With(ctx, func(c connector.Connector) error {
		var err error
		resp, err = c.Execute(ctx, commands, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", verb, err)
	}
	if err := checkResponse(resp, commands); err != nil {
		return nil, err
	}
	return resp.Body(0, verb)
}

func checkResponse(resp *connector.Response, commands []map[string]any) error {
	if len(resp.JSON) != len(commands) {
		return fmt.Errorf("schema query returned %d results for %d commands", len(resp.JSON), len(commands))
	}
	if resp.Status != 0 {
		return fmt.Errorf("schema query failed with status %d: %v", resp.Status, resp.JSON)
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{l}
	}
	return nil
}
