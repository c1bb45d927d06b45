package testutil

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/graphsql/internal/connector"
	"github.com/roach88/graphsql/internal/ir"
)

// Object is an entity, image, blob or descriptor in a Graph.
type Object struct {
	ID     string
	Class  string
	Props  map[string]any
	Blob   []byte
	Set    string
	Vector []float32
}

// Edge is a connection in a Graph.
type Edge struct {
	ID       string
	Class    string
	Src, Dst string
	Props    map[string]any
}

type descriptorSet struct {
	name   string
	dims   int
	metric string
	props  map[string]any
}

// Graph is an in-memory graph backend implementing connector.Connector.
//
// It understands the subset of the native command language the translator
// emits: GetSchema, FindDescriptorSet, FindEntity, FindConnection,
// FindImage, FindBlob and FindDescriptor with constraints, results.list,
// results.limit, batch, blobs, _ref, src/dst, is_connected_to,
// group_by_source and k_neighbors. Responses are round-tripped through JSON
// so numbers arrive as float64, as they do from a real server.
//
// Thread-safety: Execute and the builders are safe for concurrent use.
type Graph struct {
	mu       sync.Mutex
	seq      int
	objects  []*Object
	byID     map[string]*Object
	edges    []*Edge
	sets     []*descriptorSet
	indexed  map[string]bool
	requests [][]map[string]any

	intercept func(commands []map[string]any, resp *connector.Response) (*connector.Response, error)
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		byID:    make(map[string]*Object),
		indexed: make(map[string]bool),
	}
}

func (g *Graph) nextID() string {
	g.seq++
	return fmt.Sprintf("%04d.0.0", g.seq)
}

// AddEntity adds an object of class and returns its _uniqueid.
func (g *Graph) AddEntity(class string, props map[string]any) string {
	return g.AddObject(class, props, nil)
}

// AddObject adds an object with an optional payload, e.g. an "_Image".
func (g *Graph) AddObject(class string, props map[string]any, blob []byte) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	o := &Object{ID: g.nextID(), Class: class, Props: ir.CloneObject(props), Blob: blob}
	if o.Props == nil {
		o.Props = map[string]any{}
	}
	g.objects = append(g.objects, o)
	g.byID[o.ID] = o
	return o.ID
}

// Connect adds a connection of class from src to dst and returns its id.
func (g *Graph) Connect(class, src, dst string, props map[string]any) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := &Edge{ID: g.nextID(), Class: class, Src: src, Dst: dst, Props: ir.CloneObject(props)}
	if e.Props == nil {
		e.Props = map[string]any{}
	}
	g.edges = append(g.edges, e)
	return e.ID
}

// AddDescriptorSet adds a descriptor set.
func (g *Graph) AddDescriptorSet(name string, dims int, props map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sets = append(g.sets, &descriptorSet{name: name, dims: dims, metric: "L2", props: ir.CloneObject(props)})
}

// AddDescriptor adds a descriptor to set and returns its id.
func (g *Graph) AddDescriptor(set string, vector []float32, props map[string]any) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	o := &Object{ID: g.nextID(), Class: "_Descriptor", Set: set, Vector: vector, Props: ir.CloneObject(props)}
	if o.Props == nil {
		o.Props = map[string]any{}
	}
	g.objects = append(g.objects, o)
	g.byID[o.ID] = o
	return o.ID
}

// Index marks class.prop as indexed in the schema.
func (g *Graph) Index(class, prop string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.indexed[class+"."+prop] = true
}

// Intercept installs fn to rewrite every response, e.g. to inject failures.
func (g *Graph) Intercept(fn func(commands []map[string]any, resp *connector.Response) (*connector.Response, error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intercept = fn
}

// Requests returns a copy of every command list received.
func (g *Graph) Requests() [][]map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([][]map[string]any, len(g.requests))
	copy(out, g.requests)
	return out
}

// ResetRequests forgets recorded requests.
func (g *Graph) ResetRequests() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = nil
}

// With lends g itself to fn, so a Graph can stand in for a connection pool.
func (g *Graph) With(_ context.Context, fn func(connector.Connector) error) error {
	return fn(g)
}

type refTarget struct {
	objects []*Object
	edges   []*Edge
}

type execState struct {
	refs    map[int]refTarget
	blobsIn [][]byte
	next    int
	out     [][]byte
}

func (s *execState) takeBlob() ([]byte, error) {
	if s.next >= len(s.blobsIn) {
		return nil, fmt.Errorf("command needs input blob %d, only %d supplied", s.next, len(s.blobsIn))
	}
	b := s.blobsIn[s.next]
	s.next++
	return b, nil
}

// Execute implements connector.Connector.
func (g *Graph) Execute(ctx context.Context, commands []map[string]any, blobs [][]byte) (*connector.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	recorded := make([]map[string]any, len(commands))
	for i, c := range commands {
		recorded[i] = ir.CloneObject(c)
	}
	g.requests = append(g.requests, recorded)

	st := &execState{refs: make(map[int]refTarget), blobsIn: blobs}
	resp := &connector.Response{}
	for _, cmd := range commands {
		verb, err := connector.Verb(cmd)
		if err != nil {
			return nil, err
		}
		body, _ := cmd[verb].(map[string]any)
		if body == nil {
			body = map[string]any{}
		}
		result, err := g.run(st, verb, body)
		if err != nil {
			resp.Status = -1
			resp.JSON = append(resp.JSON, map[string]any{verb: map[string]any{"status": -1, "info": err.Error()}})
			break
		}
		result["status"] = 0
		resp.JSON = append(resp.JSON, map[string]any{verb: result})
	}
	resp.Blobs = st.out

	if err := roundTrip(resp); err != nil {
		return nil, err
	}
	if g.intercept != nil {
		return g.intercept(commands, resp)
	}
	return resp, nil
}

func roundTrip(resp *connector.Response) error {
	data, err := json.Marshal(resp.JSON)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	resp.JSON = decoded
	return nil
}

func (g *Graph) run(st *execState, verb string, body map[string]any) (map[string]any, error) {
	switch verb {
	case "GetSchema":
		return g.getSchema(st, body)
	case "FindDescriptorSet":
		return g.findDescriptorSets(), nil
	case "FindConnection":
		return g.findConnections(st, body)
	}
	if strings.HasPrefix(verb, "Find") {
		return g.findObjects(st, verb, body)
	}
	return nil, fmt.Errorf("unsupported command %s", verb)
}

func (g *Graph) candidates(verb string, body map[string]any) []*Object {
	var class string
	switch verb {
	case "FindEntity":
		class, _ = body["with_class"].(string)
	case "FindDescriptor":
		class = "_Descriptor"
	default:
		class = "_" + strings.TrimPrefix(verb, "Find")
	}
	set, _ := body["set"].(string)

	var out []*Object
	for _, o := range g.objects {
		switch {
		case class == "" && strings.HasPrefix(o.Class, "_"):
			continue
		case class != "" && o.Class != class:
			continue
		case class == "_Descriptor" && set != "" && o.Set != set:
			continue
		}
		out = append(out, o)
	}
	return out
}

func objectValue(o *Object, name string) (any, bool) {
	if name == "_uniqueid" {
		return o.ID, true
	}
	v, ok := o.Props[name]
	return v, ok
}

func edgeValue(e *Edge, name string) (any, bool) {
	switch name {
	case "_uniqueid":
		return e.ID, true
	case "_src":
		return e.Src, true
	case "_dst":
		return e.Dst, true
	}
	v, ok := e.Props[name]
	return v, ok
}

func (g *Graph) findObjects(st *execState, verb string, body map[string]any) (map[string]any, error) {
	matched := g.candidates(verb, body)

	constraints, _ := body["constraints"].(map[string]any)
	var err error
	matched, err = filter(matched, constraints, objectValue)
	if err != nil {
		return nil, err
	}

	distances := map[string]float64{}
	if k, ok := toNumber(body["k_neighbors"]); ok {
		blob, err := st.takeBlob()
		if err != nil {
			return nil, err
		}
		matched, distances = nearest(matched, unpackVector(blob), int(k))
	}

	var groups map[string][]*Object
	if link, ok := body["is_connected_to"].(map[string]any); ok {
		matched, groups, err = g.connectedTo(st, matched, link)
		if err != nil {
			return nil, err
		}
	}

	if ref, ok := toNumber(body["_ref"]); ok {
		st.refs[int(ref)] = refTarget{objects: matched}
	}

	list, limit := resultsSpec(body)
	wantBlobs := body["blobs"] == true
	if grouped, _ := body["group_by_source"].(bool); grouped && groups != nil {
		out := map[string]any{}
		total := 0
		for key, members := range groups {
			if limit > 0 && len(members) > limit {
				members = members[:limit]
			}
			items := make([]any, len(members))
			for i, m := range members {
				items[i] = project(list, func(n string) (any, bool) { return objectValue(m, n) })
			}
			out[key] = items
			total += len(members)
		}
		return map[string]any{"returned": total, "entities": out}, nil
	}

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	page, cursor := paginate(len(matched), body)
	matched = matched[page[0]:page[1]]

	result := map[string]any{"returned": len(matched)}
	if cursor != nil {
		result["batch"] = cursor
	}
	if len(list) > 0 {
		items := make([]any, len(matched))
		for i, o := range matched {
			items[i] = project(list, func(n string) (any, bool) {
				if n == "_distance" {
					d, ok := distances[o.ID]
					return d, ok
				}
				return objectValue(o, n)
			})
		}
		result["entities"] = items
	}
	if wantBlobs {
		for _, o := range matched {
			if o.Class == "_Descriptor" {
				st.out = append(st.out, packVector(o.Vector))
				continue
			}
			st.out = append(st.out, o.Blob)
		}
	}
	return result, nil
}

func (g *Graph) connectedTo(st *execState, matched []*Object, link map[string]any) ([]*Object, map[string][]*Object, error) {
	ref, ok := toNumber(link["ref"])
	if !ok {
		return nil, nil, fmt.Errorf("is_connected_to requires ref")
	}
	target, ok := st.refs[int(ref)]
	if !ok {
		return nil, nil, fmt.Errorf("is_connected_to: unknown ref %v", ref)
	}
	sources := make(map[string]bool, len(target.objects))
	for _, o := range target.objects {
		sources[o.ID] = true
	}
	direction, _ := link["direction"].(string)
	if direction == "" {
		direction = "any"
	}
	class, _ := link["connection_class"].(string)

	candidates := make(map[string]bool, len(matched))
	for _, o := range matched {
		candidates[o.ID] = true
	}

	groups := map[string][]*Object{}
	seen := map[string]bool{}
	for _, e := range g.edges {
		if class != "" && e.Class != class {
			continue
		}
		var key, member string
		switch {
		case (direction == "in" || direction == "any") && sources[e.Src] && candidates[e.Dst]:
			key, member = e.Src, e.Dst
		case (direction == "out" || direction == "any") && sources[e.Dst] && candidates[e.Src]:
			key, member = e.Dst, e.Src
		default:
			continue
		}
		if seen[key+"|"+member] {
			continue
		}
		seen[key+"|"+member] = true
		groups[key] = append(groups[key], g.byID[member])
	}

	var out []*Object
	for _, o := range matched {
		for _, members := range groups {
			if slices.Contains(members, o) {
				out = append(out, o)
				break
			}
		}
	}
	return out, groups, nil
}

func (g *Graph) findConnections(st *execState, body map[string]any) (map[string]any, error) {
	class, _ := body["with_class"].(string)
	srcIDs, err := refIDs(st, body["src"])
	if err != nil {
		return nil, err
	}
	dstIDs, err := refIDs(st, body["dst"])
	if err != nil {
		return nil, err
	}

	var matched []*Edge
	for _, e := range g.edges {
		if class != "" && e.Class != class {
			continue
		}
		if srcIDs != nil && !srcIDs[e.Src] {
			continue
		}
		if dstIDs != nil && !dstIDs[e.Dst] {
			continue
		}
		matched = append(matched, e)
	}
	constraints, _ := body["constraints"].(map[string]any)
	matched, err = filter(matched, constraints, edgeValue)
	if err != nil {
		return nil, err
	}
	if ref, ok := toNumber(body["_ref"]); ok {
		st.refs[int(ref)] = refTarget{edges: matched}
	}

	list, limit := resultsSpec(body)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	page, cursor := paginate(len(matched), body)
	matched = matched[page[0]:page[1]]

	result := map[string]any{"returned": len(matched)}
	if cursor != nil {
		result["batch"] = cursor
	}
	if len(list) > 0 {
		items := make([]any, len(matched))
		for i, e := range matched {
			items[i] = project(list, func(n string) (any, bool) { return edgeValue(e, n) })
		}
		result["connections"] = items
	}
	return result, nil
}

func refIDs(st *execState, raw any) (map[string]bool, error) {
	if raw == nil {
		return nil, nil
	}
	ref, ok := toNumber(raw)
	if !ok {
		return nil, fmt.Errorf("ref must be a number, got %T", raw)
	}
	target, ok := st.refs[int(ref)]
	if !ok {
		return nil, fmt.Errorf("unknown ref %v", raw)
	}
	ids := make(map[string]bool, len(target.objects))
	for _, o := range target.objects {
		ids[o.ID] = true
	}
	return ids, nil
}

func resultsSpec(body map[string]any) ([]string, int) {
	results, _ := body["results"].(map[string]any)
	var list []string
	switch l := results["list"].(type) {
	case []any:
		for _, v := range l {
			if s, ok := v.(string); ok {
				list = append(list, s)
			}
		}
	case []string:
		list = l
	}
	limit, _ := toNumber(results["limit"])
	return list, int(limit)
}

func project(list []string, get func(string) (any, bool)) map[string]any {
	out := make(map[string]any, len(list))
	for _, name := range list {
		if v, ok := get(name); ok {
			out[name] = v
		}
	}
	return out
}

// paginate returns the [start, end) slice bounds for the batch clause and
// the cursor to report, or nil when body has no batch clause.
func paginate(total int, body map[string]any) ([2]int, map[string]any) {
	clause, ok := body["batch"].(map[string]any)
	if !ok {
		return [2]int{0, total}, nil
	}
	id, _ := toNumber(clause["batch_id"])
	size, _ := toNumber(clause["batch_size"])
	if size <= 0 {
		size = 100
	}
	start := min(int(id)*int(size), total)
	end := min(start+int(size), total)
	return [2]int{start, end}, map[string]any{
		"batch_id":       int(id),
		"batch_size":     int(size),
		"total_elements": total,
		"end":            end,
	}
}

func filter[T any](items []T, constraints map[string]any, get func(T, string) (any, bool)) ([]T, error) {
	if len(constraints) == 0 {
		return items, nil
	}
	var out []T
	for _, item := range items {
		keep := true
		for _, prop := range ir.SortedKeys(constraints) {
			cons, ok := constraints[prop].([]any)
			if !ok || len(cons)%2 != 0 {
				return nil, fmt.Errorf("constraint on %q must be [op, value, ...]", prop)
			}
			v, present := get(item, prop)
			ok, err := satisfies(v, present, cons)
			if err != nil {
				return nil, fmt.Errorf("constraint on %q: %w", prop, err)
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, item)
		}
	}
	return out, nil
}

func satisfies(v any, present bool, cons []any) (bool, error) {
	if !present || v == nil {
		return false, nil
	}
	for i := 0; i < len(cons); i += 2 {
		op, _ := cons[i].(string)
		lit := cons[i+1]
		var ok bool
		switch op {
		case "==":
			ok = equal(v, lit)
		case "!=":
			ok = !equal(v, lit)
		case "<", "<=", ">", ">=":
			c, comparable := compare(v, lit)
			if !comparable {
				return false, nil
			}
			ok = (op == "<" && c < 0) || (op == "<=" && c <= 0) || (op == ">" && c > 0) || (op == ">=" && c >= 0)
		case "in", "not in":
			list, isList := lit.([]any)
			if !isList {
				return false, fmt.Errorf("%s needs a list", op)
			}
			found := slices.ContainsFunc(list, func(x any) bool { return equal(v, x) })
			ok = found == (op == "in")
		default:
			return false, fmt.Errorf("unknown operator %q", op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func equal(a, b any) bool {
	c, ok := compare(a, b)
	return ok && c == 0
}

func compare(a, b any) (int, bool) {
	if fa, ok := toNumber(a); ok {
		fb, ok := toNumber(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if ta, ok := toTime(a); ok {
		tb, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		if !av {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return time.Time{}, false
	}
	s, ok := m["_date"].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, err == nil
}

func nearest(objs []*Object, query []float32, k int) ([]*Object, map[string]float64) {
	dist := make(map[string]float64, len(objs))
	for _, o := range objs {
		var sum float64
		for i := range min(len(o.Vector), len(query)) {
			d := float64(o.Vector[i] - query[i])
			sum += d * d
		}
		dist[o.ID] = sum
	}
	sorted := slices.Clone(objs)
	sort.SliceStable(sorted, func(i, j int) bool { return dist[sorted[i].ID] < dist[sorted[j].ID] })
	if k > 0 && len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted, dist
}

func packVector(v []float32) []byte {
	out := make([]byte, 0, 4*len(v))
	for _, f := range v {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	return out
}

func unpackVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

func (g *Graph) findDescriptorSets() map[string]any {
	items := make([]any, 0, len(g.sets))
	for _, s := range g.sets {
		count := 0
		for _, o := range g.objects {
			if o.Class == "_Descriptor" && o.Set == s.name {
				count++
			}
		}
		item := map[string]any{
			"_name":       s.name,
			"_count":      count,
			"_dimensions": s.dims,
			"_metrics":    []any{s.metric},
			"_engines":    []any{"HNSW"},
		}
		for k, v := range s.props {
			item[k] = v
		}
		items = append(items, item)
	}
	return map[string]any{"returned": len(items), "entities": items}
}

func (g *Graph) getSchema(st *execState, body map[string]any) (map[string]any, error) {
	objs := g.objects
	edges := g.edges
	if raw, ok := body["ref"]; ok {
		ref, ok := toNumber(raw)
		if !ok {
			return nil, fmt.Errorf("GetSchema ref must be a number")
		}
		target, ok := st.refs[int(ref)]
		if !ok {
			return nil, fmt.Errorf("GetSchema: unknown ref %v", raw)
		}
		objs, edges = target.objects, target.edges
	} else {
		objs = slices.DeleteFunc(slices.Clone(objs), func(o *Object) bool { return o.Class == "_Descriptor" })
	}

	entities := map[string]any{}
	for _, o := range objs {
		entities[o.Class] = g.addToClass(entities[o.Class], o.Class, o.Props)
	}
	connections := map[string]any{}
	for _, e := range edges {
		c := g.addToClass(connections[e.Class], e.Class, e.Props)
		if _, ok := c["src"]; !ok {
			if src := g.byID[e.Src]; src != nil {
				c["src"] = src.Class
			}
			if dst := g.byID[e.Dst]; dst != nil {
				c["dst"] = dst.Class
			}
		}
		connections[e.Class] = c
	}
	return map[string]any{
		"entities":    map[string]any{"classes": entities, "returned": len(entities)},
		"connections": map[string]any{"classes": connections, "returned": len(connections)},
	}, nil
}

func (g *Graph) addToClass(existing any, class string, props map[string]any) map[string]any {
	c, _ := existing.(map[string]any)
	if c == nil {
		c = map[string]any{"matched": 0, "properties": map[string]any{}}
	}
	c["matched"] = c["matched"].(int) + 1
	schema := c["properties"].(map[string]any)
	for name, v := range props {
		entry, _ := schema[name].([]any)
		if entry == nil {
			entry = []any{0, g.indexed[class+"."+name], typeName(v)}
		}
		entry[0] = entry[0].(int) + 1
		schema[name] = entry
	}
	return c
}

func typeName(v any) string {
	switch val := v.(type) {
	case bool:
		return "Boolean"
	case string:
		return "String"
	case int, int64, float32, float64, json.Number:
		return "Number"
	case map[string]any:
		if _, ok := val["_date"]; ok {
			return "DateTime"
		}
	}
	return "JSON"
}
